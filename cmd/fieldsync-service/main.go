package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/api"
	"github.com/mmdatafocus/fieldsync/blobstore"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/middlewares"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/offlinesync"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("FIELDSYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Without REDIS_ADDRESS the service runs single instance: sessions are
	// token only and sync locks are in process.
	useRedis := strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != ""

	blobs, err := blobstore.NewFromEnv(sigCtx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "blobstore"}).Fatal(err)
	}
	worker := offlinesync.NewWorker(offlinesync.FineractRemote, offlinesync.OptionsFromEnv(blobs))
	handlers := api.NewHandlers(api.FineractRemote, blobs)

	// The port opens before the database is up; the gate answers 503 meanwhile.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.ReadinessGate(useRedis))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(cors.New(middlewares.CorsConfig()))
	r.Use(middlewares.SessionMiddleware("/pubsub/"))
	r.Use(rateLimit())
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	apiGroup := r.Group("/api")
	handlers.Register(apiGroup)
	offlinesync.RegisterRoutes(apiGroup.Group("", middlewares.RequireSession()), worker)

	// Pub/Sub push endpoint for the sync worker.
	r.POST("/pubsub/sync", offlinesync.PubSubPushHandler(worker))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	if useRedis {
		config.ConnectRedisWithRetry()
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !config.EnvBoolDefault("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Pull subscription, for deployments where push cannot reach the service.
	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()
	if sub := strings.TrimSpace(os.Getenv("SYNC_SUBSCRIPTION")); sub != "" {
		if err := offlinesync.RunSyncSubscriber(subCtx, worker, sub); err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub", "subscription": sub}).Error("subscriber not started: " + err.Error())
		}
	}

	logger.WithFields(logrus.Fields{"field": "http", "port": port, "redis": useRedis}).Info("fieldsync service started")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// stop pulling before draining so no new run starts
	cancelSub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// rateLimit resolves the limiter on the first request. The readiness gate runs
// first, so Redis is connected by then when it is used at all.
func rateLimit() gin.HandlerFunc {
	var (
		once    sync.Once
		limiter gin.HandlerFunc
	)
	return func(c *gin.Context) {
		once.Do(func() {
			if rl := middlewares.RateLimiterFromEnv(); rl != nil {
				limiter = rl.Middleware()
			}
		})
		if limiter != nil {
			limiter(c)
			return
		}
		c.Next()
	}
}
