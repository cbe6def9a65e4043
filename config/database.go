package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// SetDB replaces the global DB. Used by the CLI and tests that open their own database.
func SetDB(d *gorm.DB) {
	db = d
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	driver := databaseDriver()
	dsn := databaseDSN(driver)

	var attempt int
	for {
		attempt++
		conn, err := OpenDatabase(driver, dsn)
		if err == nil {
			db = conn
			log.Printf("connected to database (driver=%s attempt=%d)", driver, attempt)
			return
		}

		sleep := retryDelay(attempt)
		log.Printf("failed to connect database (driver=%s attempt=%d): %v; retrying in %s", driver, attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// retryDelay doubles from two seconds per attempt, capped at thirty.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Second << min(attempt, 5)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// ConnectDatabase makes a single connection attempt and sets the global DB.
// Command line tools use it so a wrong DSN fails at once.
func ConnectDatabase() error {
	driver := databaseDriver()
	conn, err := OpenDatabase(driver, databaseDSN(driver))
	if err != nil {
		return err
	}
	db = conn
	return nil
}

// OpenDatabase opens a gorm connection for the given driver and installs the plugins.
func OpenDatabase(driver string, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	conn, err := gorm.Open(dialector, initConfig())
	if err != nil {
		return nil, err
	}

	if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
		if driver == DriverSQLite {
			// SQLite doesn't handle multiple writers well
			sqlDB.SetMaxOpenConns(1)
		} else {
			maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 50)
			maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 25)
			connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
			connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

			if maxOpen > 0 {
				sqlDB.SetMaxOpenConns(maxOpen)
			}
			if maxIdle >= 0 {
				sqlDB.SetMaxIdleConns(maxIdle)
			}
			if connMaxLife > 0 {
				sqlDB.SetConnMaxLifetime(connMaxLife)
			}
			if connMaxIdle > 0 {
				sqlDB.SetConnMaxIdleTime(connMaxIdle)
			}
		}
	}

	if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
	}
	if pluginErr := conn.Use(NewTenantGuardPlugin()); pluginErr != nil {
		log.Printf("db connected but failed to install tenant guard plugin: %v", pluginErr)
	}
	return conn, nil
}

func databaseDriver() string {
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		return DriverMySQL
	}
	return driver
}

func databaseDSN(driver string) string {
	if driver == DriverSQLite {
		path := strings.TrimSpace(os.Getenv("DB_PATH"))
		if path == "" {
			path = "fieldsync.db"
		}
		return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	dbHost := os.Getenv("DB_HOST")
	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, os.Getenv("DB_PORT"))

	// Cloud SQL: DB_HOST=/cloudsql/<CONNECTION_NAME> connects over the proxy's unix socket.
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		network,
		address,
		os.Getenv("DB_NAME"),
	)
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvIntDefault(key string, def int) int {
	return intFromEnv(key, def)
}

// EnvBoolDefault parses common truthy/falsy spellings and falls back to def.
func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   strings.TrimSpace(os.Getenv("DB_TABLE_PREFIX")),
	}
}
