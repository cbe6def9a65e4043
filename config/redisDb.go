package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is optional. With no client installed the helpers below are no-ops,
// sessions fall back to the token alone and sync locks stay in process.
var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// SetRedisDB installs the client. Passing nil disables the Redis-backed helpers.
func SetRedisDB(c *redis.Client) {
	rdb = c
	if c == nil {
		locker = nil
		return
	}
	locker = redislock.New(c)
}

// GetRedisObject decodes the JSON stored at key into dest. The bool is false
// on a miss or when Redis is not configured.
func GetRedisObject(key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(context.Background(), key, b, exp).Err()
}

func RemoveRedisKey(keys ...string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(context.Background(), keys...).Err()
}

// ConnectRedisWithRetry blocks until REDIS_ADDRESS answers a ping, then
// installs the client and the sync lock client.
func ConnectRedisWithRetry() {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intFromEnv("REDIS_DB", 0),
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 20),
	}
	fields := logrus.Fields{"field": "redis", "addr": addr}

	for attempt := 1; ; attempt++ {
		client := redis.NewClient(opts)
		err := client.Ping(context.Background()).Err()
		if err == nil {
			SetRedisDB(client)
			GetLogger().WithFields(fields).WithField("attempt", attempt).Info("redis connected")
			return
		}
		_ = client.Close()

		wait := retryDelay(attempt)
		GetLogger().WithFields(fields).WithFields(logrus.Fields{"attempt": attempt, "retry_in": wait.String()}).
			Warn("redis not reachable: " + err.Error())
		time.Sleep(wait)
	}
}
