package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

var ErrPubSubProjectMissing = errors.New("PUBSUB_PROJECT_ID or GOOGLE_CLOUD_PROJECT must be set")

// GetPubSubClient returns the shared client that carries sync runs to the
// workers, connecting on first use. Credentials come from
// PUBSUB_CREDENTIALS_JSON when set, Application Default Credentials otherwise.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectId := os.Getenv("PUBSUB_PROJECT_ID")
	if projectId == "" {
		projectId = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if projectId == "" {
		return nil, ErrPubSubProjectMissing
	}
	var opts []option.ClientOption
	if creds := os.Getenv("PUBSUB_CREDENTIALS_JSON"); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	fields := logrus.Fields{"field": "pubsub", "project_id": projectId}

	attempts := intFromEnv("PUBSUB_CONNECT_ATTEMPTS", 5)
	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectId, opts...)
		if err == nil {
			pubsubClient = c
			GetLogger().WithFields(fields).WithField("attempt", attempt).Info("pubsub client ready")
			return c, nil
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		wait := retryDelay(attempt)
		GetLogger().WithFields(fields).WithFields(logrus.Fields{"attempt": attempt, "retry_in": wait.String()}).
			Warn("pubsub client failed: " + err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// CreateTopicIfNotExists returns the named sync topic, creating it when missing.
func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, name string) (*pubsub.Topic, error) {
	if name == "" {
		return nil, errors.New("pubsub topic name is empty")
	}
	t := c.Topic(name)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return t, nil
	}
	if t, err = c.CreateTopic(ctx, name); err != nil {
		return nil, fmt.Errorf("create topic %q: %w", name, err)
	}
	return t, nil
}

// CreateSubscriptionIfNotExists returns the pull subscription of the sync
// worker. A whole run must fit inside the ack deadline.
func CreateSubscriptionIfNotExists(ctx context.Context, c *pubsub.Client, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	if name == "" {
		return nil, errors.New("pubsub subscription name is empty")
	}
	sub := c.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return sub, nil
	}
	sub, err = c.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", name, err)
	}
	return sub, nil
}
