package offlinesync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/sirupsen/logrus"
)

func syncTopic() string {
	topicName := strings.TrimSpace(os.Getenv("SYNC_TOPIC"))
	if topicName == "" {
		topicName = "fieldsync-runs"
	}
	return topicName
}

func PublishSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(syncTopic())
	if config.EnvBoolDefault("SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(ctx, client, syncTopic())
		if err != nil {
			return err
		}
	}

	res := topic.Publish(ctx, &pubsub.Message{
		Data:       encodePayload(payload),
		Attributes: map[string]string{"tenant_id": payload.TenantId},
	})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler always answers 204: a failed run is recorded on the run
// itself, and a redelivery would only find it terminal.
func PubSubPushHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.TenantId == "" {
			c.Status(204)
			return
		}

		if err := w.ProcessSyncRun(c.Request.Context(), payload); err != nil {
			config.LogError(config.GetLogger(), "pubsub.go", "PubSubPushHandler", "ProcessSyncRun", payload, err)
		}
		c.Status(204)
	}
}

// RunSyncSubscriber pulls runs from SYNC_SUBSCRIPTION until ctx is done.
// Runs of different tenants proceed in parallel; the worker's lock keeps
// runs of one tenant and kind in order.
func RunSyncSubscriber(ctx context.Context, w *Worker, subscription string) error {
	logger := config.GetLogger()
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, syncTopic())
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, subscription, topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = config.EnvIntDefault("SYNC_MAX_OUTSTANDING", 4)

	callback := func(ctx context.Context, msg *pubsub.Message) {
		var payload SyncPubSubPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			config.LogError(logger, "pubsub.go", "RunSyncSubscriber", "Unmarshaling pubsub message", string(msg.Data), err)
			msg.Ack()
			return
		}
		if err := w.ProcessSyncRun(ctx, payload); err != nil {
			logger.WithFields(logrus.Fields{
				"field":      "RunSyncSubscriber",
				"tenant_id":  payload.TenantId,
				"run_id":     payload.RunId,
				"message_id": msg.ID,
			}).Error("sync run failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "pubsub.go", "RunSyncSubscriber", "Failed to receive messages", nil, err)
		}
	}()
	return nil
}
