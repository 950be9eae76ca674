package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

// PubSubEmitter publishes events as JSON messages to a Google Cloud Pub/Sub
// topic. Emit waits for the publish to be acknowledged, so wrap it in an
// AsyncEmitter on the request path.
type PubSubEmitter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSubEmitter connects to projectID and publishes to topicID. Client
// options are passed to pubsub.NewClient.
func NewPubSubEmitter(ctx context.Context, projectID, topicID string, logger *slog.Logger, opts ...option.ClientOption) (*PubSubEmitter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &PubSubEmitter{
		client: client,
		topic:  client.Topic(topicID),
		logger: logger.With("component", "events.pubsub", "topic", topicID),
	}, nil
}

// Emit implements Emitter.
func (e *PubSubEmitter) Emit(ctx context.Context, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := map[string]string{
		"type":         string(event.Type),
		"status":       event.Status,
		"rule_version": strconv.FormatUint(event.Payload.RuleVersion, 10),
	}
	if eval := event.Payload.Evaluation; eval != nil {
		attrs["primary_domain"] = eval.PrimaryDomain
		attrs["autonomy_denied"] = strconv.FormatBool(event.Payload.AutonomyDenied)
	}
	tracing.InjectToMap(ctx, attrs)

	res := e.topic.Publish(ctx, &pubsub.Message{
		Data:       b,
		Attributes: attrs,
	})

	id, err := res.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	e.logger.Debug("event published", "message_id", id, "type", event.Type)
	return nil
}

// Close flushes pending publishes and closes the client.
func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	return e.client.Close()
}
