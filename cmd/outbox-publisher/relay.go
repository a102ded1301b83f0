package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox/registry"
)

// subjectKeys names the aggregate id the way consumers know it. A ledger
// transfer aggregate is the correlation id shared by both legs of a transfer.
var subjectKeys = map[enums.OutboxAggregateType]string{
	enums.AggregateLedgerTransfer:  "correlation_id",
	enums.AggregateExchangeRequest: "exchange_request_id",
	enums.AggregateProfile:         "profile_id",
}

func subjectKey(aggregate enums.OutboxAggregateType) string {
	if key, ok := subjectKeys[aggregate]; ok {
		return key
	}
	return "aggregate_id"
}

// relayBatch claims up to batchSize rows in one transaction and settles each
// of them as published, retried or parked. It reports whether any row was
// claimed. One row failing never stops the rest of the batch; only a failure
// to record an outcome aborts the transaction.
func (s *Service) relayBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.relayEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) relayEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(ctx, tx, event, "", enums.OutboxDLQReasonDecode, err)
	}
	topic := resolved.Descriptor.Topic

	publishErr := s.publish(ctx, event, resolved)
	if publishErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(topic)
		s.logg.Info(s.logg.WithFields(ctx, s.logFields(event, resolved, topic)), "outbox.event.published")
		return nil
	}
	return s.settleFailure(ctx, tx, event, resolved, publishErr)
}

// settleFailure decides between another attempt and the DLQ.
func (s *Service) settleFailure(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, publishErr error) error {
	topic := resolved.Descriptor.Topic

	var nonRetryable registry.NonRetryableError
	if errors.As(publishErr, &nonRetryable) {
		return s.park(ctx, tx, event, topic, enums.OutboxDLQReasonNonRetryable, publishErr)
	}

	attempt := event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		return s.park(ctx, tx, event, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, publishErr))
	}

	fields := s.logFields(event, resolved, topic)
	fields["attempt_count"] = attempt
	fields["error"] = publishErr.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.publish.retrying")
	s.metrics.IncFailed(topic)
	if err := s.repo.MarkFailedTx(tx, event.ID, publishErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	return nil
}

// park copies the row into outbox_dlq and marks it terminal so it is never
// claimed again. The stored payload is the original envelope bytes.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := s.logFields(event, nil, topic)
	fields["dlq_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.event.parked")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncParked(string(reason))
	return nil
}

// publish sends the stored envelope unchanged. Attributes carry what the
// analytics sink needs to route and dedupe without decoding the body.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	id := event.AggregateID.String()
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   id,
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	msg.Attributes[subjectKey(event.AggregateType)] = id

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) logFields(event models.OutboxEvent, resolved *registry.ResolvedEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":                     event.ID.String(),
		"event_type":                    event.EventType,
		subjectKey(event.AggregateType): event.AggregateID.String(),
		"attempt_count":                 event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if resolved != nil && resolved.Envelope.EventID != "" {
		fields["event_id"] = resolved.Envelope.EventID
		fields["occurred_at"] = resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
