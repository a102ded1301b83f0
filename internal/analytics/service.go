package analytics

import (
	"context"
	"errors"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

// ConsumerName scopes the dedupe markers written by this sink.
const ConsumerName = "analytics"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type ServiceParams struct {
	Subscription receiver
	Inserter     tableInserter
	Table        string
	Dedupe       idempotencyChecker
	Logger       *logger.Logger
}

// Service streams ledger events from Pub/Sub into BigQuery, once per event id.
type Service struct {
	subscription receiver
	inserter     tableInserter
	table        string
	dedupe       idempotencyChecker
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscription == nil {
		return nil, errors.New("analytics subscription is required")
	}
	if params.Inserter == nil {
		return nil, errors.New("bigquery inserter is required")
	}
	if strings.TrimSpace(params.Table) == "" {
		return nil, errors.New("bigquery table is required")
	}
	if params.Dedupe == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: params.Subscription,
		inserter:     params.Inserter,
		table:        strings.TrimSpace(params.Table),
		dedupe:       params.Dedupe,
		logg:         params.Logger,
	}, nil
}

// Run blocks until ctx is canceled or the subscription fails.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.Process(innerCtx, msg.ID, msg.Data, msg.Attributes) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process handles one delivery and reports whether it should be redelivered.
// Malformed or unsupported events are acked and logged; they will not get better.
func (s *Service) Process(ctx context.Context, messageID string, data []byte, attrs map[string]string) (nack bool) {
	ctx = s.logg.WithField(ctx, "message_id", messageID)

	env, err := DecodeMessage(data, attrs)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "analytics.envelope.invalid")
		return false
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID.String(),
		"event_type":   string(env.EventType),
		"aggregate_id": env.AggregateID.String(),
	})

	row, err := BuildRow(env)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "analytics.row.invalid")
		return false
	}

	already, err := s.dedupe.CheckAndMarkProcessed(ctx, ConsumerName, env.EventID)
	if err != nil {
		s.logg.Error(ctx, "analytics.dedupe.failed", err)
		return true
	}
	if already {
		s.logg.Debug(ctx, "analytics.event.duplicate")
		return false
	}

	if err := s.inserter.InsertRows(ctx, s.table, []any{row}); err != nil {
		s.logg.Error(ctx, "analytics.insert.failed", err)
		if delErr := s.dedupe.Delete(ctx, ConsumerName, env.EventID); delErr != nil {
			s.logg.Error(ctx, "analytics.dedupe.release_failed", delErr)
		}
		return true
	}

	s.logg.Info(ctx, "analytics.event.ingested")
	return false
}
