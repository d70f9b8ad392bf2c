package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/studypulse/timeline/internal/model"
	"github.com/studypulse/timeline/internal/storage"
)

const (
	eventStreamName         = "EVENTS"
	eventSubjectPrefix      = "event."
	invalidateSubjectPrefix = "timeline.invalidate."
	eventStreamMaxAge       = 7 * 24 * time.Hour
)

// InvalidationNotice tells listeners a participant's timeline must be
// re-evaluated because a new study event arrived
type InvalidationNotice struct {
	StudyID    string `json:"study_id"`
	HealthCode string `json:"health_code"`
	EventID    string `json:"event_id"`
}

// EventIntake consumes study events from JetStream, records them in the
// event store, and republishes timeline invalidation notices.
type EventIntake struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	events storage.EventStore
}

// NewEventIntake creates a new event intake
func NewEventIntake(js nats.JetStreamContext, events storage.EventStore, logger *zap.Logger) *EventIntake {
	return &EventIntake{
		js:     js,
		logger: logger.Named("event-intake"),
		events: events,
	}
}

// Start ensures the event stream exists and subscribes a durable consumer
func (s *EventIntake) Start(ctx context.Context) error {
	_, err := s.js.AddStream(&nats.StreamConfig{
		Name:     eventStreamName,
		Subjects: []string{eventSubjectPrefix + ">", invalidateSubjectPrefix + ">"},
		Storage:  nats.FileStorage,
		MaxAge:   eventStreamMaxAge,
		MaxMsgs:  -1,
	}, nats.Context(ctx))
	if err != nil {
		if err != nats.ErrStreamNameAlreadyInUse {
			return fmt.Errorf("failed to create event stream: %w", err)
		}
		s.logger.Info("Using existing event stream", zap.String("stream", eventStreamName))
	} else {
		s.logger.Info("Created event stream", zap.String("stream", eventStreamName))
	}

	if _, err := s.js.Subscribe(eventSubjectPrefix+">", func(msg *nats.Msg) {
		s.handleEvent(ctx, msg)
	}, nats.Durable("event-intake-consumer"), nats.ManualAck()); err != nil {
		return fmt.Errorf("failed to subscribe to study events: %w", err)
	}
	return nil
}

// PublishEvent publishes a study event onto the intake stream
func (s *EventIntake) PublishEvent(ctx context.Context, record *model.EventRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal study event: %w", err)
	}
	if _, err := s.js.Publish(eventSubjectPrefix+record.StudyID, data); err != nil {
		return fmt.Errorf("failed to publish study event: %w", err)
	}
	return nil
}

func (s *EventIntake) handleEvent(ctx context.Context, msg *nats.Msg) {
	var record model.EventRecord
	if err := json.Unmarshal(msg.Data, &record); err != nil {
		// An unparseable payload can never succeed; terminate it so the
		// stream does not redeliver it forever. Only store-write failures
		// below stay unacked for retry.
		s.logger.Error("Terminating unparseable study event", zap.Error(err))
		msg.Term()
		return
	}
	if record.StudyID == "" || record.HealthCode == "" || record.EventID == "" {
		s.logger.Error("Dropping incomplete study event",
			zap.String("study_id", record.StudyID),
			zap.String("event_id", record.EventID))
		msg.Ack()
		return
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	if err := s.events.Publish(ctx, &record); err != nil {
		s.logger.Error("Failed to record study event",
			zap.String("study_id", record.StudyID),
			zap.String("event_id", record.EventID),
			zap.Error(err))
		return
	}

	notice, err := json.Marshal(InvalidationNotice{
		StudyID:    record.StudyID,
		HealthCode: record.HealthCode,
		EventID:    record.EventID,
	})
	if err != nil {
		s.logger.Error("Failed to marshal invalidation notice", zap.Error(err))
		return
	}
	if _, err := s.js.Publish(invalidateSubjectPrefix+record.StudyID, notice); err != nil {
		s.logger.Error("Failed to publish invalidation notice",
			zap.String("study_id", record.StudyID),
			zap.Error(err))
		return
	}

	msg.Ack()
	s.logger.Info("Recorded study event",
		zap.String("study_id", record.StudyID),
		zap.String("event_id", record.EventID),
		zap.Time("timestamp", record.Timestamp))
}
