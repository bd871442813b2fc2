package vesting

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a ledger notification.
type EventType string

const (
	EventScheduleCreated        EventType = "schedule_created"
	EventClaimed                EventType = "claimed"
	EventRecovered              EventType = "recovered"
	EventRecoveryAccountChanged EventType = "recovery_account_changed"
	EventAdministratorChanged   EventType = "administrator_changed"
)

// Event is a structured notification for off-system observers. Events are
// best-effort; delivery failures never fail the originating operation.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	Beneficiary string    `json:"beneficiary,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Account     string    `json:"account,omitempty"`
	At          time.Time `json:"at"`
}

// EventSink consumes ledger events.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(ctx context.Context, ev Event) {
	s.log.Info("vesting: event",
		"event_id", ev.ID,
		"type", string(ev.Type),
		"beneficiary", ev.Beneficiary,
		"amount", ev.Amount,
		"account", ev.Account,
	)
}

// FanoutSink forwards each event to every wrapped sink.
type FanoutSink []EventSink

func (f FanoutSink) Emit(ctx context.Context, ev Event) {
	for _, s := range f {
		s.Emit(ctx, ev)
	}
}
