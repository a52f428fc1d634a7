package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Audit action types that differ from the plain operation name
const (
	ActionVotingFinalised             = "VotingFinalised"
	ActionVotingFinalisedWithOverride = "VotingFinalisedWithOverride"
)

// AuditEntry is the before/after envelope sent to the external audit sink for
// every state-changing operation
type AuditEntry struct {
	ActorID       uuid.UUID       `json:"actorId"`
	FundID        *uuid.UUID      `json:"fundId,omitempty"`
	EntityType    string          `json:"entityType"`
	EntityID      uuid.UUID       `json:"entityId"`
	ActionType    string          `json:"actionType"`
	BeforeState   json.RawMessage `json:"beforeState,omitempty"`
	AfterState    json.RawMessage `json:"afterState,omitempty"`
	CorrelationID *string         `json:"correlationId,omitempty"`
	ServiceName   string          `json:"serviceName"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// AuditSink accepts audit entries. The sink is append-only and external;
// recording is best-effort and never blocks the operation that produced it.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// NewAuditEntry builds an entry, JSON-encoding the before/after snapshots
func NewAuditEntry(actorID uuid.UUID, fundID *uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) AuditEntry {
	entry := AuditEntry{
		ActorID:     actorID,
		FundID:      fundID,
		EntityType:  entityType,
		EntityID:    entityID,
		ActionType:  action,
		ServiceName: "chama-backend",
		OccurredAt:  time.Now().UTC(),
	}
	if before != nil {
		if data, err := json.Marshal(before); err == nil {
			entry.BeforeState = data
		}
	}
	if after != nil {
		if data, err := json.Marshal(after); err == nil {
			entry.AfterState = data
		}
	}
	return entry
}

// LogAuditSink writes audit entries to the structured log. Stands in for the
// external sink in single-binary deployments.
type LogAuditSink struct{}

func (LogAuditSink) Record(ctx context.Context, entry AuditEntry) error {
	log.Info().
		Str("actor_id", entry.ActorID.String()).
		Str("entity_type", entry.EntityType).
		Str("entity_id", entry.EntityID.String()).
		Str("action", entry.ActionType).
		RawJSON("after", nonEmpty(entry.AfterState)).
		Msg("audit")
	return nil
}

func nonEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// NopAuditSink discards entries (tests)
type NopAuditSink struct{}

func (NopAuditSink) Record(ctx context.Context, entry AuditEntry) error { return nil }
