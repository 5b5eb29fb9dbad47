// Package events defines the event envelope emitted when authentication
// attempts change state. Downstream payment processing consumes these to
// persist and audit final outcomes.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	MerchantID    string          `json:"merchant_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, merchantID, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		MerchantID:    merchantID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds a correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes events to a message broker
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Authentication attempt event types
const (
	EventAttemptInitiated = "threeds.attempt.initiated"
	EventAttemptFinalized = "threeds.attempt.finalized"
)

// AttemptInitiatedData is the data for threeds.attempt.initiated events
type AttemptInitiatedData struct {
	OrderID     string `json:"order_id"`
	BankName    string `json:"bank_name"`
	CardBIN     string `json:"card_bin"`
	CardLast4   string `json:"card_last4"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// AttemptFinalizedData is the data for threeds.attempt.finalized events
type AttemptFinalizedData struct {
	OrderID       string    `json:"order_id"`
	BankName      string    `json:"bank_name"`
	Status        string    `json:"status"`
	Success       bool      `json:"success"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ECI           string    `json:"eci,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	FinalizedAt   time.Time `json:"finalized_at"`
}
