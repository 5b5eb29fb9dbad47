// Package threeds implements the multi-bank 3-D Secure authentication
// orchestrator: adapter selection by BIN, canonical request construction,
// and exactly-once callback correlation.
package threeds

import (
	"context"

	"cardauth/internal/threeds/domain"
)

// BankAdapter is the uniform capability surface every issuing-bank
// integration exposes, regardless of its wire format. Implementations live
// under internal/banks and differ only in codec and endpoint details.
type BankAdapter interface {
	// BankName returns the stable identifier used in callback routing.
	BankName() string

	// RequestFormat reports how the bank expects initiation bodies encoded.
	RequestFormat() domain.WireFormat

	// ResponseFormat reports how the bank answers initiation calls.
	ResponseFormat() domain.ResponseFormat

	// OwnsBIN reports whether the bank's BIN list covers the card number.
	// Never returns an error; malformed input is simply not owned.
	OwnsBIN(cardNumber string) bool

	// IsConfigured reports whether all required credentials and endpoint
	// settings are present.
	IsConfigured() bool

	// Initiate serializes the canonical request into the bank's body
	// format, performs the outbound call, and classifies the response.
	// Transport failures are mapped to an ERROR result, never returned as
	// raw errors.
	Initiate(ctx context.Context, req *domain.AuthenticationRequest) *domain.AuthenticationResult

	// ParseCallback decodes the bank-specific callback payload into a
	// canonical result carrying the echoed order id. Malformed input
	// yields an ERROR result describing the parse failure.
	ParseCallback(rawBody []byte) *domain.AuthenticationResult
}

// Pinger is implemented by adapters that can verify endpoint reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
