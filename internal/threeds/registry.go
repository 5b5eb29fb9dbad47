package threeds

import (
	"context"
	"log/slog"

	"cardauth/internal/threeds/domain"
)

// Registry holds the configured bank adapters and resolves the adapter for
// a card number or bank name. The adapter set is assembled once at process
// start; the registry is never mutated afterwards.
type Registry struct {
	adapters []BankAdapter
	byName   map[string]BankAdapter
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]BankAdapter),
		logger: logger,
	}
}

// Register adds an adapter to the set. Adapters that report themselves as
// unconfigured are excluded from card selection but retained for health
// reporting and name lookup.
func (r *Registry) Register(adapter BankAdapter) {
	r.adapters = append(r.adapters, adapter)
	r.byName[adapter.BankName()] = adapter

	if !adapter.IsConfigured() {
		r.logger.Warn("bank adapter registered without credentials, excluded from selection",
			"bank", adapter.BankName(),
		)
		return
	}

	r.logger.Info("bank adapter registered",
		"bank", adapter.BankName(),
		"request_format", adapter.RequestFormat(),
		"response_format", adapter.ResponseFormat(),
	)
}

// SelectByCard returns the first configured adapter whose BIN prefixes
// match the card's leading digits. Registration order decides ties between
// overlapping BIN lists; first match wins. A nil result is the normal
// outcome for unsupported cards, not an error.
func (r *Registry) SelectByCard(cardNumber string) (BankAdapter, bool) {
	normalized := domain.NormalizeCard(cardNumber)
	if len(normalized) < 6 {
		return nil, false
	}

	for _, adapter := range r.adapters {
		if !adapter.IsConfigured() {
			continue
		}
		if adapter.OwnsBIN(normalized) {
			return adapter, true
		}
	}
	return nil, false
}

// SelectByName returns the adapter registered under the given bank name.
// Used for callback routing, where the bank name arrives in the URL.
func (r *Registry) SelectByName(name string) (BankAdapter, bool) {
	adapter, ok := r.byName[name]
	return adapter, ok
}

// ListActive returns the adapters currently eligible for selection.
func (r *Registry) ListActive() []BankAdapter {
	active := make([]BankAdapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		if adapter.IsConfigured() {
			active = append(active, adapter)
		}
	}
	return active
}

// HealthStatus reports the state of one registered adapter.
type HealthStatus struct {
	Bank           string                `json:"bank"`
	RequestFormat  domain.WireFormat     `json:"request_format"`
	ResponseFormat domain.ResponseFormat `json:"response_format"`
	Configured     bool                  `json:"configured"`
	Reachable      *bool                 `json:"reachable,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// Health checks each adapter independently; a failing adapter never
// affects the report of another.
func (r *Registry) Health(ctx context.Context) []HealthStatus {
	statuses := make([]HealthStatus, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		status := HealthStatus{
			Bank:           adapter.BankName(),
			RequestFormat:  adapter.RequestFormat(),
			ResponseFormat: adapter.ResponseFormat(),
			Configured:     adapter.IsConfigured(),
		}

		if pinger, ok := adapter.(Pinger); ok && status.Configured {
			reachable := true
			if err := pinger.Ping(ctx); err != nil {
				reachable = false
				status.Error = err.Error()
			}
			status.Reachable = &reachable
		}

		statuses = append(statuses, status)
	}
	return statuses
}
