package threeds

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardauth/internal/threeds/domain"
)

// stubAdapter is a scriptable BankAdapter used across the package tests.
type stubAdapter struct {
	name           string
	bins           []string
	requestFormat  domain.WireFormat
	responseFormat domain.ResponseFormat
	configured     bool

	initiateFn func(ctx context.Context, req *domain.AuthenticationRequest) *domain.AuthenticationResult
	callbackFn func(rawBody []byte) *domain.AuthenticationResult
}

func (s *stubAdapter) BankName() string                      { return s.name }
func (s *stubAdapter) RequestFormat() domain.WireFormat      { return s.requestFormat }
func (s *stubAdapter) ResponseFormat() domain.ResponseFormat { return s.responseFormat }
func (s *stubAdapter) IsConfigured() bool                    { return s.configured }

func (s *stubAdapter) OwnsBIN(cardNumber string) bool {
	return domain.MatchBIN(cardNumber, s.bins)
}

func (s *stubAdapter) Initiate(ctx context.Context, req *domain.AuthenticationRequest) *domain.AuthenticationResult {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, req)
	}
	return &domain.AuthenticationResult{Status: domain.StatusInitiated}
}

func (s *stubAdapter) ParseCallback(rawBody []byte) *domain.AuthenticationResult {
	if s.callbackFn != nil {
		return s.callbackFn(rawBody)
	}
	return domain.ErrorResult(domain.CodeMalformedCallback, "not scripted")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_SelectByCard(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{name: "alfabank", bins: []string{"409771"}, configured: true})
	registry.Register(&stubAdapter{name: "kapitalbank", bins: []string{"482494", "404347"}, configured: true})

	adapter, ok := registry.SelectByCard("4824940000000001")
	require.True(t, ok)
	assert.Equal(t, "kapitalbank", adapter.BankName())

	adapter, ok = registry.SelectByCard("4097710000000002")
	require.True(t, ok)
	assert.Equal(t, "alfabank", adapter.BankName())
}

func TestRegistry_SelectByCardUnsupported(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{name: "alfabank", bins: []string{"409771"}, configured: true})

	_, ok := registry.SelectByCard("5555550000000001")
	assert.False(t, ok)
}

func TestRegistry_SelectByCardNormalizesInput(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{name: "kapitalbank", bins: []string{"482494"}, configured: true})

	adapter, ok := registry.SelectByCard("4824 9400 0000 0001")
	require.True(t, ok)
	assert.Equal(t, "kapitalbank", adapter.BankName())

	_, ok = registry.SelectByCard("4824")
	assert.False(t, ok, "fewer than six digits can never match")

	_, ok = registry.SelectByCard("not-a-card")
	assert.False(t, ok)
}

func TestRegistry_FirstRegisteredWinsOverlap(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{name: "first", bins: []string{"482494"}, configured: true})
	registry.Register(&stubAdapter{name: "second", bins: []string{"482494"}, configured: true})

	adapter, ok := registry.SelectByCard("4824940000000001")
	require.True(t, ok)
	assert.Equal(t, "first", adapter.BankName())
}

func TestRegistry_UnconfiguredExcludedFromSelection(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{name: "dark", bins: []string{"482494"}, configured: false})
	registry.Register(&stubAdapter{name: "live", bins: []string{"482494"}, configured: true})

	adapter, ok := registry.SelectByCard("4824940000000001")
	require.True(t, ok)
	assert.Equal(t, "live", adapter.BankName())

	// Name lookup still resolves the unconfigured adapter so late
	// callbacks can be attributed.
	_, ok = registry.SelectByName("dark")
	assert.True(t, ok)

	assert.Len(t, registry.ListActive(), 1)
}

func TestRegistry_SelectByName(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{name: "unibank", bins: []string{"416973"}, configured: true})

	adapter, ok := registry.SelectByName("unibank")
	require.True(t, ok)
	assert.Equal(t, "unibank", adapter.BankName())

	_, ok = registry.SelectByName("nosuchbank")
	assert.False(t, ok)
}

func TestRegistry_Health(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{
		name:           "alfabank",
		bins:           []string{"409771"},
		requestFormat:  domain.FormatJSON,
		responseFormat: domain.ResponseJSON,
		configured:     true,
	})
	registry.Register(&stubAdapter{name: "dark", bins: []string{"482494"}, configured: false})

	statuses := registry.Health(context.Background())
	require.Len(t, statuses, 2)

	assert.Equal(t, "alfabank", statuses[0].Bank)
	assert.True(t, statuses[0].Configured)
	assert.Equal(t, domain.FormatJSON, statuses[0].RequestFormat)
	assert.Nil(t, statuses[0].Reachable, "stub has no ping")

	assert.Equal(t, "dark", statuses[1].Bank)
	assert.False(t, statuses[1].Configured)
}
