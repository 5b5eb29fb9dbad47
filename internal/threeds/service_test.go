package threeds

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardauth/internal/common/events"
	"cardauth/internal/threeds/domain"
	"cardauth/internal/threeds/store"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *capturePublisher) Publish(_ context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(eventType string) []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T, adapters ...BankAdapter) (*Service, *store.MemoryStore, *capturePublisher) {
	t.Helper()

	registry := NewRegistry(testLogger())
	for _, a := range adapters {
		registry.Register(a)
	}

	attempts := store.NewMemoryStore()
	publisher := &capturePublisher{}
	cfg := Config{PublicBaseURL: "https://pay.example.com"}

	return NewService(cfg, registry, attempts, publisher, testLogger()), attempts, publisher
}

func pendingJSONBank() *stubAdapter {
	return &stubAdapter{
		name:           "alfabank",
		bins:           []string{"409771"},
		requestFormat:  domain.FormatJSON,
		responseFormat: domain.ResponseJSON,
		configured:     true,
		initiateFn: func(_ context.Context, _ *domain.AuthenticationRequest) *domain.AuthenticationResult {
			return &domain.AuthenticationResult{
				Status:      domain.StatusInitiated,
				RedirectURL: "https://acs.alfabank.example/session/42",
			}
		},
	}
}

func validInput(cardNumber string) InitiateInput {
	return InitiateInput{
		MerchantID:  "MRC-1",
		CardNumber:  cardNumber,
		CardHolder:  "JOHN DOE",
		ExpiryMonth: "12",
		ExpiryYear:  "29",
		AmountMinor: 1050,
		Currency:    "AZN",
	}
}

func TestService_InitiateUnsupportedCard(t *testing.T) {
	svc, _, publisher := newTestService(t, pendingJSONBank())

	result := svc.Initiate(context.Background(), validInput("5555550000000001"))

	assert.False(t, result.Success)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.CodeUnsupportedCard, result.ErrorCode)
	assert.Equal(t, "unsupported card", result.ErrorMessage)
	assert.Empty(t, result.OrderID, "no attempt is recorded for unsupported cards")
	assert.Empty(t, publisher.events, "no events for unsupported cards")
}

func TestService_InitiatePendingRedirect(t *testing.T) {
	svc, attempts, publisher := newTestService(t, pendingJSONBank())

	result := svc.Initiate(context.Background(), validInput("4097710000000002"))

	assert.Equal(t, domain.StatusInitiated, result.Status)
	assert.Equal(t, "alfabank", result.BankName)
	assert.Equal(t, "https://acs.alfabank.example/session/42", result.RedirectURL)
	assert.Equal(t, "VISA", result.CardBrand)
	require.True(t, strings.HasPrefix(result.OrderID, "ORD-"), "order id is generated when absent")

	attempt, err := attempts.Get(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInitiated, attempt.Status)
	assert.Nil(t, attempt.FinalizedAt)

	initiated := publisher.byType(events.EventAttemptInitiated)
	require.Len(t, initiated, 1)
	assert.Empty(t, publisher.byType(events.EventAttemptFinalized))

	var data events.AttemptInitiatedData
	require.NoError(t, json.Unmarshal(initiated[0].Data, &data))
	assert.Equal(t, result.OrderID, data.OrderID)
	assert.Equal(t, "409771", data.CardBIN)
	assert.Equal(t, "0002", data.CardLast4)
	assert.Equal(t, int64(1050), data.AmountMinor)
}

func TestService_InitiateKeepsCallerOrderID(t *testing.T) {
	svc, _, _ := newTestService(t, pendingJSONBank())

	input := validInput("4097710000000002")
	input.OrderID = "ORDER-CALLER-7"

	result := svc.Initiate(context.Background(), input)
	assert.Equal(t, "ORDER-CALLER-7", result.OrderID)
}

func TestService_InitiateBuildsBankRequest(t *testing.T) {
	var captured *domain.AuthenticationRequest
	bank := pendingJSONBank()
	bank.initiateFn = func(_ context.Context, req *domain.AuthenticationRequest) *domain.AuthenticationResult {
		captured = req
		return &domain.AuthenticationResult{Status: domain.StatusInitiated}
	}

	svc, _, _ := newTestService(t, bank)
	svc.Initiate(context.Background(), validInput("4097 7100 0000 0002"))

	require.NotNil(t, captured)
	assert.Equal(t, "4097710000000002", captured.PAN, "card number is normalized before dispatch")
	assert.Equal(t, "409771", captured.CardBIN)
	assert.Equal(t, "0002", captured.CardLast4)
	assert.Equal(t, "https://pay.example.com/3dsecure/callback/alfabank", captured.CallbackURL)
	assert.Equal(t, "https://pay.example.com/3dsecure/result/success", captured.SuccessURL)
	assert.Equal(t, "https://pay.example.com/3dsecure/result/fail", captured.FailURL)
	assert.Equal(t, "10.50", captured.Amount.MajorString())
}

func TestService_InitiateImmediateTerminal(t *testing.T) {
	bank := pendingJSONBank()
	bank.initiateFn = func(_ context.Context, _ *domain.AuthenticationRequest) *domain.AuthenticationResult {
		return &domain.AuthenticationResult{Success: true, Status: domain.StatusNotEnrolled}
	}

	svc, attempts, publisher := newTestService(t, bank)
	result := svc.Initiate(context.Background(), validInput("4097710000000002"))

	assert.True(t, result.Success)
	assert.Equal(t, domain.StatusNotEnrolled, result.Status)

	attempt, err := attempts.Get(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotEnrolled, attempt.Status)
	require.NotNil(t, attempt.FinalizedAt)

	assert.Len(t, publisher.byType(events.EventAttemptInitiated), 1)
	assert.Len(t, publisher.byType(events.EventAttemptFinalized), 1)
}

func TestService_InitiateDuplicateOrderID(t *testing.T) {
	svc, _, _ := newTestService(t, pendingJSONBank())

	input := validInput("4097710000000002")
	input.OrderID = "ORDER-1"

	first := svc.Initiate(context.Background(), input)
	assert.Equal(t, domain.StatusInitiated, first.Status)

	second := svc.Initiate(context.Background(), input)
	assert.Equal(t, domain.StatusError, second.Status)
	assert.Equal(t, domain.CodeDuplicateAttempt, second.ErrorCode)
}

func TestService_HandleCallbackFinalizes(t *testing.T) {
	bank := pendingJSONBank()
	bank.callbackFn = func(_ []byte) *domain.AuthenticationResult {
		return &domain.AuthenticationResult{
			Success: true,
			Status:  domain.StatusAuthenticated,
			OrderID: "ORDER-1",
			ECI:     "05",
		}
	}

	svc, attempts, publisher := newTestService(t, bank)

	input := validInput("4097710000000002")
	input.OrderID = "ORDER-1"
	svc.Initiate(context.Background(), input)

	result := svc.HandleCallback(context.Background(), "alfabank", []byte(`{"orderId":"ORDER-1"}`))
	assert.True(t, result.Success)
	assert.Equal(t, domain.StatusAuthenticated, result.Status)
	assert.Equal(t, "alfabank", result.BankName)

	attempt, err := attempts.Get(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthenticated, attempt.Status)

	assert.Len(t, publisher.byType(events.EventAttemptFinalized), 1)
}

func TestService_HandleCallbackDuplicateIsIdempotent(t *testing.T) {
	bank := pendingJSONBank()
	bank.callbackFn = func(_ []byte) *domain.AuthenticationResult {
		return &domain.AuthenticationResult{
			Status:    domain.StatusFailed,
			OrderID:   "ORDER-1",
			ErrorCode: domain.CodeBankDeclined,
		}
	}

	svc, _, publisher := newTestService(t, bank)

	input := validInput("4097710000000002")
	input.OrderID = "ORDER-1"
	svc.Initiate(context.Background(), input)

	first := svc.HandleCallback(context.Background(), "alfabank", []byte(`one`))
	assert.Equal(t, domain.StatusFailed, first.Status)

	second := svc.HandleCallback(context.Background(), "alfabank", []byte(`two`))
	assert.Equal(t, domain.StatusFailed, second.Status)
	assert.Equal(t, domain.CodeBankDeclined, second.ErrorCode)

	// Only the first delivery triggers side effects.
	assert.Len(t, publisher.byType(events.EventAttemptFinalized), 1)
}

func TestService_HandleCallbackUnknownBank(t *testing.T) {
	svc, _, _ := newTestService(t, pendingJSONBank())

	result := svc.HandleCallback(context.Background(), "nosuchbank", []byte(`{}`))
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.CodeUnknownBank, result.ErrorCode)
}

func TestService_HandleCallbackUnknownAttempt(t *testing.T) {
	bank := pendingJSONBank()
	bank.callbackFn = func(_ []byte) *domain.AuthenticationResult {
		return &domain.AuthenticationResult{
			Success: true,
			Status:  domain.StatusAuthenticated,
			OrderID: "ORDER-GHOST",
		}
	}

	svc, _, _ := newTestService(t, bank)

	result := svc.HandleCallback(context.Background(), "alfabank", []byte(`{}`))
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.CodeUnknownAttempt, result.ErrorCode)
}

func TestService_HandleCallbackMalformedPayload(t *testing.T) {
	bank := pendingJSONBank()
	bank.callbackFn = func(_ []byte) *domain.AuthenticationResult {
		return domain.ErrorResult(domain.CodeMalformedCallback, "garbled")
	}

	svc, _, publisher := newTestService(t, bank)

	result := svc.HandleCallback(context.Background(), "alfabank", []byte(`%%%`))
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.CodeMalformedCallback, result.ErrorCode)
	assert.Empty(t, publisher.byType(events.EventAttemptFinalized))
}

func TestService_CheckSupport(t *testing.T) {
	svc, _, _ := newTestService(t,
		pendingJSONBank(),
		&stubAdapter{
			name:           "kapitalbank",
			bins:           []string{"482494", "404347"},
			requestFormat:  domain.FormatXML,
			responseFormat: domain.ResponseXML,
			configured:     true,
		},
	)

	info := svc.CheckSupport("4824940000000001")
	assert.True(t, info.Supported)
	assert.Equal(t, "kapitalbank", info.BankName)
	assert.Equal(t, domain.FormatXML, info.RequestFormat)
	assert.Equal(t, domain.ResponseXML, info.ResponseFormat)
	assert.Equal(t, "VISA", info.CardBrand)

	info = svc.CheckSupport("5555550000000001")
	assert.False(t, info.Supported)
	assert.Empty(t, info.BankName)
}
