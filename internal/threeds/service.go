package threeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"cardauth/internal/common/events"
	"cardauth/internal/common/middleware"
	"cardauth/internal/common/money"
	"cardauth/internal/threeds/domain"
	"cardauth/internal/threeds/store"
)

// Config holds orchestrator configuration.
type Config struct {
	// PublicBaseURL is the externally reachable base URL used to build the
	// success, fail and callback URLs handed to the banks.
	PublicBaseURL string `envconfig:"THREEDS_PUBLIC_BASE_URL" default:"http://localhost:8086"`
}

// Service is the orchestrator facade used by payment processing. It selects
// the bank adapter for a card, dispatches the initiation call, and later
// correlates the asynchronous bank callback back to the stored attempt.
type Service struct {
	cfg       Config
	registry  *Registry
	attempts  store.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates the orchestrator. The publisher may be nil when the
// deployment runs without a broker; outcome events are then skipped.
func NewService(cfg Config, registry *Registry, attempts store.Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		registry:  registry,
		attempts:  attempts,
		publisher: publisher,
		logger:    logger,
	}
}

// InitiateInput carries the payment fields and client context for one
// authentication attempt. All context is explicit; nothing is read from
// ambient state.
type InitiateInput struct {
	OrderID     string // optional; generated when empty
	MerchantID  string
	CustomerID  string
	CardNumber  string
	CardHolder  string
	ExpiryMonth string
	ExpiryYear  string
	AmountMinor int64
	Currency    string
	Description string
	Browser     domain.BrowserInfo
}

// Initiate selects the owning bank adapter, dispatches the initiation call
// and records the attempt. The returned result is either a redirect or
// auto-submit instruction (authentication pending) or an immediate
// decision. Unsupported cards produce an ERROR result and no attempt.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) *domain.AuthenticationResult {
	adapter, ok := s.registry.SelectByCard(input.CardNumber)
	if !ok {
		s.logger.Info("no adapter owns card",
			"merchant_id", input.MerchantID,
			"card_bin", safeBIN(input.CardNumber),
		)
		return domain.ErrorResult(domain.CodeUnsupportedCard, "unsupported card")
	}

	req := s.buildRequest(adapter.BankName(), input)

	s.logger.Info("initiating authentication",
		"order_id", req.OrderID,
		"bank", adapter.BankName(),
		"merchant_id", req.MerchantID,
		"amount", req.Amount.String(),
	)

	result := adapter.Initiate(ctx, req)
	result.OrderID = req.OrderID
	result.BankName = adapter.BankName()
	if result.CardBrand == "" {
		result.CardBrand = domain.DetectBrand(domain.NormalizeCard(input.CardNumber))
	}

	if err := s.record(ctx, req, result); err != nil {
		if errors.Is(err, domain.ErrDuplicateAttempt) {
			return domain.ErrorResult(domain.CodeDuplicateAttempt,
				fmt.Sprintf("order id %s already has an attempt", req.OrderID))
		}
		s.logger.Error("failed to record attempt", "order_id", req.OrderID, "error", err)
		return domain.ErrorResult("STORE_ERROR", "failed to record authentication attempt")
	}

	return result
}

// record persists the attempt. Pending results stay INITIATED awaiting the
// callback; immediate terminal results (not enrolled, declined, transport
// error) are created and finalized in one step to keep the store
// consistent.
func (s *Service) record(ctx context.Context, req *domain.AuthenticationRequest, result *domain.AuthenticationResult) error {
	attempt, err := s.attempts.Create(ctx, req.OrderID, result.BankName)
	if err != nil {
		return err
	}

	s.publishInitiated(ctx, req, attempt)

	if result.Status.IsTerminal() {
		finalized, applied, err := s.attempts.Finalize(ctx, req.OrderID, result)
		if err != nil {
			return err
		}
		if applied {
			s.publishFinalized(ctx, req.MerchantID, finalized)
		}
	}

	return nil
}

// HandleCallback resolves the adapter named in the callback URL, parses
// the bank payload and applies it to the stored attempt exactly once.
// Duplicate deliveries return the previously stored terminal result.
func (s *Service) HandleCallback(ctx context.Context, bankName string, rawBody []byte) *domain.AuthenticationResult {
	adapter, ok := s.registry.SelectByName(bankName)
	if !ok {
		s.logger.Warn("callback for unknown bank", "bank", bankName)
		return domain.ErrorResult(domain.CodeUnknownBank,
			fmt.Sprintf("no adapter registered for bank %q", bankName))
	}

	result := adapter.ParseCallback(rawBody)
	result.BankName = bankName

	if result.Status == domain.StatusError && result.OrderID == "" {
		// Unparseable payload: nothing to correlate. The raw body is
		// logged for diagnosis.
		s.logger.Error("malformed callback",
			"bank", bankName,
			"error", result.ErrorMessage,
			"raw_body", string(rawBody),
		)
		return result
	}

	attempt, applied, err := s.attempts.Finalize(ctx, result.OrderID, result)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAttempt) {
			s.logger.Warn("callback for unknown attempt",
				"bank", bankName,
				"order_id", result.OrderID,
			)
			return domain.ErrorResult(domain.CodeUnknownAttempt,
				fmt.Sprintf("no attempt found for order id %s", result.OrderID))
		}
		s.logger.Error("failed to finalize attempt", "order_id", result.OrderID, "error", err)
		return domain.ErrorResult("STORE_ERROR", "failed to finalize authentication attempt")
	}

	if !applied {
		// Duplicate delivery: return the stored terminal result without
		// re-triggering side effects.
		s.logger.Info("duplicate callback ignored",
			"bank", bankName,
			"order_id", result.OrderID,
			"stored_status", attempt.Status,
		)
		if attempt.Result != nil {
			return attempt.Result
		}
		return result
	}

	s.logger.Info("attempt finalized",
		"bank", bankName,
		"order_id", result.OrderID,
		"status", result.Status,
		"success", result.Success,
	)

	s.publishFinalized(ctx, "", attempt)

	return result
}

// SupportInfo reports whether any adapter owns a card's BIN.
type SupportInfo struct {
	Supported      bool                  `json:"supported"`
	BankName       string                `json:"bank_name,omitempty"`
	RequestFormat  domain.WireFormat     `json:"request_format,omitempty"`
	ResponseFormat domain.ResponseFormat `json:"response_format,omitempty"`
	CardBrand      string                `json:"card_brand,omitempty"`
}

// CheckSupport reports which bank, if any, would handle a card.
func (s *Service) CheckSupport(cardNumber string) SupportInfo {
	adapter, ok := s.registry.SelectByCard(cardNumber)
	if !ok {
		return SupportInfo{Supported: false}
	}
	return SupportInfo{
		Supported:      true,
		BankName:       adapter.BankName(),
		RequestFormat:  adapter.RequestFormat(),
		ResponseFormat: adapter.ResponseFormat(),
		CardBrand:      domain.DetectBrand(domain.NormalizeCard(cardNumber)),
	}
}

// GetAttempt looks up an attempt for diagnostics.
func (s *Service) GetAttempt(ctx context.Context, orderID string) (*domain.Attempt, error) {
	return s.attempts.Get(ctx, orderID)
}

// Health reports per-adapter health.
func (s *Service) Health(ctx context.Context) []HealthStatus {
	return s.registry.Health(ctx)
}

func (s *Service) buildRequest(bankName string, input InitiateInput) *domain.AuthenticationRequest {
	orderID := input.OrderID
	if orderID == "" {
		orderID = fmt.Sprintf("ORD-%s", ulid.Make().String())
	}

	normalized := domain.NormalizeCard(input.CardNumber)
	bin, last4 := domain.MaskCard(normalized)

	base := s.cfg.PublicBaseURL
	return &domain.AuthenticationRequest{
		OrderID:     orderID,
		MerchantID:  input.MerchantID,
		CustomerID:  input.CustomerID,
		PAN:         normalized,
		CardBIN:     bin,
		CardLast4:   last4,
		CardHolder:  input.CardHolder,
		ExpiryMonth: input.ExpiryMonth,
		ExpiryYear:  input.ExpiryYear,
		Amount:      money.New(input.AmountMinor, money.Currency(input.Currency)),
		Description: input.Description,
		SuccessURL:  base + "/3dsecure/result/success",
		FailURL:     base + "/3dsecure/result/fail",
		CallbackURL: base + "/3dsecure/callback/" + bankName,
		Browser:     input.Browser,
	}
}

func (s *Service) publishInitiated(ctx context.Context, req *domain.AuthenticationRequest, attempt *domain.Attempt) {
	if s.publisher == nil {
		return
	}

	data := events.AttemptInitiatedData{
		OrderID:     attempt.OrderID,
		BankName:    attempt.BankName,
		CardBIN:     req.CardBIN,
		CardLast4:   req.CardLast4,
		AmountMinor: req.Amount.AmountMinor,
		Currency:    string(req.Amount.Currency),
	}

	event, err := events.NewEvent(events.EventAttemptInitiated, req.MerchantID, "attempt", attempt.OrderID, &data)
	if err != nil {
		s.logger.Error("failed to build initiated event", "order_id", attempt.OrderID, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish initiated event", "order_id", attempt.OrderID, "error", err)
	}
}

func (s *Service) publishFinalized(ctx context.Context, merchantID string, attempt *domain.Attempt) {
	if s.publisher == nil {
		return
	}

	data := events.AttemptFinalizedData{
		OrderID:     attempt.OrderID,
		BankName:    attempt.BankName,
		Status:      string(attempt.Status),
		FinalizedAt: time.Now().UTC(),
	}
	if attempt.Result != nil {
		data.Success = attempt.Result.Success
		data.TransactionID = attempt.Result.TransactionID
		data.ECI = attempt.Result.ECI
		data.ErrorCode = attempt.Result.ErrorCode
	}
	if attempt.FinalizedAt != nil {
		data.FinalizedAt = *attempt.FinalizedAt
	}

	event, err := events.NewEvent(events.EventAttemptFinalized, merchantID, "attempt", attempt.OrderID, &data)
	if err != nil {
		s.logger.Error("failed to build finalized event", "order_id", attempt.OrderID, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish finalized event", "order_id", attempt.OrderID, "error", err)
	}
}

func safeBIN(cardNumber string) string {
	normalized := domain.NormalizeCard(cardNumber)
	if len(normalized) < 6 {
		return ""
	}
	return normalized[:6]
}
