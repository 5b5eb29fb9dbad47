// Package alfabank integrates the JSON-format issuing bank. The bank runs
// an enrollment-check API that either clears the payment immediately (card
// not enrolled) or returns an ACS URL the cardholder must be redirected to.
package alfabank

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cardauth/internal/threeds"
	"cardauth/internal/threeds/domain"
)

const bankName = "alfabank"

// Config holds adapter configuration and credentials.
type Config struct {
	BaseURL    string        `envconfig:"ALFABANK_BASE_URL"`
	MerchantID string        `envconfig:"ALFABANK_MERCHANT_ID"`
	APIKey     string        `envconfig:"ALFABANK_API_KEY"`
	BINs       []string      `envconfig:"ALFABANK_BINS" default:"409771,415428,453299"`
	Enabled    bool          `envconfig:"ALFABANK_ENABLED" default:"true"`
	TestMode   bool          `envconfig:"ALFABANK_TEST_MODE" default:"false"`
	Timeout    time.Duration `envconfig:"ALFABANK_TIMEOUT" default:"15s"`
}

// Adapter implements threeds.BankAdapter for the JSON-format bank.
type Adapter struct {
	profile    domain.BankProfile
	apiKey     string
	codec      Codec
	httpClient *http.Client
	logger     *slog.Logger
}

var _ threeds.BankAdapter = (*Adapter)(nil)

// NewAdapter creates the adapter from configuration.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		profile: domain.BankProfile{
			Name:           bankName,
			BINPrefixes:    cfg.BINs,
			RequestFormat:  domain.FormatJSON,
			ResponseFormat: domain.ResponseJSON,
			Endpoint:       cfg.BaseURL,
			Enabled:        cfg.Enabled,
			TestMode:       cfg.TestMode,
		},
		apiKey:     cfg.APIKey,
		codec:      Codec{merchantID: cfg.MerchantID},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// BankName implements threeds.BankAdapter.
func (a *Adapter) BankName() string { return a.profile.Name }

// RequestFormat implements threeds.BankAdapter.
func (a *Adapter) RequestFormat() domain.WireFormat { return a.profile.RequestFormat }

// ResponseFormat implements threeds.BankAdapter.
func (a *Adapter) ResponseFormat() domain.ResponseFormat { return a.profile.ResponseFormat }

// OwnsBIN implements threeds.BankAdapter.
func (a *Adapter) OwnsBIN(cardNumber string) bool {
	return domain.MatchBIN(cardNumber, a.profile.BINPrefixes)
}

// IsConfigured implements threeds.BankAdapter.
func (a *Adapter) IsConfigured() bool {
	return a.profile.Enabled && a.profile.Endpoint != "" && a.codec.merchantID != "" && a.apiKey != ""
}

// Initiate implements threeds.BankAdapter.
func (a *Adapter) Initiate(ctx context.Context, req *domain.AuthenticationRequest) *domain.AuthenticationResult {
	body, err := a.codec.EncodeInitiation(req)
	if err != nil {
		a.logger.Error("failed to encode initiation", "order_id", req.OrderID, "error", err)
		return domain.ErrorResult(domain.CodeTransportError, "failed to encode initiation request")
	}

	respBody, err := a.post(ctx, "/v1/threeds/enroll", body)
	if err != nil {
		a.logger.Error("initiation call failed",
			"order_id", req.OrderID,
			"bank", bankName,
			"error", err,
		)
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}

	resp, err := a.codec.DecodeInitiation(respBody)
	if err != nil {
		a.logger.Error("unreadable initiation response",
			"order_id", req.OrderID,
			"raw_body", string(respBody),
			"error", err,
		)
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}

	switch resp.Result {
	case "ENROLLED":
		// Step-up required: hand the cardholder to the ACS.
		return &domain.AuthenticationResult{
			Status:        domain.StatusInitiated,
			RedirectURL:   resp.AcsURL,
			TransactionID: resp.TransactionID,
		}
	case "NOT_ENROLLED":
		// Card not enrolled in step-up authentication; payment proceeds.
		return &domain.AuthenticationResult{
			Success:       true,
			Status:        domain.StatusNotEnrolled,
			TransactionID: resp.TransactionID,
		}
	case "DECLINED":
		return &domain.AuthenticationResult{
			Status:       domain.StatusFailed,
			ErrorCode:    domain.CodeBankDeclined,
			ErrorMessage: resp.ErrorMessage,
		}
	default:
		return domain.ErrorResult(resp.ErrorCode,
			fmt.Sprintf("unexpected enrollment result %q: %s", resp.Result, resp.ErrorMessage))
	}
}

// ParseCallback implements threeds.BankAdapter.
func (a *Adapter) ParseCallback(rawBody []byte) *domain.AuthenticationResult {
	result, err := a.codec.DecodeCallback(rawBody)
	if err != nil {
		return domain.ErrorResult(domain.CodeMalformedCallback, err.Error())
	}
	return result
}

// Ping verifies the bank endpoint is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.profile.Endpoint+"/v1/ping", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", bankName, err)
	}
	defer resp.Body.Close()
	return nil
}

func (a *Adapter) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.profile.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("bank api error: status=%d body=%s", httpResp.StatusCode, string(respBody))
	}

	return respBody, nil
}
