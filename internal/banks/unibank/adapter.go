// Package unibank integrates the form-encoded issuing bank. The bank's
// protocol requires a browser POST to its ACS, so a successful initiation
// yields a hidden auto-submitting HTML form rather than a plain redirect.
package unibank

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

const bankName = "unibank"

// Config holds adapter configuration and credentials.
type Config struct {
	Endpoint   string        `envconfig:"UNIBANK_ENDPOINT"`
	MerchantID string        `envconfig:"UNIBANK_MERCHANT_ID"`
	SecretKey  string        `envconfig:"UNIBANK_SECRET_KEY"`
	BINs       []string      `envconfig:"UNIBANK_BINS" default:"416973,429329,544433"`
	Enabled    bool          `envconfig:"UNIBANK_ENABLED" default:"true"`
	TestMode   bool          `envconfig:"UNIBANK_TEST_MODE" default:"false"`
	Timeout    time.Duration `envconfig:"UNIBANK_TIMEOUT" default:"15s"`
}

// Adapter implements threeds.BankAdapter for the form-encoded bank.
type Adapter struct {
	profile    domain.BankProfile
	secretKey  string
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
			RequestFormat:  domain.FormatForm,
			ResponseFormat: domain.ResponseAutoForm,
			Endpoint:       cfg.Endpoint,
			Enabled:        cfg.Enabled,
			TestMode:       cfg.TestMode,
		},
		secretKey:  cfg.SecretKey,
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
	return a.profile.Enabled && a.profile.Endpoint != "" &&
		a.codec.merchantID != "" && a.secretKey != ""
}

// Initiate implements threeds.BankAdapter.
func (a *Adapter) Initiate(ctx context.Context, req *domain.AuthenticationRequest) *domain.AuthenticationResult {
	body := a.codec.EncodeInitiation(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.profile.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("X-Api-Key", a.secretKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		a.logger.Error("initiation call failed",
			"order_id", req.OrderID,
			"bank", bankName,
			"error", err,
		)
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}

	if httpResp.StatusCode >= 400 {
		return domain.ErrorResult(domain.CodeTransportError,
			fmt.Sprintf("bank gateway error: status=%d", httpResp.StatusCode))
	}

	reply, err := a.codec.DecodeInitiation(respBody)
	if err != nil {
		a.logger.Error("unreadable initiation response",
			"order_id", req.OrderID,
			"raw_body", string(respBody),
			"error", err,
		)
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}

	switch reply.Status {
	case "REDIRECT":
		html, err := a.codec.BuildAutoSubmitForm(reply, req.CallbackURL)
		if err != nil {
			return domain.ErrorResult(domain.CodeTransportError, err.Error())
		}
		return &domain.AuthenticationResult{
			Status:         domain.StatusInitiated,
			AutoSubmitHTML: html,
			TransactionID:  reply.MD,
		}
	case "NOT_ENROLLED":
		return &domain.AuthenticationResult{
			Success: true,
			Status:  domain.StatusNotEnrolled,
		}
	case "DECLINED":
		return &domain.AuthenticationResult{
			Status:       domain.StatusFailed,
			ErrorCode:    domain.CodeBankDeclined,
			ErrorMessage: reply.Message,
		}
	default:
		return domain.ErrorResult(reply.Code,
			fmt.Sprintf("unexpected gateway status %q: %s", reply.Status, reply.Message))
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

// Ping verifies the bank gateway is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.profile.Endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", bankName, err)
	}
	defer resp.Body.Close()
	return nil
}
