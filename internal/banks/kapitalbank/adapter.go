// Package kapitalbank integrates the XML-format issuing bank. The bank
// answers the initiation document with a hosted-page redirect URL and posts
// its result back as an XML document.
package kapitalbank

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

const bankName = "kapitalbank"

// Config holds adapter configuration and credentials.
type Config struct {
	Endpoint   string        `envconfig:"KAPITALBANK_ENDPOINT"`
	MerchantID string        `envconfig:"KAPITALBANK_MERCHANT_ID"`
	Terminal   string        `envconfig:"KAPITALBANK_TERMINAL"`
	CertKey    string        `envconfig:"KAPITALBANK_CERT_KEY"`
	BINs       []string      `envconfig:"KAPITALBANK_BINS" default:"482494,404347"`
	Enabled    bool          `envconfig:"KAPITALBANK_ENABLED" default:"true"`
	TestMode   bool          `envconfig:"KAPITALBANK_TEST_MODE" default:"false"`
	Timeout    time.Duration `envconfig:"KAPITALBANK_TIMEOUT" default:"20s"`
}

// Adapter implements threeds.BankAdapter for the XML-format bank.
type Adapter struct {
	profile    domain.BankProfile
	certKey    string
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
			RequestFormat:  domain.FormatXML,
			ResponseFormat: domain.ResponseXML,
			Endpoint:       cfg.Endpoint,
			Enabled:        cfg.Enabled,
			TestMode:       cfg.TestMode,
		},
		certKey:    cfg.CertKey,
		codec:      Codec{merchantID: cfg.MerchantID, terminal: cfg.Terminal},
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
		a.codec.merchantID != "" && a.codec.terminal != "" && a.certKey != ""
}

// Initiate implements threeds.BankAdapter.
func (a *Adapter) Initiate(ctx context.Context, req *domain.AuthenticationRequest) *domain.AuthenticationResult {
	body, err := a.codec.EncodeInitiation(req)
	if err != nil {
		a.logger.Error("failed to encode initiation", "order_id", req.OrderID, "error", err)
		return domain.ErrorResult(domain.CodeTransportError, "failed to encode initiation request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.profile.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/xml")
	httpReq.Header.Set("X-Cert-Key", a.certKey)

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

	resp, err := a.codec.DecodeInitiation(respBody)
	if err != nil {
		a.logger.Error("unreadable initiation response",
			"order_id", req.OrderID,
			"raw_body", string(respBody),
			"error", err,
		)
		return domain.ErrorResult(domain.CodeTransportError, err.Error())
	}

	switch resp.Status {
	case "REDIRECT":
		return &domain.AuthenticationResult{
			Status:        domain.StatusInitiated,
			RedirectURL:   resp.RedirectURL,
			TransactionID: resp.SessionID,
		}
	case "NOT_ENROLLED":
		return &domain.AuthenticationResult{
			Success:       true,
			Status:        domain.StatusNotEnrolled,
			TransactionID: resp.SessionID,
		}
	case "DECLINED":
		return &domain.AuthenticationResult{
			Status:       domain.StatusFailed,
			ErrorCode:    domain.CodeBankDeclined,
			ErrorMessage: resp.Message,
		}
	default:
		return domain.ErrorResult(resp.Code,
			fmt.Sprintf("unexpected gateway status %q: %s", resp.Status, resp.Message))
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
