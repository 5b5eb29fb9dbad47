package domain

import (
	"time"

	"cardauth/internal/common/money"
)

// BankProfile is the static description of one issuing-bank integration.
// Profiles are built once at startup and never mutated.
type BankProfile struct {
	Name           string
	BINPrefixes    []string
	RequestFormat  WireFormat
	ResponseFormat ResponseFormat
	Endpoint       string
	Enabled        bool
	TestMode       bool
}

// BrowserInfo carries the client fingerprint fields richer protocol
// versions require. All values come from the initiating request.
type BrowserInfo struct {
	IP             string `json:"ip"`
	UserAgent      string `json:"user_agent"`
	AcceptHeader   string `json:"accept_header"`
	Language       string `json:"language"`
	ScreenWidth    int    `json:"screen_width"`
	ScreenHeight   int    `json:"screen_height"`
	ColorDepth     int    `json:"color_depth"`
	TimezoneOffset int    `json:"timezone_offset"`
	JavaEnabled    bool   `json:"java_enabled"`
}

// AuthenticationRequest is the canonical, bank-agnostic initiation request.
// PAN and expiry are only consumed by the wire codec during the initiation
// call; the attempt store sees the masked fields alone.
type AuthenticationRequest struct {
	OrderID    string
	MerchantID string
	CustomerID string

	PAN         string
	CardBIN     string
	CardLast4   string
	CardHolder  string
	ExpiryMonth string
	ExpiryYear  string

	Amount      money.Money
	Description string

	SuccessURL  string
	FailURL     string
	CallbackURL string

	Browser BrowserInfo
}

// AuthenticationResult is the canonical outcome returned to every caller,
// for both initiation and callback handling.
type AuthenticationResult struct {
	Success bool   `json:"success"`
	Status  Status `json:"status"`
	OrderID string `json:"order_id,omitempty"`

	BankName  string `json:"bank_name,omitempty"`
	CardBrand string `json:"card_brand,omitempty"`

	// RedirectURL is set when the bank wants the cardholder sent to a
	// hosted page. AutoSubmitHTML is set instead when the bank protocol
	// requires a browser POST, rendered as a self-submitting form.
	RedirectURL    string `json:"redirect_url,omitempty"`
	AutoSubmitHTML string `json:"-"`

	TransactionID string `json:"transaction_id,omitempty"`
	AuthCode      string `json:"auth_code,omitempty"`
	ECI           string `json:"eci,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Pending reports whether the result still awaits a bank callback.
func (r *AuthenticationResult) Pending() bool {
	return r.Status == StatusInitiated
}

// ErrorResult builds an ERROR outcome with the given code and message.
func ErrorResult(code, message string) *AuthenticationResult {
	return &AuthenticationResult{
		Success:      false,
		Status:       StatusError,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// Attempt is one authentication cycle for one order id, from initiation to
// terminal outcome. Owned exclusively by the attempt store.
type Attempt struct {
	OrderID     string                `json:"order_id"`
	BankName    string                `json:"bank_name"`
	Status      Status                `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	FinalizedAt *time.Time            `json:"finalized_at,omitempty"`
	Result      *AuthenticationResult `json:"result,omitempty"`
}
