package alfabank

import (
	"encoding/json"
	"fmt"

	"cardauth/internal/threeds/domain"
)

// Wire types for the bank's JSON enrollment API.

type initiationRequest struct {
	MerchantID string      `json:"merchantId"`
	OrderID    string      `json:"orderId"`
	Amount     int64       `json:"amount"`
	Currency   string      `json:"currency"`
	PAN        string      `json:"pan"`
	Expiry     string      `json:"expiry"` // MMYY
	Cardholder string      `json:"cardholder"`
	TermURL    string      `json:"termUrl"`
	Browser    browserData `json:"browser"`
}

type browserData struct {
	IP             string `json:"ip"`
	UserAgent      string `json:"userAgent"`
	AcceptHeader   string `json:"acceptHeader"`
	Language       string `json:"language"`
	ScreenWidth    int    `json:"screenWidth"`
	ScreenHeight   int    `json:"screenHeight"`
	ColorDepth     int    `json:"colorDepth"`
	TimezoneOffset int    `json:"timezoneOffset"`
	JavaEnabled    bool   `json:"javaEnabled"`
}

type initiationResponse struct {
	Result        string `json:"result"` // ENROLLED, NOT_ENROLLED, DECLINED
	AcsURL        string `json:"acsUrl,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

type callbackPayload struct {
	OrderID       string `json:"orderId"`
	ResultCode    string `json:"resultCode"` // "00" authenticated
	Cavv          string `json:"cavv,omitempty"`
	Eci           string `json:"eci,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Codec performs pure serialization between the canonical request/result
// types and the bank's JSON bodies. No network I/O.
type Codec struct {
	merchantID string
}

// EncodeInitiation serializes the canonical request into the bank's
// enrollment-check body.
func (c Codec) EncodeInitiation(req *domain.AuthenticationRequest) ([]byte, error) {
	body := initiationRequest{
		MerchantID: c.merchantID,
		OrderID:    req.OrderID,
		Amount:     req.Amount.AmountMinor,
		Currency:   string(req.Amount.Currency),
		PAN:        req.PAN,
		Expiry:     req.ExpiryMonth + req.ExpiryYear,
		Cardholder: req.CardHolder,
		TermURL:    req.CallbackURL,
		Browser: browserData{
			IP:             req.Browser.IP,
			UserAgent:      req.Browser.UserAgent,
			AcceptHeader:   req.Browser.AcceptHeader,
			Language:       req.Browser.Language,
			ScreenWidth:    req.Browser.ScreenWidth,
			ScreenHeight:   req.Browser.ScreenHeight,
			ColorDepth:     req.Browser.ColorDepth,
			TimezoneOffset: req.Browser.TimezoneOffset,
			JavaEnabled:    req.Browser.JavaEnabled,
		},
	}
	return json.Marshal(body)
}

// DecodeInitiation parses the bank's enrollment reply.
func (c Codec) DecodeInitiation(body []byte) (*initiationResponse, error) {
	var resp initiationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode initiation response: %w", err)
	}
	if resp.Result == "" {
		return nil, fmt.Errorf("initiation response missing result field")
	}
	return &resp, nil
}

// DecodeCallback parses the bank's asynchronous callback into a canonical
// result. The result code taxonomy comes from the bank's integration
// guide: 00 authenticated, 17 cardholder cancelled, 68 ACS timeout,
// anything else a failed authentication.
func (c Codec) DecodeCallback(body []byte) (*domain.AuthenticationResult, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCallback, err)
	}
	if payload.OrderID == "" {
		return nil, fmt.Errorf("%w: missing orderId", domain.ErrMalformedCallback)
	}

	result := &domain.AuthenticationResult{
		OrderID:       payload.OrderID,
		TransactionID: payload.TransactionID,
		AuthCode:      payload.Cavv,
		ECI:           payload.Eci,
		ErrorMessage:  payload.Message,
	}

	switch payload.ResultCode {
	case "00":
		result.Success = true
		result.Status = domain.StatusAuthenticated
		result.ErrorMessage = ""
	case "17":
		result.Status = domain.StatusCancelled
	case "68":
		result.Status = domain.StatusTimeout
	default:
		result.Status = domain.StatusFailed
		result.ErrorCode = payload.ResultCode
	}

	return result, nil
}
