package kapitalbank

import (
	"encoding/xml"
	"fmt"

	"cardauth/internal/common/money"
	"cardauth/internal/threeds/domain"
)

// Wire types for the bank's XML authentication gateway.

type authRequest struct {
	XMLName     xml.Name `xml:"AuthenticationRequest"`
	MerchantID  string   `xml:"Merchant>ID"`
	Terminal    string   `xml:"Merchant>Terminal"`
	OrderID     string   `xml:"Order>ID"`
	Amount      string   `xml:"Order>Amount"`   // major units, e.g. 10.50
	Currency    string   `xml:"Order>Currency"` // ISO 4217 numeric
	Description string   `xml:"Order>Description,omitempty"`
	PAN         string   `xml:"Card>PAN"`
	Expiry      string   `xml:"Card>Expiry"` // YYMM
	Holder      string   `xml:"Card>Holder,omitempty"`
	TermURL     string   `xml:"TermUrl"`
	ClientIP    string   `xml:"Client>IP,omitempty"`
	UserAgent   string   `xml:"Client>UserAgent,omitempty"`
}

type authResponse struct {
	XMLName     xml.Name `xml:"AuthenticationResponse"`
	Status      string   `xml:"Status"` // REDIRECT, NOT_ENROLLED, DECLINED
	RedirectURL string   `xml:"RedirectURL,omitempty"`
	SessionID   string   `xml:"SessionID,omitempty"`
	Code        string   `xml:"Code,omitempty"`
	Message     string   `xml:"Message,omitempty"`
}

type paymentResult struct {
	XMLName   xml.Name `xml:"PaymentResult"`
	OrderID   string   `xml:"OrderID"`
	Code      string   `xml:"ResponseCode"` // "000" authenticated
	CAVV      string   `xml:"CAVV,omitempty"`
	ECI       string   `xml:"ECI,omitempty"`
	SessionID string   `xml:"SessionID,omitempty"`
	Message   string   `xml:"Message,omitempty"`
}

// Codec performs pure serialization between the canonical request/result
// types and the bank's XML documents. No network I/O.
type Codec struct {
	merchantID string
	terminal   string
}

// EncodeInitiation serializes the canonical request into the bank's XML
// authentication document.
func (c Codec) EncodeInitiation(req *domain.AuthenticationRequest) ([]byte, error) {
	currency := string(req.Amount.Currency)
	if info, ok := money.GetCurrencyInfo(req.Amount.Currency); ok {
		currency = info.NumericISO
	}

	doc := authRequest{
		MerchantID:  c.merchantID,
		Terminal:    c.terminal,
		OrderID:     req.OrderID,
		Amount:      req.Amount.MajorString(),
		Currency:    currency,
		Description: req.Description,
		PAN:         req.PAN,
		Expiry:      req.ExpiryYear + req.ExpiryMonth,
		Holder:      req.CardHolder,
		TermURL:     req.CallbackURL,
		ClientIP:    req.Browser.IP,
		UserAgent:   req.Browser.UserAgent,
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal auth request: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// DecodeInitiation parses the bank's XML reply.
func (c Codec) DecodeInitiation(body []byte) (*authResponse, error) {
	var resp authResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode initiation response: %w", err)
	}
	if resp.Status == "" {
		return nil, fmt.Errorf("initiation response missing Status element")
	}
	return &resp, nil
}

// DecodeCallback parses the bank's XML callback document into a canonical
// result. Response codes: 000 authenticated, 204 not enrolled, 400
// cancelled by cardholder, 408 ACS timeout, everything else failed.
func (c Codec) DecodeCallback(body []byte) (*domain.AuthenticationResult, error) {
	var payload paymentResult
	if err := xml.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCallback, err)
	}
	if payload.OrderID == "" {
		return nil, fmt.Errorf("%w: missing OrderID element", domain.ErrMalformedCallback)
	}

	result := &domain.AuthenticationResult{
		OrderID:       payload.OrderID,
		TransactionID: payload.SessionID,
		AuthCode:      payload.CAVV,
		ECI:           payload.ECI,
		ErrorMessage:  payload.Message,
	}

	switch payload.Code {
	case "000":
		result.Success = true
		result.Status = domain.StatusAuthenticated
		result.ErrorMessage = ""
	case "204":
		result.Success = true
		result.Status = domain.StatusNotEnrolled
		result.ErrorMessage = ""
	case "400":
		result.Status = domain.StatusCancelled
	case "408":
		result.Status = domain.StatusTimeout
	default:
		result.Status = domain.StatusFailed
		result.ErrorCode = payload.Code
	}

	return result, nil
}
