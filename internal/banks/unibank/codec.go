package unibank

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"

	"cardauth/internal/threeds/domain"
)

// The bank speaks url-encoded forms in both directions: the initiation
// body is a form POST, the reply carries the ACS address plus the opaque
// PaReq/MD pair, and the callback is the ACS result form.

// initiationReply is the parsed form-encoded initiation response.
type initiationReply struct {
	Status  string // REDIRECT, NOT_ENROLLED, DECLINED
	AcsURL  string
	PaReq   string
	MD      string
	Code    string
	Message string
}

// acsFormTemplate renders the hidden, self-submitting form that hands the
// cardholder to the bank's hosted authentication page.
var acsFormTemplate = template.Must(template.New("acsform").Parse(`<!DOCTYPE html>
<html>
<head><title>Redirecting to your bank</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.AcsURL}}">
<input type="hidden" name="PaReq" value="{{.PaReq}}">
<input type="hidden" name="MD" value="{{.MD}}">
<input type="hidden" name="TermUrl" value="{{.TermURL}}">
<noscript><input type="submit" value="Continue"></noscript>
</form>
</body>
</html>
`))

// Codec performs pure serialization between the canonical request/result
// types and the bank's form-encoded bodies. No network I/O.
type Codec struct {
	merchantID string
}

// EncodeInitiation serializes the canonical request into the bank's form
// body.
func (c Codec) EncodeInitiation(req *domain.AuthenticationRequest) []byte {
	form := url.Values{}
	form.Set("MERCHANT", c.merchantID)
	form.Set("ORDER_ID", req.OrderID)
	form.Set("AMOUNT", req.Amount.MajorString())
	form.Set("CURRENCY", string(req.Amount.Currency))
	form.Set("PAN", req.PAN)
	form.Set("EXPIRY", req.ExpiryMonth+"/"+req.ExpiryYear)
	form.Set("HOLDER", req.CardHolder)
	form.Set("DESCRIPTION", req.Description)
	form.Set("TERM_URL", req.CallbackURL)
	form.Set("SUCCESS_URL", req.SuccessURL)
	form.Set("FAIL_URL", req.FailURL)
	form.Set("CLIENT_IP", req.Browser.IP)
	form.Set("USER_AGENT", req.Browser.UserAgent)
	return []byte(form.Encode())
}

// DecodeInitiation parses the form-encoded initiation reply.
func (c Codec) DecodeInitiation(body []byte) (*initiationReply, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode initiation response: %w", err)
	}

	reply := &initiationReply{
		Status:  values.Get("STATUS"),
		AcsURL:  values.Get("ACS_URL"),
		PaReq:   values.Get("PAREQ"),
		MD:      values.Get("MD"),
		Code:    values.Get("CODE"),
		Message: values.Get("MESSAGE"),
	}
	if reply.Status == "" {
		return nil, fmt.Errorf("initiation response missing STATUS field")
	}
	return reply, nil
}

// BuildAutoSubmitForm renders the HTML document that browser-POSTs the
// PaReq/MD pair to the ACS with the callback as TermUrl.
func (c Codec) BuildAutoSubmitForm(reply *initiationReply, termURL string) (string, error) {
	var buf bytes.Buffer
	err := acsFormTemplate.Execute(&buf, map[string]string{
		"AcsURL":  reply.AcsURL,
		"PaReq":   reply.PaReq,
		"MD":      reply.MD,
		"TermURL": termURL,
	})
	if err != nil {
		return "", fmt.Errorf("render acs form: %w", err)
	}
	return buf.String(), nil
}

// DecodeCallback parses the ACS result form into a canonical result. The
// MD field echoes the order id; PARES_STATUS carries the outcome: Y fully
// authenticated, A attempt acknowledged, N not authenticated, C cancelled,
// U authentication unavailable.
func (c Codec) DecodeCallback(body []byte) (*domain.AuthenticationResult, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCallback, err)
	}

	orderID := values.Get("MD")
	if orderID == "" {
		orderID = values.Get("ORDER_ID")
	}
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing MD/ORDER_ID field", domain.ErrMalformedCallback)
	}

	result := &domain.AuthenticationResult{
		OrderID:       orderID,
		TransactionID: values.Get("XID"),
		AuthCode:      values.Get("CAVV"),
		ECI:           values.Get("ECI"),
		ErrorMessage:  values.Get("MESSAGE"),
	}

	status := values.Get("PARES_STATUS")
	switch status {
	case "Y", "A":
		result.Success = true
		result.Status = domain.StatusAuthenticated
		result.ErrorMessage = ""
	case "N":
		result.Status = domain.StatusFailed
		result.ErrorCode = domain.CodeBankDeclined
	case "C":
		result.Status = domain.StatusCancelled
	case "U":
		result.Status = domain.StatusError
		result.ErrorCode = "AUTH_UNAVAILABLE"
	default:
		return nil, fmt.Errorf("%w: unknown PARES_STATUS %q", domain.ErrMalformedCallback, status)
	}

	return result, nil
}
