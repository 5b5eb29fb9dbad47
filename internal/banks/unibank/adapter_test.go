package unibank

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardauth/internal/common/money"
	"cardauth/internal/threeds/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:   endpoint,
		MerchantID: "UNI-MERCH",
		SecretKey:  "secret-1",
		BINs:       []string{"416973", "429329"},
		Enabled:    true,
		Timeout:    5 * time.Second,
	}
}

func testRequest() *domain.AuthenticationRequest {
	return &domain.AuthenticationRequest{
		OrderID:     "ORDER-1",
		PAN:         "4169730000000003",
		CardHolder:  "JOHN DOE",
		ExpiryMonth: "12",
		ExpiryYear:  "29",
		Amount:      money.New(1050, money.AZN),
		CallbackURL: "https://pay.example.com/3dsecure/callback/unibank",
		SuccessURL:  "https://pay.example.com/3dsecure/result/success",
		FailURL:     "https://pay.example.com/3dsecure/result/fail",
		Browser: domain.BrowserInfo{
			IP:        "203.0.113.7",
			UserAgent: "Mozilla/5.0",
		},
	}
}

func TestCodec_EncodeInitiation(t *testing.T) {
	codec := Codec{merchantID: "UNI-MERCH"}

	body := codec.EncodeInitiation(testRequest())
	values, err := url.ParseQuery(string(body))
	require.NoError(t, err)

	assert.Equal(t, "UNI-MERCH", values.Get("MERCHANT"))
	assert.Equal(t, "ORDER-1", values.Get("ORDER_ID"))
	assert.Equal(t, "10.50", values.Get("AMOUNT"))
	assert.Equal(t, "AZN", values.Get("CURRENCY"))
	assert.Equal(t, "12/29", values.Get("EXPIRY"))
	assert.Equal(t, "https://pay.example.com/3dsecure/callback/unibank", values.Get("TERM_URL"))
}

func TestCodec_BuildAutoSubmitForm(t *testing.T) {
	codec := Codec{}

	html, err := codec.BuildAutoSubmitForm(&initiationReply{
		AcsURL: "https://acs.unibank.example/pareq",
		PaReq:  "eJxVUtt...base64",
		MD:     "ORDER-1",
	}, "https://pay.example.com/3dsecure/callback/unibank")
	require.NoError(t, err)

	assert.Contains(t, html, `action="https://acs.unibank.example/pareq"`)
	assert.Contains(t, html, `name="PaReq"`)
	assert.Contains(t, html, `name="MD" value="ORDER-1"`)
	assert.Contains(t, html, `name="TermUrl" value="https://pay.example.com/3dsecure/callback/unibank"`)
	assert.Contains(t, html, "document.forms[0].submit()")
	assert.Contains(t, html, "<noscript>", "form must degrade without javascript")
}

func TestCodec_DecodeCallbackOutcomes(t *testing.T) {
	codec := Codec{}

	tests := []struct {
		name        string
		paresStatus string
		wantStatus  domain.Status
		wantSuccess bool
	}{
		{"fully authenticated", "Y", domain.StatusAuthenticated, true},
		{"attempt acknowledged", "A", domain.StatusAuthenticated, true},
		{"not authenticated", "N", domain.StatusFailed, false},
		{"cancelled", "C", domain.StatusCancelled, false},
		{"unavailable", "U", domain.StatusError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			form.Set("MD", "ORDER-1")
			form.Set("PARES_STATUS", tt.paresStatus)

			result, err := codec.DecodeCallback([]byte(form.Encode()))
			require.NoError(t, err)
			assert.Equal(t, "ORDER-1", result.OrderID)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantSuccess, result.Success)
		})
	}
}

func TestCodec_DecodeCallbackOrderIDFallback(t *testing.T) {
	codec := Codec{}

	form := url.Values{}
	form.Set("ORDER_ID", "ORDER-2")
	form.Set("PARES_STATUS", "Y")

	result, err := codec.DecodeCallback([]byte(form.Encode()))
	require.NoError(t, err)
	assert.Equal(t, "ORDER-2", result.OrderID)
}

func TestCodec_DecodeCallbackMalformed(t *testing.T) {
	codec := Codec{}

	_, err := codec.DecodeCallback([]byte("PARES_STATUS=Y"))
	assert.Error(t, err, "a callback without MD or ORDER_ID cannot be correlated")

	form := url.Values{}
	form.Set("MD", "ORDER-1")
	form.Set("PARES_STATUS", "Z")
	_, err = codec.DecodeCallback([]byte(form.Encode()))
	assert.Error(t, err, "unknown PaRes status must not be guessed at")
}

func TestAdapter_InitiateAutoSubmitForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret-1", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		values, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		assert.Equal(t, "ORDER-1", values.Get("ORDER_ID"))

		reply := url.Values{}
		reply.Set("STATUS", "REDIRECT")
		reply.Set("ACS_URL", "https://acs.unibank.example/pareq")
		reply.Set("PAREQ", "eJxVUtt")
		reply.Set("MD", "ORDER-1")
		w.Write([]byte(reply.Encode()))
	}))
	defer server.Close()

	a := NewAdapter(testConfig(server.URL), testLogger())
	result := a.Initiate(context.Background(), testRequest())

	assert.Equal(t, domain.StatusInitiated, result.Status)
	assert.Empty(t, result.RedirectURL)
	assert.True(t, strings.Contains(result.AutoSubmitHTML, "https://acs.unibank.example/pareq"))
	assert.Equal(t, "ORDER-1", result.TransactionID)
}

func TestAdapter_InitiateDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := url.Values{}
		reply.Set("STATUS", "DECLINED")
		reply.Set("MESSAGE", "card blocked")
		w.Write([]byte(reply.Encode()))
	}))
	defer server.Close()

	a := NewAdapter(testConfig(server.URL), testLogger())
	result := a.Initiate(context.Background(), testRequest())

	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.CodeBankDeclined, result.ErrorCode)
	assert.Equal(t, "card blocked", result.ErrorMessage)
}

func TestAdapter_InitiateBankUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	a := NewAdapter(testConfig(server.URL), testLogger())
	result := a.Initiate(context.Background(), testRequest())

	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.CodeTransportError, result.ErrorCode)
}
