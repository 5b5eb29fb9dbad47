// Package api exposes the 3-D Secure HTTP surface.
package api

import (
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"cardauth/internal/common/api"
	"cardauth/internal/common/middleware"
	"cardauth/internal/common/money"
	"cardauth/internal/threeds"
	"cardauth/internal/threeds/domain"
)

// Callback bodies are small; anything larger is hostile.
const maxCallbackBody = 1 << 20

// Handler handles 3-D Secure HTTP requests
type Handler struct {
	service *threeds.Service
}

// NewHandler creates a new handler
func NewHandler(service *threeds.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the 3-D Secure routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/initiate", h.Initiate)
	r.Post("/callback/{bankName}", h.Callback)
	r.Post("/check-support", h.CheckSupport)
	r.Get("/attempts/{orderID}", h.GetAttempt)
	r.Get("/health", h.Health)

	r.Get("/result/success", h.SuccessPage)
	r.Get("/result/fail", h.FailPage)

	return r
}

// InitiateRequest is the API request for starting an authentication
type InitiateRequest struct {
	OrderID     string `json:"order_id" validate:"omitempty,max=64"`
	MerchantID  string `json:"merchant_id" validate:"required,max=64"`
	CustomerID  string `json:"customer_id" validate:"omitempty,max=64"`
	CardNumber  string `json:"card_number" validate:"required,min=12,max=23"`
	CardHolder  string `json:"card_holder" validate:"required,max=128"`
	ExpiryMonth string `json:"expiry_month" validate:"required,len=2,numeric"`
	ExpiryYear  string `json:"expiry_year" validate:"required,len=2,numeric"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Description string `json:"description" validate:"omitempty,max=255"`

	Browser struct {
		Language       string `json:"language"`
		ScreenWidth    int    `json:"screen_width"`
		ScreenHeight   int    `json:"screen_height"`
		ColorDepth     int    `json:"color_depth"`
		TimezoneOffset int    `json:"timezone_offset"`
		JavaEnabled    bool   `json:"java_enabled"`
	} `json:"browser"`
}

// Initiate handles POST /3dsecure/initiate
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	if !money.IsValid(money.Currency(req.Currency)) {
		api.BadRequest(w, "unsupported currency")
		return
	}

	input := threeds.InitiateInput{
		OrderID:     req.OrderID,
		MerchantID:  req.MerchantID,
		CustomerID:  req.CustomerID,
		CardNumber:  req.CardNumber,
		CardHolder:  req.CardHolder,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Description: req.Description,
		Browser: domain.BrowserInfo{
			IP:             middleware.GetClientIP(r.Context()),
			UserAgent:      r.UserAgent(),
			AcceptHeader:   r.Header.Get("Accept"),
			Language:       req.Browser.Language,
			ScreenWidth:    req.Browser.ScreenWidth,
			ScreenHeight:   req.Browser.ScreenHeight,
			ColorDepth:     req.Browser.ColorDepth,
			TimezoneOffset: req.Browser.TimezoneOffset,
			JavaEnabled:    req.Browser.JavaEnabled,
		},
	}
	if input.Browser.Language == "" {
		input.Browser.Language = r.Header.Get("Accept-Language")
	}

	result := h.service.Initiate(r.Context(), input)

	// Auto-submit banks produce a full HTML document the browser must
	// render and submit; everything else is a JSON result.
	if result.AutoSubmitHTML != "" {
		api.WriteHTML(w, http.StatusOK, result.AutoSubmitHTML)
		return
	}

	api.WriteData(w, http.StatusOK, result)
}

// Callback handles POST /3dsecure/callback/{bankName}. The response is a
// redirect instruction sending the cardholder's browser to the generic
// success or fail landing page.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	bankName := chi.URLParam(r, "bankName")
	if bankName == "" {
		api.BadRequest(w, "bank name required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		api.BadRequest(w, "failed to read callback body")
		return
	}
	defer r.Body.Close()

	result := h.service.HandleCallback(r.Context(), bankName, body)

	target := "/3dsecure/result/fail"
	if result.Success {
		target = "/3dsecure/result/success"
	}

	query := url.Values{}
	if result.OrderID != "" {
		query.Set("order_id", result.OrderID)
	}
	query.Set("status", string(result.Status))
	if result.ErrorCode != "" {
		query.Set("code", result.ErrorCode)
	}

	http.Redirect(w, r, target+"?"+query.Encode(), http.StatusFound)
}

// CheckSupportRequest is the API request for BIN support lookup
type CheckSupportRequest struct {
	CardNumber string `json:"card_number" validate:"required,min=6,max=23"`
}

// CheckSupport handles POST /3dsecure/check-support
func (h *Handler) CheckSupport(w http.ResponseWriter, r *http.Request) {
	var req CheckSupportRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, h.service.CheckSupport(req.CardNumber))
}

// GetAttempt handles GET /3dsecure/attempts/{orderID} for diagnostics
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		api.BadRequest(w, "order ID required")
		return
	}

	attempt, err := h.service.GetAttempt(r.Context(), orderID)
	if err != nil {
		api.NotFound(w, "attempt not found")
		return
	}

	api.WriteData(w, http.StatusOK, attempt)
}

// Health handles GET /3dsecure/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	api.WriteData(w, http.StatusOK, h.service.Health(r.Context()))
}

// SuccessPage handles GET /3dsecure/result/success
func (h *Handler) SuccessPage(w http.ResponseWriter, r *http.Request) {
	api.WriteHTML(w, http.StatusOK,
		`<!DOCTYPE html><html><body><h1>Payment authenticated</h1><p>You can close this page.</p></body></html>`)
}

// FailPage handles GET /3dsecure/result/fail
func (h *Handler) FailPage(w http.ResponseWriter, r *http.Request) {
	api.WriteHTML(w, http.StatusOK,
		`<!DOCTYPE html><html><body><h1>Authentication failed</h1><p>Your payment was not completed.</p></body></html>`)
}
