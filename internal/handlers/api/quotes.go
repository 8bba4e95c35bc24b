// Package api exposes the deal engine over JSON.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/deal"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/middleware"
)

// maxBodyBytes bounds a quote request body.
const maxBodyBytes = 1 << 20

// QuoteHandler serves tax, finance and lease quotes.
type QuoteHandler struct {
	engine *deal.Engine
	logger *slog.Logger
}

// NewQuoteHandler creates a quote handler over engine.
func NewQuoteHandler(engine *deal.Engine, logger *slog.Logger) *QuoteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the quote and rules routes on the given mux.
func (h *QuoteHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/quotes/tax", h.QuoteTax)
	mux.HandleFunc("POST /api/v1/quotes/finance", h.QuoteFinance)
	mux.HandleFunc("POST /api/v1/quotes/lease", h.QuoteLease)
	mux.HandleFunc("GET /api/v1/rules", h.Rules)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// errorJSON is the error response body. Field names the offending input
// when the failure is attributable to one.
type errorJSON struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type healthJSON struct {
	Status       string `json:"status"`
	RulesVersion string `json:"rules_version,omitempty"`
}

// QuoteTax handles POST /api/v1/quotes/tax
func (h *QuoteHandler) QuoteTax(w http.ResponseWriter, r *http.Request) {
	var req deal.TaxRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.QuoteTax(req)
	if err != nil {
		h.writeError(w, r, "tax", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// QuoteFinance handles POST /api/v1/quotes/finance
func (h *QuoteHandler) QuoteFinance(w http.ResponseWriter, r *http.Request) {
	var req deal.FinanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.QuoteFinance(req)
	if err != nil {
		h.writeError(w, r, "finance", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// QuoteLease handles POST /api/v1/quotes/lease
func (h *QuoteHandler) QuoteLease(w http.ResponseWriter, r *http.Request) {
	var req deal.LeaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.QuoteLease(req)
	if err != nil {
		h.writeError(w, r, "lease", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Rules handles GET /api/v1/rules
func (h *QuoteHandler) Rules(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.Rules()
	if err != nil {
		h.writeError(w, r, "rules", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Health handles GET /api/v1/health. The service is healthy once a rule
// snapshot is installed.
func (h *QuoteHandler) Health(w http.ResponseWriter, r *http.Request) {
	version := h.engine.Version()
	if version == "" {
		writeJSON(w, http.StatusServiceUnavailable, healthJSON{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthJSON{Status: "ok", RulesVersion: version})
}

func (h *QuoteHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: decodeMessage(err)})
		return false
	}
	if dec.More() {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "request body must contain a single JSON object"})
		return false
	}
	return true
}

func decodeMessage(err error) string {
	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		return fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
	case errors.Is(err, io.EOF):
		return "request body is empty"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("invalid value for %s", typeErr.Field)
	default:
		return "invalid request body: " + err.Error()
	}
}

// statusFor maps a calculation failure to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, calcerr.ErrInvalidInput),
		errors.Is(err, calcerr.ErrInvalidTerm),
		errors.Is(err, calcerr.ErrNegativeAmountFinanced):
		return http.StatusBadRequest
	case errors.Is(err, calcerr.ErrUnknownJurisdiction),
		errors.Is(err, calcerr.ErrUnsupportedState),
		errors.Is(err, calcerr.ErrReciprocityPolicyMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, deal.ErrRulesNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *QuoteHandler) writeError(w http.ResponseWriter, r *http.Request, kind string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		id, _ := middleware.RequestIDFromContext(r.Context())
		h.logger.Error("quote failed", "kind", kind, "error", err, "request_id", id)
		writeJSON(w, status, errorJSON{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorJSON{Error: err.Error(), Field: calcerr.Field(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// At this point headers are already sent; just log the error.
		slog.Error("failed to encode JSON response", "error", err)
	}
}
