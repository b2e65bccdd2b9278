package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/deidaraiorek/campusrag/internal/middleware"
)

// SearchRequest is the body of POST /search and POST /agent. A missing
// num_results falls back to the handler default.
type SearchRequest struct {
	Query      string `json:"query"`
	NumResults *int   `json:"num_results,omitempty"`
}

type SearchResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

type Handler struct {
	service  *Service
	defaultK int
}

func NewHandler(service *Service, defaultK int) *Handler {
	if defaultK < 1 {
		defaultK = 5
	}
	return &Handler{service: service, defaultK: defaultK}
}

// DecodeRequest reads and validates a search request body.
func DecodeRequest(r *http.Request, defaultK int) (SearchRequest, int, error) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, 0, err
	}
	k := defaultK
	if req.NumResults != nil {
		k = *req.NumResults
	}
	if k < 1 {
		return req, k, ErrInvalidK
	}
	return req, k, nil
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, k, err := DecodeRequest(r, h.defaultK)
	if err != nil {
		WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.service.Search(ctx, req.Query, k)
	if err != nil {
		if errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrInvalidK) {
			WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "search failed", "error", err, "query", req.Query)
		WriteError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(SearchResponse{Query: req.Query, Results: results}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func WriteError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
