package agent

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/deidaraiorek/campusrag/internal/retrieval"
)

type Handler struct {
	agent    *Agent
	defaultK int
}

func NewHandler(a *Agent, defaultK int) *Handler {
	if defaultK < 1 {
		defaultK = 5
	}
	return &Handler{agent: a, defaultK: defaultK}
}

// Ask streams the answer as plain text, flushing after every fragment.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, k, err := retrieval.DecodeRequest(r, h.defaultK)
	if err != nil {
		retrieval.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := h.agent.Answer(ctx, req.Query, k)
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyQuery) || errors.Is(err, retrieval.ErrInvalidK) {
			retrieval.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "retrieval failed", "error", err, "query", req.Query)
		retrieval.WriteError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for frag := range answer {
		if _, err := w.Write([]byte(frag)); err != nil {
			slog.WarnContext(ctx, "client went away", "error", err)
			return
		}
		_ = rc.Flush()
	}
}
