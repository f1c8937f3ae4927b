package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/core"
)

type errorResponse struct {
	Error            string `json:"error"`
	Stage            string `json:"stage,omitempty"`
	PartiallyWritten bool   `json:"partially_written,omitempty"`
	Retryable        bool   `json:"retryable"`
}

// callerID is the authenticated user, or "anonymous" when /api runs without JWT.
func callerID(r *http.Request) string {
	if id, ok := middleware.UserIDFromContext(r.Context()); ok {
		return id
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeIngestError maps a pipeline failure onto an HTTP status.
func writeIngestError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Retryable: core.IsRetryable(err)}
	var ie *core.IngestionError
	if errors.As(err, &ie) {
		resp.Stage = string(ie.Stage)
		resp.PartiallyWritten = ie.PartiallyWritten()
	}
	writeJSON(w, ingestStatusCode(err), resp)
}

func ingestStatusCode(err error) int {
	switch {
	case errors.Is(err, core.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrFetch), errors.Is(err, core.ErrEmbedding), errors.Is(err, core.ErrIndexWrite):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
