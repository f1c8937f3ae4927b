package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/services"
	"go.uber.org/zap"
)

type IngestHandler struct {
	ingestor ingestion_engine.Ingestor
	queue    services.Enqueuer
	logger   *zap.Logger
}

func NewIngestHandler(ing ingestion_engine.Ingestor, queue services.Enqueuer, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{ingestor: ing, queue: queue, logger: logger}
}

type ingestRequest struct {
	FileKey string `json:"file_key"`
}

type ingestResponse struct {
	FileKey   string           `json:"file_key"`
	Namespace string           `json:"namespace"`
	Segments  []models.Segment `json:"segments"`
}

type queuedResponse struct {
	FileKey string              `json:"file_key"`
	Status  models.IngestStatus `json:"status"`
}

func decodeIngestRequest(r *http.Request) (string, bool) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", false
	}
	key := strings.TrimSpace(req.FileKey)
	return key, key != ""
}

// Ingest runs the pipeline for file_key and returns the first page's segments.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeIngestRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "file_key is required")
		return
	}

	log := h.logger.With(zap.String("user_id", callerID(r)), zap.String("file_key", key))

	segments, err := h.ingestor.Ingest(r.Context(), key)
	if err != nil {
		log.Warn("ingest request failed", zap.Error(err))
		writeIngestError(w, err)
		return
	}
	log.Info("ingest request done", zap.Int("segments", len(segments)))

	writeJSON(w, http.StatusOK, ingestResponse{
		FileKey:   key,
		Namespace: ingestion_engine.DeriveNamespace(key),
		Segments:  segments,
	})
}

// IngestAsync queues file_key for background ingestion.
func (h *IngestHandler) IngestAsync(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeIngestRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "file_key is required")
		return
	}

	log := h.logger.With(zap.String("user_id", callerID(r)), zap.String("file_key", key))

	if err := h.queue.Enqueue(r.Context(), key); err != nil {
		log.Warn("enqueue ingestion", zap.Error(err))
		if errors.Is(err, ingestion_engine.ErrQueueFull) || errors.Is(err, ingestion_engine.ErrQueueStopped) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info("ingestion queued")
	writeJSON(w, http.StatusAccepted, queuedResponse{FileKey: key, Status: models.StatusQueued})
}
