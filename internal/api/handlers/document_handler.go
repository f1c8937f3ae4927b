package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/services"
	"go.uber.org/zap"
)

const maxUploadBytes = 64 << 20

type uploadResponse struct {
	services.StoredDocument
	Status models.IngestStatus `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type DocumentHandler struct {
	docs   *services.DocumentService
	logger *zap.Logger
}

func NewDocumentHandler(docs *services.DocumentService, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{docs: docs, logger: logger}
}

// UploadDocument stores the multipart "file" field and queues its ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	log := h.logger.With(zap.String("user_id", callerID(r)), zap.String("filename", header.Filename))

	doc, err := h.docs.UploadAndEnqueue(r.Context(), header.Filename, contentType, file)
	if err != nil {
		log.Error("upload document", zap.Error(err))
		switch {
		case doc == nil:
			writeError(w, http.StatusInternalServerError, "upload failed")
		case errors.Is(err, ingestion_engine.ErrQueueFull), errors.Is(err, ingestion_engine.ErrQueueStopped):
			writeJSON(w, http.StatusServiceUnavailable, uploadResponse{StoredDocument: *doc, Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, uploadResponse{StoredDocument: *doc, Error: err.Error()})
		}
		return
	}

	log.Info("document queued", zap.String("file_key", doc.FileKey))
	writeJSON(w, http.StatusAccepted, uploadResponse{StoredDocument: *doc, Status: models.StatusQueued})
}

// GetStatus reports the ingestion status of ?file_key=.
func (h *DocumentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("file_key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "file_key is required")
		return
	}

	st, err := h.docs.Status(r.Context(), key)
	if errors.Is(err, services.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "no ingestion recorded for file_key")
		return
	}
	if err != nil {
		h.logger.Error("ingestion status", zap.String("file_key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
