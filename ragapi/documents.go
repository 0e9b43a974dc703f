package ragapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/haowjy/ragstream-go/blobstore"
)

type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresAt string `json:"expires_at"`
}

// handleDocuments mints a presigned upload URL so clients push raw
// documents straight to object storage.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, userID string) {
	if s.blobs == nil {
		s.writeError(w, http.StatusNotImplemented, "document uploads are disabled")
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	safeFilename := strings.ReplaceAll(req.Filename, "/", "_")
	timestamp := time.Now().UTC().Format("20060102_150405")
	key := fmt.Sprintf("%s/%s_%s", userID, timestamp, safeFilename)

	url, err := s.blobs.PresignPut(r.Context(), key, req.ContentType, presignTTL)
	if err != nil {
		if errors.Is(err, blobstore.ErrPresignUnsupported) {
			s.writeError(w, http.StatusNotImplemented, "document uploads are disabled")
			return
		}
		s.logger.Error("presigning upload failed", zap.String("key", key), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not create upload URL")
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		UploadURL: url,
		Key:       key,
		ExpiresAt: time.Now().UTC().Add(presignTTL).Format(time.RFC3339),
	})
}
