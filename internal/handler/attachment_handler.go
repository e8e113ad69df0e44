package handler

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/storage"
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

const maxAttachmentSize = 50 << 20

// Presigner issues upload URLs. *storage.Client satisfies it.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (storage.PresignedUpload, error)
}

type AttachmentHandler struct {
	presigner Presigner
}

// NewAttachmentHandler accepts a nil presigner; every call then answers 503.
func NewAttachmentHandler(presigner Presigner) *AttachmentHandler {
	return &AttachmentHandler{presigner: presigner}
}

func (h *AttachmentHandler) Presign(c *gin.Context) {
	if h.presigner == nil {
		respondError(c, pulse_errors.ErrServiceUnavailable)
		return
	}
	var req httpdto.PresignAttachmentRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	req.FileName = strings.TrimSpace(req.FileName)
	switch {
	case req.FileName == "":
		respondError(c, pulse_errors.Invalid("File name is required"))
		return
	case utf8.RuneCountInString(req.FileName) > chat.MaxFileNameLength:
		respondError(c, pulse_errors.Invalid("File name is too long"))
		return
	case req.FileSize < 0 || req.FileSize > maxAttachmentSize:
		respondError(c, pulse_errors.Invalid("File size is out of range"))
		return
	}

	key := storage.AttachmentKey(userID, req.FileName)
	upload, err := h.presigner.PresignPut(c.Request.Context(), key, req.ContentType, req.FileSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresignAttachmentResponse{
		UploadURL: upload.URL,
		Headers:   upload.Headers,
		FileURL:   upload.FileURL,
		Key:       upload.Key,
		ExpiresAt: upload.ExpiresAt.UTC().Format(time.RFC3339),
	}))
}
