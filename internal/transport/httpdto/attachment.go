package httpdto

// PresignAttachmentRequest is used for POST /v1/attachments/presign.
type PresignAttachmentRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	FileSize    int64  `json:"fileSize"`
}

type PresignAttachmentResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers"`
	FileURL   string            `json:"fileUrl"`
	Key       string            `json:"key"`
	ExpiresAt string            `json:"expiresAt"`
}
