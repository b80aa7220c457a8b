package uploads

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	"loan-intake/internal/documents"
	"loan-intake/internal/queue"
	"loan-intake/internal/shared/server/middleware"
	"loan-intake/internal/shared/server/respond"
	"loan-intake/internal/shared/storage/object"
	"loan-intake/internal/shared/telemetry"
)

const presignExpires = 15 * time.Minute

var allowedContentTypes = map[string]struct{}{
	documents.MimePNG:  {},
	documents.MimeJPEG: {},
	documents.MimePDF:  {},
}

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Handler issues presigned S3 uploads and enqueues finished uploads for the
// worker.
type Handler struct {
	Presign Presigner
	Bucket  string
	Prefix  string
	Queue   queue.Client
	Now     func() time.Time
}

// NewHandler constructs a Handler. prefix must match the object store prefix
// the worker reads from.
func NewHandler(presign Presigner, bucket, prefix string, q queue.Client) *Handler {
	return &Handler{
		Presign: presign,
		Bucket:  bucket,
		Prefix:  strings.Trim(strings.TrimSpace(prefix), "/"),
		Queue:   q,
		Now:     time.Now,
	}
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	Key              string `json:"key"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

type completeRequest struct {
	Key string `json:"key"`
}

// RegisterRoutes attaches upload routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presign)
	rg.POST("/uploads/complete", h.complete)
}

func (h *Handler) presign(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	req.FileName = strings.TrimSpace(req.FileName)
	req.ContentType = strings.TrimSpace(req.ContentType)

	if req.FileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", nil)
		return
	}
	if _, ok := allowedContentTypes[req.ContentType]; !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed", nil)
		return
	}
	if req.SizeBytes <= 0 || req.SizeBytes > documents.MaxImageSize {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sizeBytes exceeds limit", nil)
		return
	}

	key, err := object.NewKey(req.FileName, h.now())
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid fileName", nil)
		return
	}

	out, err := h.Presign.PresignPutObject(c.Request.Context(), &s3.PutObjectInput{
		Bucket:      aws.String(h.Bucket),
		Key:         aws.String(h.objectKey(key)),
		ContentType: aws.String(req.ContentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = presignExpires
	})
	if err != nil {
		telemetry.Error("uploads.presign.failed", map[string]any{
			"err":         err.Error(),
			"bucket":      h.Bucket,
			"key":         key,
			"contentType": req.ContentType,
			"sizeBytes":   req.SizeBytes,
			"request_id":  middleware.RequestIDFromContext(c),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.OK(c, presignResponse{
		UploadURL:        out.URL,
		Key:              key,
		ExpiresInSeconds: int64(presignExpires.Seconds()),
	})
}

func (h *Handler) complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	key, err := object.CleanKey(req.Key)
	if err != nil || !strings.HasPrefix(key, "incoming/") {
		respond.Error(c, http.StatusBadRequest, "validation_error", "key is invalid", nil)
		return
	}
	if h.Queue == nil {
		respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "no queue configured", nil)
		return
	}

	requestID := middleware.RequestIDFromContext(c)
	if err := h.Queue.Send(c.Request.Context(), queue.NewMessage(key, requestID, h.now())); err != nil {
		telemetry.Error("uploads.enqueue.failed", map[string]any{
			"err":        err.Error(),
			"key":        key,
			"request_id": requestID,
		})
		respond.Error(c, http.StatusBadGateway, "queue_error", "failed to enqueue document", nil)
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"key": key, "requestId": requestID})
}

func (h *Handler) objectKey(key string) string {
	if h.Prefix == "" {
		return key
	}
	return path.Join(h.Prefix, key)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
