package intake

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"loan-intake/internal/documents"
	"loan-intake/internal/export"
	"loan-intake/internal/extraction"
	"loan-intake/internal/records"
	"loan-intake/internal/shared/server/middleware"
	"loan-intake/internal/shared/server/respond"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	// multipart framing on top of the document itself
	uploadOverhead = 1 << 20
)

// Processor runs the pipeline for one document.
type Processor interface {
	Process(ctx context.Context, img documents.Image) (Outcome, error)
}

// Handler wires HTTP handlers to the intake pipeline and the records store.
type Handler struct {
	Svc    Processor
	Store  records.Store
	Export *export.Service
}

// NewHandler constructs a Handler.
func NewHandler(svc Processor, store records.Store, exp *export.Service) *Handler {
	return &Handler{Svc: svc, Store: store, Export: exp}
}

// RegisterRoutes attaches document and record routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/records/:family", h.listRecords)
	rg.GET("/records/:family/export", h.exportRecords)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, documents.MaxImageSize+uploadOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, CodeInvalidDocument, documents.ErrTooLarge.Error(), nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart field \"file\" is required", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "failed to read upload", nil)
		return
	}
	defer f.Close()

	img, err := documents.ReadImage(fh.Filename, f)
	if err != nil {
		respond.Error(c, HTTPStatus(err), ErrorCode(err), err.Error(), nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	out, err := h.Svc.Process(ctx, img)
	if out.DocumentType != "" {
		c.Set(middleware.DocumentTypeKey, string(out.DocumentType))
	}
	if err != nil {
		details := Details(err)
		if out.DocumentType != "" {
			if details == nil {
				details = map[string]any{}
			}
			details["documentType"] = string(out.DocumentType)
		}
		respond.Error(c, HTTPStatus(err), ErrorCode(err), err.Error(), details)
		return
	}
	c.Set(middleware.RecordIDKey, out.RecordID)
	respond.Created(c, out)
}

type recordItem struct {
	ID        int64             `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	Fields    extraction.Record `json:"fields"`
}

func (h *Handler) listRecords(c *gin.Context) {
	family, ok := documents.ParseFamily(c.Param("family"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "unknown document family", gin.H{"family": c.Param("family")})
		return
	}

	limit := defaultListLimit
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := h.Store.List(c.Request.Context(), family, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, CodeInternal, "failed to list records", nil)
		return
	}

	items := make([]recordItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, recordItem{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			Fields:    extraction.Record{Schema: string(family), Entries: r.Fields},
		})
	}
	respond.OK(c, gin.H{
		"family": family,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) exportRecords(c *gin.Context) {
	family, ok := documents.ParseFamily(c.Param("family"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "unknown document family", gin.H{"family": c.Param("family")})
		return
	}
	data, err := h.Export.XLSX(c.Request.Context(), family)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, CodeInternal, "failed to export records", nil)
		return
	}
	respond.Attachment(c, export.FileName(family, time.Now()), export.ContentType, data)
}
