package storage

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/storage"
	"threadcast-backend/pkg/response"
	"threadcast-backend/pkg/sanitize"
)

var (
	uploadURLsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_upload_urls_total",
		Help: "Presigned upload URLs issued, by media class",
	}, []string{"media_class"})

	uploadRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_upload_rejected_total",
		Help: "Upload URL requests rejected before presigning",
	}, []string{"reason"})
)

// allowedMediaClasses are the content type prefixes a message attachment may use
var allowedMediaClasses = []string{"image/", "video/", "audio/"}

// Handler handles storage HTTP requests
type Handler struct {
	storageService *storage.Service
}

// NewHandler creates a new storage handler
func NewHandler(storageService *storage.Service) *Handler {
	return &Handler{
		storageService: storageService,
	}
}

// RegisterRoutes mounts the storage routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/storage/upload-url", h.GenerateUploadURL)
}

// GenerateUploadURLRequest represents upload URL request
type GenerateUploadURLRequest struct {
	FileName    string `json:"file_name" binding:"required"`
	FileSize    int64  `json:"file_size" binding:"required,min=1"`
	ContentType string `json:"content_type" binding:"required"`
}

// GenerateUploadURL creates a presigned upload URL for message media
// POST /v1/storage/upload-url
func (h *Handler) GenerateUploadURL(c *gin.Context) {
	userID, ok := request.UserID(c)
	if !ok {
		return
	}

	var req GenerateUploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	class, ok := mediaClass(req.ContentType)
	if !ok {
		uploadRejected.WithLabelValues("content_type").Inc()
		response.ValidationError(c, "Unsupported content type: "+req.ContentType)
		return
	}

	fileName := sanitize.SanitizeFilename(req.FileName)
	if fileName == "" {
		uploadRejected.WithLabelValues("file_name").Inc()
		response.ValidationError(c, "Invalid file name")
		return
	}

	output, err := h.storageService.GenerateUploadURL(c.Request.Context(), userID, &storage.GenerateUploadURLInput{
		FileName:    fileName,
		FileSize:    req.FileSize,
		ContentType: req.ContentType,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	uploadURLsIssued.WithLabelValues(class).Inc()
	response.Success(c, http.StatusOK, output)
}

func mediaClass(contentType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, prefix := range allowedMediaClasses {
		if strings.HasPrefix(ct, prefix) {
			return strings.TrimSuffix(prefix, "/"), true
		}
	}
	return "", false
}
