package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"virtufit-backend/internal/middleware"
	"virtufit-backend/internal/models"
	"virtufit-backend/internal/relay"
	"virtufit-backend/internal/services"
)

type GenerateHandler struct {
	service        *services.GenerationService
	maxUploadBytes int64
	deadline       time.Duration
}

// NewGenerateHandler builds the handler. deadline bounds each request so the
// relay answers "processing" before the hosting platform cuts it off; zero
// disables it.
func NewGenerateHandler(service *services.GenerationService, maxUploadBytes int64, deadline time.Duration) *GenerateHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = relay.DefaultMaxImageBytes
	}
	return &GenerateHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		deadline:       deadline,
	}
}

// GenerateModel godoc
// @Summary     Generate a 3D model from a photo
// @Description Submits the image to the configured generation provider and waits for the model within the
// @Description request's time budget. Returns 200 with the model URL when it is ready, or 202 with a task id
// @Description when generation is still running; send {"taskId": ...} to resume waiting.
// @Description An identical image already generated for the same session is answered from the cache.
// @Tags        generation
// @Accept      json,mpfd
// @Produce     json
// @Param       X-Session-ID header   string                 false "Browser session id (ignored when JWT auth is enabled)"
// @Param       request      body     models.GenerateRequest false "Image as data URL, base64 or imageUrl; or taskId to resume"
// @Param       image        formData file                   false "Image file (multipart alternative)"
// @Success     200 {object} models.GenerateResponse
// @Success     202 {object} models.GenerateResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /generate-model [post]
func (h *GenerateHandler) GenerateModel(c *gin.Context) {
	ctx := c.Request.Context()
	if h.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deadline)
		defer cancel()
	}
	sessionID := middleware.SessionID(c)

	// Base64 inflates payloads by a third.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes*4/3+64<<10)

	var (
		req models.GenerateRequest
		img relay.Image
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		img, req, err = h.readMultipart(c)
		if err != nil {
			writeError(c, err, "")
			return
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, relay.NewValidationError("invalid JSON body: %v", err), "")
			return
		}
	}

	var res *services.Result
	if req.TaskID != "" {
		res, err = h.service.Resume(ctx, sessionID, req.TaskID)
	} else {
		if img.Data == nil && img.URL == "" {
			img, err = imageFromRequest(req)
			if err != nil {
				writeError(c, err, "")
				return
			}
		}
		res, err = h.service.Generate(ctx, sessionID, img, relay.SubmitOptions{ModelVersion: req.ModelVersion})
	}

	if err != nil {
		taskID := req.TaskID
		if res != nil && res.Snapshot != nil {
			taskID = res.Snapshot.TaskID
		}
		writeError(c, err, taskID)
		return
	}
	writeResult(c, res)
}

func (h *GenerateHandler) readMultipart(c *gin.Context) (relay.Image, models.GenerateRequest, error) {
	req := models.GenerateRequest{
		MimeType:     c.PostForm("mimeType"),
		ImageURL:     c.PostForm("imageUrl"),
		ModelVersion: c.PostForm("modelVersion"),
		TaskID:       c.PostForm("taskId"),
	}
	if req.TaskID != "" || req.ImageURL != "" {
		return relay.Image{}, req, nil
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return relay.Image{}, req, relay.NewValidationError("image file is required")
	}
	if fileHeader.Size > h.maxUploadBytes {
		return relay.Image{}, req, relay.NewValidationError("image is %d bytes, limit is %d", fileHeader.Size, h.maxUploadBytes)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return relay.Image{}, req, relay.NewValidationError("failed to open image: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return relay.Image{}, req, relay.NewValidationError("failed to read image: %v", err)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = fileHeader.Header.Get("Content-Type")
	}
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = mimetype.Detect(data).String()
	}
	return relay.Image{Data: data, MimeType: mimeType}, req, nil
}

func imageFromRequest(req models.GenerateRequest) (relay.Image, error) {
	if req.ImageURL != "" {
		if req.Image != "" {
			return relay.Image{}, relay.NewValidationError("send either image or imageUrl, not both")
		}
		return relay.Image{URL: req.ImageURL}, nil
	}
	if req.Image == "" {
		return relay.Image{}, relay.NewValidationError("image, imageUrl or taskId is required")
	}

	data, mimeType, err := relay.ParseDataURL(req.Image)
	if err != nil {
		return relay.Image{}, err
	}
	if mimeType == "" {
		mimeType = req.MimeType
	}
	return relay.Image{Data: data, MimeType: mimeType}, nil
}

func writeResult(c *gin.Context, res *services.Result) {
	snap := res.Snapshot
	switch snap.PublicStatus() {
	case relay.PublicSucceeded:
		c.JSON(http.StatusOK, models.GenerateResponse{
			Status:       relay.PublicSucceeded,
			TaskID:       snap.TaskID,
			Progress:     snap.Progress,
			ModelURL:     snap.ResultURL,
			ThumbnailURL: snap.ThumbnailURL,
			SourceURL:    res.SourceURL,
			Cached:       res.Cached,
		})
	case relay.PublicFailed:
		writeTaskFailure(c, snap)
	default:
		c.JSON(http.StatusAccepted, models.GenerateResponse{
			Status:   relay.PublicProcessing,
			TaskID:   snap.TaskID,
			Progress: snap.Progress,
		})
	}
}
