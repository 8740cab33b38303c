package tripo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"virtufit-backend/internal/relay"
)

const (
	providerName = "tripo"

	DefaultBaseURL           = "https://api.tripo3d.ai/v2/openapi"
	DefaultInlineUploadLimit = 100 << 10
)

var statusTable = relay.MustStatusTable(providerName, map[string]relay.Status{
	"queued":    relay.StatusQueued,
	"running":   relay.StatusRunning,
	"success":   relay.StatusSucceeded,
	"failed":    relay.StatusFailed,
	"cancelled": relay.StatusCancelled,
	"unknown":   relay.StatusUnknown,
	"banned":    relay.StatusFailed,
	"expired":   relay.StatusExpired,
}, []string{"queued", "running", "success", "failed", "cancelled", "unknown", "banned", "expired"})

type Config struct {
	APIKey       string
	BaseURL      string
	ModelVersion string
	// InlineUploadLimit is the largest image sent through the token upload
	// endpoint; larger images go through STS object storage.
	InlineUploadLimit int64
	Timeout           time.Duration
	RateLimit         float64
	RateBurst         int
	STSRegion         string
	STSEndpoint       string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	uploader   ObjectUploader
	logger     *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObjectUploader replaces the S3 uploader used for large images.
func WithObjectUploader(u ObjectUploader) Option {
	return func(c *Client) {
		if u != nil {
			c.uploader = u
		}
	}
}

func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.InlineUploadLimit <= 0 {
		cfg.InlineUploadLimit = DefaultInlineUploadLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:  rate.NewLimiter(limit, burst),
		uploader: NewS3Uploader(cfg.STSRegion, cfg.STSEndpoint),
		logger:   logger.With(zap.String("component", "tripo")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return providerName }

func (c *Client) StatusTable() *relay.StatusTable { return statusTable }

func (c *Client) CheckCredentials() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return relay.NewConfigurationError(providerName, "TRIPO_API_KEY is not configured")
	}
	return nil
}

type taskFile struct {
	Type      string      `json:"type"`
	FileToken string      `json:"file_token,omitempty"`
	URL       string      `json:"url,omitempty"`
	Object    *fileObject `json:"object,omitempty"`
}

type fileObject struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type createTaskRequest struct {
	Type         string   `json:"type"`
	File         taskFile `json:"file"`
	ModelVersion string   `json:"model_version,omitempty"`
}

type envelope struct {
	Code       int             `json:"code"`
	Message    string          `json:"message,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
	Data       json.RawMessage `json:"data"`
}

type taskData struct {
	TaskID   string `json:"task_id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Output   struct {
		Model         string `json:"model"`
		PbrModel      string `json:"pbr_model"`
		BaseModel     string `json:"base_model"`
		RenderedImage string `json:"rendered_image"`
	} `json:"output"`
	ErrorCode int    `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// Submit uploads the image (or references its URL) and creates an
// image_to_model task.
func (c *Client) Submit(ctx context.Context, img relay.Image, opts relay.SubmitOptions) (string, error) {
	file, err := c.prepareFile(ctx, img)
	if err != nil {
		return "", err
	}

	modelVersion := opts.ModelVersion
	if modelVersion == "" {
		modelVersion = c.cfg.ModelVersion
	}
	reqBody := createTaskRequest{
		Type:         "image_to_model",
		File:         file,
		ModelVersion: modelVersion,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var data struct {
		TaskID string `json:"task_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/task", bytes.NewReader(jsonData), "application/json", "create task", &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", relay.NewTransportError(providerName, "create task", fmt.Errorf("task_id is empty in response"))
	}

	c.logger.Debug("task created", zap.String("task_id", data.TaskID), zap.String("file_type", file.Type))
	return data.TaskID, nil
}

func (c *Client) prepareFile(ctx context.Context, img relay.Image) (taskFile, error) {
	ext := img.Extension()
	if img.IsURL() {
		return taskFile{Type: ext, URL: img.URL}, nil
	}
	if int64(len(img.Data)) <= c.cfg.InlineUploadLimit {
		token, err := c.uploadImage(ctx, img)
		if err != nil {
			return taskFile{}, err
		}
		return taskFile{Type: ext, FileToken: token}, nil
	}
	obj, err := c.uploadObject(ctx, img)
	if err != nil {
		return taskFile{}, err
	}
	return taskFile{Type: ext, Object: obj}, nil
}

// uploadImage posts a small image to /upload and returns its image token.
func (c *Client) uploadImage(ctx context.Context, img relay.Image) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="image.%s"`, img.Extension()))
	header.Set("Content-Type", img.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var data struct {
		ImageToken string `json:"image_token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/upload", &buf, writer.FormDataContentType(), "upload image", &data); err != nil {
		return "", err
	}
	if data.ImageToken == "" {
		return "", relay.NewTransportError(providerName, "upload image", fmt.Errorf("image_token is empty in response"))
	}
	return data.ImageToken, nil
}

// uploadObject requests STS credentials and puts a large image into Tripo's
// bucket.
func (c *Client) uploadObject(ctx context.Context, img relay.Image) (*fileObject, error) {
	jsonData, err := json.Marshal(map[string]string{"format": img.Extension()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var creds STSCredentials
	if err := c.doJSON(ctx, http.MethodPost, "/upload/sts/token", bytes.NewReader(jsonData), "application/json", "request upload credentials", &creds); err != nil {
		return nil, err
	}
	if !creds.complete() {
		return nil, relay.NewTransportError(providerName, "request upload credentials", fmt.Errorf("incomplete STS credentials in response"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.uploader.PutObject(ctx, creds, img.Data, img.MimeType); err != nil {
		return nil, relay.NewTransportError(providerName, "upload image object", err)
	}

	c.logger.Debug("image uploaded to object storage",
		zap.String("bucket", creds.Bucket),
		zap.String("key", creds.Key),
		zap.Int("bytes", len(img.Data)),
	)
	return &fileObject{Bucket: creds.Bucket, Key: creds.Key}, nil
}

// Poll reads GET /task/{id}.
func (c *Client) Poll(ctx context.Context, taskID string) (*relay.ProviderTask, error) {
	var data taskData
	if err := c.doJSON(ctx, http.MethodGet, "/task/"+url.PathEscape(taskID), nil, "", "get task", &data); err != nil {
		return nil, err
	}
	if data.TaskID == "" {
		data.TaskID = taskID
	}
	return data.toProviderTask(), nil
}

// ParseCallback decodes a Tripo webhook body, which carries the same task
// object as GET /task/{id}.
func (c *Client) ParseCallback(body []byte) (*relay.ProviderTask, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode callback: %w", err)
	}
	var data taskData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode callback data: %w", err)
	}
	if data.TaskID == "" {
		return nil, fmt.Errorf("callback has no task_id")
	}
	return data.toProviderTask(), nil
}

func (d *taskData) toProviderTask() *relay.ProviderTask {
	modelURL := d.Output.Model
	if modelURL == "" {
		modelURL = d.Output.PbrModel
	}
	if modelURL == "" {
		modelURL = d.Output.BaseModel
	}

	pt := &relay.ProviderTask{
		ID:           d.TaskID,
		RawStatus:    d.Status,
		Progress:     d.Progress,
		ResultURL:    modelURL,
		ThumbnailURL: d.Output.RenderedImage,
		ErrorMessage: d.ErrorMsg,
	}
	if d.ErrorCode != 0 {
		pt.ErrorCode = fmt.Sprintf("%d", d.ErrorCode)
		if info, ok := knownCodes[d.ErrorCode]; ok {
			if pt.ErrorMessage == "" {
				pt.ErrorMessage = info.message
			}
			pt.ErrorSuggestion = info.suggestion
		}
	}
	if strings.EqualFold(d.Status, "banned") && pt.ErrorMessage == "" {
		pt.ErrorCode = "content-banned"
		pt.ErrorMessage = "the image was rejected by Tripo3D's content policy"
	}
	return pt
}

// doJSON sends one request and decodes the data field of the response envelope
// into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType, op string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return relay.NewTransportError(providerName, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return relay.NewTransportError(providerName, op, fmt.Errorf("failed to read response body: %w", err))
	}
	traceID := resp.Header.Get(traceHeader)

	if resp.StatusCode != http.StatusOK {
		rej := rejectionFromBody(resp.StatusCode, respBody, traceID)
		c.logger.Warn("request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", rej.Code),
			zap.String("trace_id", traceID),
		)
		return rej
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return relay.NewTransportError(providerName, op, fmt.Errorf("failed to decode response: %w, body: %s", err, truncate(respBody, 512)))
	}
	if env.Code != 0 {
		return rejection(resp.StatusCode, errorBody{Code: env.Code, Message: env.Message, Suggestion: env.Suggestion}, traceID)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return relay.NewTransportError(providerName, op, fmt.Errorf("failed to decode response data: %w", err))
	}
	return nil
}
