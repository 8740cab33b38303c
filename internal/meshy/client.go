package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"virtufit-backend/internal/relay"
)

const (
	providerName = "meshy"

	DefaultBaseURL = "https://api.meshy.ai/openapi/v1"
)

var statusTable = relay.MustStatusTable(providerName, map[string]relay.Status{
	"PENDING":     relay.StatusQueued,
	"IN_PROGRESS": relay.StatusRunning,
	"SUCCEEDED":   relay.StatusSucceeded,
	"FAILED":      relay.StatusFailed,
	"CANCELED":    relay.StatusCancelled,
	"EXPIRED":     relay.StatusExpired,
}, []string{"PENDING", "IN_PROGRESS", "SUCCEEDED", "FAILED", "CANCELED", "EXPIRED"})

type Config struct {
	APIKey    string
	BaseURL   string
	AIModel   string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
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
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("component", "meshy")),
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
		return relay.NewConfigurationError(providerName, "MESHY_API_KEY is not configured")
	}
	return nil
}

type imageTo3DRequest struct {
	ImageURL string `json:"image_url"`
	AIModel  string `json:"ai_model,omitempty"`
}

type createResponse struct {
	Result string `json:"result"`
}

type task struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ModelURLs struct {
		GLB  string `json:"glb"`
		FBX  string `json:"fbx"`
		OBJ  string `json:"obj"`
		USDZ string `json:"usdz"`
	} `json:"model_urls"`
	ThumbnailURL string `json:"thumbnail_url"`
	TaskError    *struct {
		Message string `json:"message"`
	} `json:"task_error,omitempty"`
}

// Submit creates an image-to-3d task. Inline images are sent as a data URL.
func (c *Client) Submit(ctx context.Context, img relay.Image, opts relay.SubmitOptions) (string, error) {
	imageURL := img.URL
	if !img.IsURL() {
		imageURL = relay.DataURL(img)
	}

	aiModel := opts.ModelVersion
	if aiModel == "" {
		aiModel = c.cfg.AIModel
	}
	jsonData, err := json.Marshal(imageTo3DRequest{ImageURL: imageURL, AIModel: aiModel})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, "/image-to-3d", bytes.NewReader(jsonData), "create task", &resp); err != nil {
		return "", err
	}
	if resp.Result == "" {
		return "", relay.NewTransportError(providerName, "create task", fmt.Errorf("result is empty in response"))
	}

	c.logger.Debug("task created", zap.String("task_id", resp.Result), zap.Bool("url_input", img.IsURL()))
	return resp.Result, nil
}

// Poll reads GET /image-to-3d/{id}.
func (c *Client) Poll(ctx context.Context, taskID string) (*relay.ProviderTask, error) {
	var t task
	if err := c.doJSON(ctx, http.MethodGet, "/image-to-3d/"+url.PathEscape(taskID), nil, "get task", &t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = taskID
	}
	return t.toProviderTask(), nil
}

// ParseCallback decodes a Meshy webhook body, which is the task object itself.
func (c *Client) ParseCallback(body []byte) (*relay.ProviderTask, error) {
	var t task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("failed to decode callback: %w", err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("callback has no task id")
	}
	return t.toProviderTask(), nil
}

func (t *task) toProviderTask() *relay.ProviderTask {
	pt := &relay.ProviderTask{
		ID:           t.ID,
		RawStatus:    t.Status,
		Progress:     t.Progress,
		ResultURL:    t.ModelURLs.GLB,
		ThumbnailURL: t.ThumbnailURL,
	}
	if t.TaskError != nil {
		pt.ErrorMessage = t.TaskError.Message
	}
	return pt
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, op string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rej := rejectionFromResponse(resp.StatusCode, respBody, resp.Header.Get(traceHeader))
		c.logger.Warn("request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("trace_id", rej.TraceID),
		)
		return rej
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return relay.NewTransportError(providerName, op, fmt.Errorf("failed to decode response: %w, body: %s", err, truncate(respBody, 512)))
	}
	return nil
}
