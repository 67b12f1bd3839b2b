package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"charforge/internal/domain"
	"charforge/internal/infra"
)

// Options configures the image engine client.
type Options struct {
	BaseURL        string
	ClientID       string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
}

// Client is a stateless HTTP adapter over the engine's job queue. All
// operations except Submit are safe to retry.
type Client struct {
	baseURL       string
	clientID      string
	httpClient    *http.Client
	healthTimeout time.Duration
	logger        *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("engine: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 3 * time.Second
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:       baseURL,
		clientID:      strings.TrimSpace(opts.ClientID),
		httpClient:    httpClient,
		healthTimeout: healthTimeout,
		logger:        logger,
	}, nil
}

// Submit queues a workflow and returns the engine's job id.
func (c *Client) Submit(ctx context.Context, wf any) (string, error) {
	body, err := json.Marshal(submitRequest{Prompt: wf, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("engine: encode workflow: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("engine: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSubmission, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrSubmission, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrSubmission, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrSubmission, err)
	}
	if decoded.PromptID == "" {
		return "", fmt.Errorf("%w: empty prompt id", domain.ErrSubmission)
	}
	c.logger.Debug().Str("job_id", decoded.PromptID).Msg("engine: workflow submitted")
	return decoded.PromptID, nil
}

// Poll reads the engine's history for a job. A (nil, nil) return means the
// job is not yet in history, the expected steady state while it runs.
func (c *Client) Poll(ctx context.Context, jobID string) (*JobSnapshot, error) {
	endpoint := c.baseURL + "/history/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: build history request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine: history request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engine: history status %d", resp.StatusCode)
	}
	var decoded map[string]JobSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("engine: decode history: %w", err)
	}
	snapshot, ok := decoded[jobID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

// FetchResult downloads a produced image's bytes.
func (c *Client) FetchResult(ctx context.Context, ref ImageRef) ([]byte, error) {
	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	query.Set("type", ref.Type)
	endpoint := c.baseURL + "/view?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: build view request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine: view request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engine: view status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("engine: read image: %w", err)
	}
	return data, nil
}

// UploadInput stores an input image on the engine host and returns the
// filename the engine assigned to it.
func (c *Client) UploadInput(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("engine: build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("engine: write upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("engine: close upload form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &buf)
	if err != nil {
		return "", fmt.Errorf("engine: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine: upload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("engine: upload status %d", resp.StatusCode)
	}
	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("engine: decode upload response: %w", err)
	}
	if decoded.Name == "" {
		return "", errors.New("engine: upload returned no filename")
	}
	return decoded.Name, nil
}

// ReleaseMemory asks the engine to unload models. Best effort: a 404 means
// an engine version without the endpoint and is treated as success.
func (c *Client) ReleaseMemory(ctx context.Context) error {
	body, _ := json.Marshal(freeRequest{UnloadModels: true, FreeMemory: true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/free", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("engine: build free request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine: free request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("engine: free status %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck probes the engine with a short timeout. Operational tooling
// only; the pipeline itself never calls it.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
