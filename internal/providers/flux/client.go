package flux

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxPollTime  = 5 * time.Minute
)

// ServiceError describes a failure of the external edit model. Temporary
// distinguishes "the service is unavailable, try again later" from
// permanent rejections; the pipeline never retries either kind, the flag is
// surfaced for the client-facing message instead.
type ServiceError struct {
	Message    string
	StatusCode int
	Temporary  bool
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Client wraps the BFL Flux image-editing API. Edit is a single blocking
// call: it submits the request and polls the returned URL until the result
// is ready, failed, or the poll deadline passes.
type Client struct {
	apiURL       string
	apiKey       string
	client       *http.Client
	pollInterval time.Duration
	maxPollTime  time.Duration
}

type Options struct {
	APIURL       string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	MaxPollTime  time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("flux: api key is required")
	}
	if strings.TrimSpace(opts.APIURL) == "" {
		return nil, errors.New("flux: api url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxPollTime := opts.MaxPollTime
	if maxPollTime <= 0 {
		maxPollTime = defaultMaxPollTime
	}
	return &Client{
		apiURL:       opts.APIURL,
		apiKey:       opts.APIKey,
		client:       client,
		pollInterval: pollInterval,
		maxPollTime:  maxPollTime,
	}, nil
}

type submitRequest struct {
	Prompt          string `json:"prompt"`
	InputImage      string `json:"input_image"`
	SafetyTolerance int    `json:"safety_tolerance"`
}

type submitResponse struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type pollResponse struct {
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
	Error string `json:"error"`
}

// Edit submits the image and prompt and blocks until the edited image bytes
// are available or the service reports failure.
func (c *Client) Edit(ctx context.Context, image []byte, prompt string) ([]byte, error) {
	payload := submitRequest{
		Prompt:     prompt,
		InputImage: base64.StdEncoding.EncodeToString(image),
		// Balanced moderation (0 = strictest, 2 = balanced).
		SafetyTolerance: 2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("encode edit request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("build edit request: %v", err)}
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("connect to edit service: %v", err), Temporary: true}
	}
	submitted, err := decodeChecked[submitResponse](resp)
	if err != nil {
		return nil, err
	}
	if submitted.ID == "" || submitted.PollingURL == "" {
		return nil, &ServiceError{Message: "edit service returned invalid response format"}
	}

	return c.poll(ctx, submitted.ID, submitted.PollingURL)
}

func (c *Client) poll(ctx context.Context, requestID, pollingURL string) ([]byte, error) {
	deadline := time.Now().Add(c.maxPollTime)
	for {
		if time.Now().After(deadline) {
			return nil, &ServiceError{
				Message:   "image processing timed out waiting for the edit service",
				Temporary: true,
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollingURL, nil)
		if err != nil {
			return nil, &ServiceError{Message: fmt.Sprintf("build poll request: %v", err)}
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("x-key", c.apiKey)
		q := req.URL.Query()
		q.Set("id", requestID)
		req.URL.RawQuery = q.Encode()

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, &ServiceError{Message: fmt.Sprintf("poll edit status: %v", err), Temporary: true}
		}
		status, err := decodeChecked[pollResponse](resp)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case "Ready":
			if status.Result.Sample == "" {
				return nil, &ServiceError{Message: "edit service completed but returned no image"}
			}
			return c.download(ctx, status.Result.Sample)
		case "Error", "Failed":
			reason := status.Error
			if reason == "" {
				reason = "unknown error"
			}
			return nil, &ServiceError{Message: fmt.Sprintf("image processing failed: %s", reason)}
		}
		// Pending and anything else: keep polling.
	}
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("build result download: %v", err)}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("download edited image: %v", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, &ServiceError{
			Message:    fmt.Sprintf("download edited image: status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	return io.ReadAll(resp.Body)
}

// decodeChecked classifies non-2xx responses (5xx and 429 are temporary)
// and decodes successful bodies.
func decodeChecked[T any](resp *http.Response) (T, error) {
	var zero T
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		serr := &ServiceError{
			StatusCode: resp.StatusCode,
			Temporary:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
		switch {
		case resp.StatusCode >= 500:
			serr.Message = fmt.Sprintf("edit service is currently unavailable (HTTP %d)", resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests:
			serr.Message = "edit service is rate limiting requests"
		default:
			serr.Message = fmt.Sprintf("edit service error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return zero, serr
	}
	var decoded T
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return zero, &ServiceError{Message: fmt.Sprintf("decode edit service response: %v", err)}
	}
	return decoded, nil
}
