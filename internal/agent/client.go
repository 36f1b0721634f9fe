package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
)

// Submitter delivers one snapshot to the engine.
type Submitter interface {
	Submit(ctx context.Context, pinData uint8, at time.Time) ([]string, error)
}

type pinDataPayload struct {
	PinData   string `json:"pinData"`
	Timestamp string `json:"timestamp"`
}

type pinDataResult struct {
	ProcessedMachines []string `json:"processedMachines"`
	Error             string   `json:"error"`
}

// PartialError is returned with the processed machines when the monitor
// accepted a snapshot but failed to record it for some machine. The
// snapshot must not be resent.
type PartialError struct {
	Message string
}

func (e *PartialError) Error() string {
	return "agent client: snapshot accepted with errors: " + e.Message
}

// Client posts snapshots to the pin-data endpoint.
type Client struct {
	url    string
	client *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

// NewClient constructs a client for the full pin-data URL.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.New("agent client: empty url")
	}
	c := &Client{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts one snapshot and returns the machines it touched.
func (c *Client) Submit(ctx context.Context, pinData uint8, at time.Time) ([]string, error) {
	body, err := json.Marshal(pinDataPayload{
		PinData:   logic.EncodePinData(pinData),
		Timestamp: at.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var result pinDataResult
	_ = json.Unmarshal(data, &result)
	if resp.StatusCode != http.StatusOK {
		if result.Error != "" {
			return nil, fmt.Errorf("agent client: status %d: %s", resp.StatusCode, result.Error)
		}
		return nil, fmt.Errorf("agent client: status %d", resp.StatusCode)
	}
	if result.Error != "" {
		return result.ProcessedMachines, &PartialError{Message: result.Error}
	}
	return result.ProcessedMachines, nil
}
