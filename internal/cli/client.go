package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// Client talks to the ilcdirac server API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Key     string // X-Reporter-Key for write requests
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http.DefaultClient,
		logger:  logger,
	}
}

// envelope mirrors model.Response with the payload left undecoded.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// Call sends in (when non-nil) as JSON and decodes the payload of the answer
// into out (when non-nil). An error envelope comes back as *model.APIError.
func (c *Client) Call(ctx context.Context, method, path string, in, out any) (*model.Pagination, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Key != "" {
		req.Header.Set("X-Reporter-Key", c.Key)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: HTTP %d with non-API body: %.200s", method, path, resp.StatusCode, raw)
	}
	if env.Status == model.StatusError {
		if env.Error == nil {
			return nil, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
		}
		return nil, env.Error
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", path, err)
		}
	}
	return env.Pagination, nil
}
