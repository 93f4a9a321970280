package report

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/me/ilcdirac/pkg/model"
)

// Client is the JobReport of a job talking to the bookkeeping server.
// Requests that fail for transport reasons or with a 5xx answer are retried
// with doubling delays; 4xx answers are final.
type Client struct {
	baseURL string
	http    *http.Client
	source  string
	key     string

	// Attempts and Backoff tune the retry loop.
	Attempts int
	Backoff  time.Duration
}

// NewClient returns a client for the server at baseURL. A nil tlsCfg means
// the Go defaults.
func NewClient(baseURL string, tlsCfg *tls.Config) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsCfg
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second, Transport: tr},
		source:   "Job",
		Attempts: 3,
		Backoff:  time.Second,
	}
}

// SetSource names the component statuses are recorded for.
func (c *Client) SetSource(source string) { c.source = source }

// SetKey sets the reporter key sent with every request.
func (c *Client) SetKey(key string) { c.key = key }

func jobPath(jobID string, rest ...string) string {
	p := "/api/v1/jobs/" + url.PathEscape(jobID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) SetApplicationStatus(ctx context.Context, jobID, status string) error {
	in := map[string]string{"status": status, "source": c.source}
	if err := c.send(ctx, http.MethodPut, jobPath(jobID, "status"), in, nil); err != nil {
		return fmt.Errorf("set application status of %s: %w", jobID, err)
	}
	return nil
}

func (c *Client) SetJobParameter(ctx context.Context, jobID, name, value string) error {
	if err := c.send(ctx, http.MethodPut, jobPath(jobID, "parameters"), map[string]string{name: value}, nil); err != nil {
		return fmt.Errorf("set parameter %s of %s: %w", name, jobID, err)
	}
	return nil
}

// GetJob fetches everything reported for jobID.
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	if err := c.send(ctx, http.MethodGet, jobPath(jobID), nil, &job); err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &job, nil
}

// retryable marks failures worth another attempt.
type retryable struct{ error }

func (r retryable) Unwrap() error { return r.error }

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	delay := c.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = c.once(ctx, method, path, body, out)
		var again retryable
		if err == nil || !errors.As(err, &again) || attempt >= c.Attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-Reporter-Key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return retryable{err}
	}
	defer resp.Body.Close()

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *model.APIError `json:"error"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	switch {
	case resp.StatusCode >= 500:
		return retryable{fmt.Errorf("HTTP %d", resp.StatusCode)}
	case env.Error != nil:
		return env.Error
	case resp.StatusCode >= 400:
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	case decodeErr != nil:
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
