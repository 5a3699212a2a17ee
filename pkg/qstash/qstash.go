// Package qstash publishes messages through Upstash QStash for durable,
// retried HTTP delivery.
package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

// Config is read with the QSTASH prefix. Delivery is disabled when URL is empty.
type Config struct {
	URL         string        `split_words:"true"`
	Token       string        `split_words:"true"`
	Destination string        `split_words:"true"`
	Retries     int           `split_words:"true" default:"3"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

type Client struct {
	baseURL    string
	token      string
	retries    int
	httpClient *http.Client
}

type PublishOptions struct {
	DeduplicationID string
	Headers         map[string]string
}

type publishResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		retries: cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// PublishJSON enqueues body for delivery to destination and returns the QStash message id.
func (c *Client) PublishJSON(ctx context.Context, destination string, body any, opts PublishOptions) (string, error) {
	if strings.TrimSpace(destination) == "" {
		return "", errors.New("qstash destination is required")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal qstash body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/publish/"+destination, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if c.retries >= 0 {
		req.Header.Set("Upstash-Retries", strconv.Itoa(c.retries))
	}
	if opts.DeduplicationID != "" {
		req.Header.Set("Upstash-Deduplication-Id", opts.DeduplicationID)
	}
	for k, v := range opts.Headers {
		req.Header.Set("Upstash-Forward-"+k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("read qstash response: %w", err)
	}

	var parsed publishResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if parsed.Error != "" {
			return "", fmt.Errorf("qstash publish status=%d: %s", resp.StatusCode, parsed.Error)
		}
		return "", fmt.Errorf("qstash publish status=%d body=%s", resp.StatusCode, string(raw))
	}
	return parsed.MessageID, nil
}
