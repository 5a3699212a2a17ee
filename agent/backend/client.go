// Package backend is the per-tenant client for the reservation REST API.
package backend

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
	"sync"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

const (
	DefaultTimeout       = 10 * time.Second
	maxResponseSizeBytes = 2 << 20
)

var _ contractx.ReservationBackend = (*Client)(nil)
var _ contractx.CustomerDirectory = (*Client)(nil)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client is bound to one tenant and, through its restaurant profile cache,
// to one call session. It must not be shared across sessions.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client

	profileMu sync.Mutex
	profile   *contractx.RestaurantInfo
}

func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: backend base url is required", contractx.ErrConfiguration)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid backend base url: %v", contractx.ErrConfiguration, err)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: tenant api key is required", contractx.ErrConfiguration)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c, nil
}

// Factory builds one Client per call from the process-wide base URL.
type Factory struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (f Factory) ForTenant(t contractx.TenantConfig) (*Client, error) {
	return New(Config{BaseURL: f.BaseURL, APIKey: t.APIKey, Timeout: f.Timeout}, WithHTTPClient(f.HTTPClient))
}

func (c *Client) CheckAvailability(ctx context.Context, q contractx.AvailabilityQuery) (contractx.AvailabilityResult, error) {
	if err := ValidateAvailabilityQuery(q); err != nil {
		return contractx.AvailabilityResult{}, err
	}

	params := url.Values{}
	params.Set("date", q.Date)
	if q.Time != "" {
		params.Set("time", q.Time)
	}
	params.Set("partySize", strconv.Itoa(q.PartySize))

	var out contractx.AvailabilityResult
	if err := c.do(ctx, http.MethodGet, "/reservations/availability", params, nil, &out); err != nil {
		return contractx.AvailabilityResult{}, err
	}
	return out, nil
}

// SearchReservations forwards the filter set unchanged; matching is the backend's job.
func (c *Client) SearchReservations(ctx context.Context, f contractx.ReservationFilter) ([]contractx.ReservationRef, error) {
	params := url.Values{}
	setIfPresent(params, "phone", f.Phone)
	setIfPresent(params, "email", f.Email)
	setIfPresent(params, "date", f.Date)
	setIfPresent(params, "customerName", f.CustomerName)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/reservations/search", params, nil, &raw); err != nil {
		return nil, err
	}
	return decodeReservationList(raw)
}

func (c *Client) GetReservationByID(ctx context.Context, bookingID string) (contractx.ReservationRef, error) {
	if err := ValidateBookingID(bookingID); err != nil {
		return contractx.ReservationRef{}, err
	}
	var out contractx.ReservationRef
	if err := c.do(ctx, http.MethodGet, "/reservations/"+url.PathEscape(bookingID), nil, nil, &out); err != nil {
		return contractx.ReservationRef{}, err
	}
	if out.BookingID == "" {
		out.BookingID = bookingID
	}
	return out, nil
}

// CancelReservation is not idempotent: a second cancel surfaces the backend's error.
func (c *Client) CancelReservation(ctx context.Context, bookingID string) (contractx.CancelResult, error) {
	if err := ValidateBookingID(bookingID); err != nil {
		return contractx.CancelResult{}, err
	}
	var out contractx.CancelResult
	if err := c.do(ctx, http.MethodDelete, "/reservations/"+url.PathEscape(bookingID), nil, nil, &out); err != nil {
		return contractx.CancelResult{}, err
	}
	if strings.TrimSpace(out.Description) == "" {
		out.Description = fmt.Sprintf("Reservation %s has been cancelled.", bookingID)
	}
	return out, nil
}

// GetRestaurantProfile caches the first successful response for the life of the client.
func (c *Client) GetRestaurantProfile(ctx context.Context) (contractx.RestaurantInfo, error) {
	c.profileMu.Lock()
	defer c.profileMu.Unlock()

	if c.profile != nil {
		return *c.profile, nil
	}

	var out contractx.RestaurantInfo
	if err := c.do(ctx, http.MethodGet, "/restaurants/me", nil, nil, &out); err != nil {
		return contractx.RestaurantInfo{}, err
	}
	c.profile = &out
	return out, nil
}

func (c *Client) GetCustomerByPhone(ctx context.Context, phone string) (contractx.CustomerProfile, error) {
	if strings.TrimSpace(phone) == "" {
		return contractx.CustomerProfile{}, fmt.Errorf("%w: phone is required", contractx.ErrValidation)
	}
	var out contractx.CustomerProfile
	if err := c.do(ctx, http.MethodGet, "/customers/phone/"+url.PathEscape(phone), nil, nil, &out); err != nil {
		return contractx.CustomerProfile{}, err
	}
	if out.Phone == "" {
		out.Phone = phone
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if c == nil {
		return errors.New("nil backend client")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return normalizeTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return normalizeTransportError(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return normalizeStatusError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "reservation service returned an unreadable response"}
	}
	return nil
}

func setIfPresent(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// decodeReservationList accepts a bare array or an object wrapping it.
func decodeReservationList(raw json.RawMessage) ([]contractx.ReservationRef, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []contractx.ReservationRef{}, nil
	}

	var list []contractx.ReservationRef
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, &Error{Message: "reservation service returned an unreadable response"}
		}
	} else {
		var wrapped struct {
			Reservations []contractx.ReservationRef `json:"reservations"`
			Data         []contractx.ReservationRef `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, &Error{Message: "reservation service returned an unreadable response"}
		}
		list = wrapped.Reservations
		if list == nil {
			list = wrapped.Data
		}
	}
	if list == nil {
		list = []contractx.ReservationRef{}
	}
	return list, nil
}
