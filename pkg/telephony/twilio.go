// Package telephony controls live calls through Twilio.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Config is read with the TWILIO prefix. Call control is disabled when
// AccountSID is empty.
type Config struct {
	AccountSID        string `envconfig:"ACCOUNT_SID"`
	AuthToken         string `split_words:"true"`
	StreamURL         string `split_words:"true"`
	ValidateSignature bool   `split_words:"true" default:"true"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.AccountSID) != ""
}

type callUpdater interface {
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
}

// Calls redirects and ends live Twilio calls.
type Calls struct {
	api callUpdater
}

func New(cfg Config) (*Calls, error) {
	if !cfg.Enabled() || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Calls{api: client.Api}, nil
}

// Transfer replaces the call's TwiML with a dial to the given number.
func (c *Calls) Transfer(ctx context.Context, callSID string, to string) error {
	twiml, err := DialTwiML(to)
	if err != nil {
		return err
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(twiml)
	return c.update(ctx, callSID, params)
}

func (c *Calls) Hangup(ctx context.Context, callSID string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")
	return c.update(ctx, callSID, params)
}

// update runs the blocking SDK call and gives up when ctx ends.
func (c *Calls) update(ctx context.Context, callSID string, params *twilioApi.UpdateCallParams) error {
	if strings.TrimSpace(callSID) == "" {
		return errors.New("call sid is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.api.UpdateCall(callSID, params)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("update twilio call %s: %w", callSID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignatureValidator checks the X-Twilio-Signature header of webhooks.
type SignatureValidator struct {
	validator twilioclient.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: twilioclient.NewRequestValidator(authToken)}
}

func (v *SignatureValidator) Valid(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return v.validator.Validate(url, params, signature)
}
