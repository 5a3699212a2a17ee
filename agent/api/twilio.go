package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	nodex "github.com/adhityan/resto-ai-sub001/agent/nodes"
	"github.com/adhityan/resto-ai-sub001/pkg/telephony"
)

const (
	unroutableMessage  = "Sorry, this number is not in service. Goodbye."
	unavailableMessage = "Sorry, we cannot take your call right now. Please try again later."
)

// verifyTwilioSignature rejects webhooks whose X-Twilio-Signature does not
// match the public URL and form parameters.
func (s *Server) verifyTwilioSignature() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.validator == nil {
			return c.Next()
		}

		signature := c.Get("X-Twilio-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing twilio signature"})
		}

		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			params[string(key)] = string(value)
		})

		if !s.validator.Valid(s.webhookURL(c), params, signature) {
			log.Warn().Str("path", c.Path()).Msg("rejected webhook with invalid twilio signature")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid twilio signature"})
		}
		return c.Next()
	}
}

func (s *Server) webhookURL(c *fiber.Ctx) string {
	base := strings.TrimRight(s.publicURL, "/")
	if base == "" {
		base = c.BaseURL()
	}
	return base + c.OriginalURL()
}

// handleVoice answers an inbound call with TwiML that streams the audio to
// the media runtime, tagged with the new session id.
func (s *Server) handleVoice(c *fiber.Ctx) error {
	in := nodex.GraphInput{
		To:      c.FormValue("To"),
		From:    c.FormValue("From"),
		CallSID: c.FormValue("CallSid"),
	}

	sess, err := s.receptionist.StartCall(c.UserContext(), in)
	if err != nil {
		msg := unavailableMessage
		if errors.Is(err, contractx.ErrTenantNotFound) {
			msg = unroutableMessage
		}
		return s.sendTwiML(c, func() (string, error) { return telephony.RejectTwiML(msg) })
	}

	return s.sendTwiML(c, func() (string, error) {
		return telephony.StreamTwiML(s.streamURL, sess.ID(), s.greeting)
	})
}

// handleCallStatus ends the session when Twilio reports the call is over.
func (s *Server) handleCallStatus(c *fiber.Ctx) error {
	callSID := c.FormValue("CallSid")
	switch c.FormValue("CallStatus") {
	case "completed", "busy", "failed", "no-answer", "canceled":
	default:
		return c.SendStatus(fiber.StatusNoContent)
	}

	sess, err := s.receptionist.GetByCallSID(callSID)
	if err != nil {
		if errors.Is(err, contractx.ErrSessionNotFound) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return writeError(c, err)
	}
	if _, err := s.receptionist.Disconnect(c.UserContext(), sess.ID()); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) sendTwiML(c *fiber.Ctx, render func() (string, error)) error {
	doc, err := render()
	if err != nil {
		log.Error().Err(err).Msg("render twiml")
		return c.Status(fiber.StatusInternalServerError).SendString("")
	}
	c.Set(fiber.HeaderContentType, "text/xml; charset=utf-8")
	return c.SendString(doc)
}
