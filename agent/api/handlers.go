package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	nodex "github.com/adhityan/resto-ai-sub001/agent/nodes"
	"github.com/adhityan/resto-ai-sub001/agent/session"
)

type startCallRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	CallSID string `json:"call_sid"`
}

type startCallResponse struct {
	SessionID    string               `json:"session_id"`
	TenantID     string               `json:"tenant_id"`
	Status       contractx.CallStatus `json:"status"`
	Instructions string               `json:"instructions"`
	Tools        any                  `json:"tools"`
}

type transcriptRequest struct {
	Speaker        contractx.Speaker `json:"speaker"`
	Contents       string            `json:"contents"`
	WasInterrupted bool              `json:"was_interrupted"`
}

type turnRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "OK",
		"service":      "resto-voice-agent",
		"version":      s.version,
		"active_calls": s.receptionist.Active(),
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	return c.JSON(s.catalog.Declarations())
}

// handleStartCall opens a session for a voice runtime that handles the audio
// itself and drives the tools over this API.
func (s *Server) handleStartCall(c *fiber.Ctx) error {
	var req startCallRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body must be a JSON object"})
	}

	sess, err := s.receptionist.StartCall(c.UserContext(), nodex.GraphInput{
		To:      req.To,
		From:    req.From,
		CallSID: req.CallSID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(startCallResponse{
		SessionID:    sess.ID(),
		TenantID:     sess.Tenant().TenantID,
		Status:       sess.Status(),
		Instructions: sess.Grounding(),
		Tools:        s.catalog.Declarations(),
	})
}

func (s *Server) handleGetCall(c *fiber.Ctx) error {
	id := c.Params("id")
	sess, err := s.receptionist.Get(id)
	if err == nil {
		return c.JSON(sess.Snapshot())
	}
	if s.snapshots == nil || !errors.Is(err, contractx.ErrSessionNotFound) {
		return writeError(c, err)
	}

	snap, err := s.snapshots.Load(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(snap.Record)
}

// handleInvokeTool takes the raw argument object as the request body and
// always answers with a tool result, including when the call has ended.
func (s *Server) handleInvokeTool(c *fiber.Ctx) error {
	sess, err := s.receptionist.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	res, err := sess.Invoke(c.UserContext(), c.Params("name"), c.Body())
	if session.IsClosed(err) {
		return c.Status(fiber.StatusConflict).JSON(res)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	sess, err := s.receptionist.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	var req transcriptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body must be a JSON object"})
	}
	if err := sess.Say(c.UserContext(), req.Speaker, req.Contents, req.WasInterrupted); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleTurn(c *fiber.Ctx) error {
	if s.responder == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "conversation runtime is not configured"})
	}
	sess, err := s.receptionist.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	var req turnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body must be a JSON object"})
	}
	reply, err := s.responder.Respond(c.UserContext(), sess, req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(reply)
}

func (s *Server) handleHangup(c *fiber.Ctx) error {
	rec, err := s.receptionist.Disconnect(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(rec)
}
