// Package api is the HTTP surface of the voice agent: the Twilio webhooks, the
// tool API used by external voice runtimes and a live event stream per call.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"

	"github.com/adhityan/resto-ai-sub001/agent/agents/conversation"
	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	nodex "github.com/adhityan/resto-ai-sub001/agent/nodes"
	"github.com/adhityan/resto-ai-sub001/agent/session"
	statex "github.com/adhityan/resto-ai-sub001/agent/state"
	"github.com/adhityan/resto-ai-sub001/agent/tool"
	"github.com/adhityan/resto-ai-sub001/pkg/telephony"
)

type Receptionist interface {
	StartCall(ctx context.Context, in nodex.GraphInput) (*session.Session, error)
	Get(sessionID string) (*session.Session, error)
	GetByCallSID(callSID string) (*session.Session, error)
	Disconnect(ctx context.Context, sessionID string) (contractx.CallRecord, error)
	Active() int
}

type Responder interface {
	Respond(ctx context.Context, s conversation.Session, userText string) (conversation.Reply, error)
}

type SnapshotLoader interface {
	Load(ctx context.Context, sessionID string) (*statex.Snapshot, error)
}

type Config struct {
	Receptionist Receptionist
	Catalog      *tool.Catalog
	// Responder is optional; without it /turns answers 503.
	Responder Responder
	// Snapshots serves calls that ended on another instance or were evicted.
	Snapshots SnapshotLoader

	// Validator is nil when webhook signatures are not checked.
	Validator *telephony.SignatureValidator
	// PublicURL is the externally visible base URL Twilio signs against.
	PublicURL string
	StreamURL string
	Greeting  string

	Version string
}

type Server struct {
	app          *fiber.App
	receptionist Receptionist
	catalog      *tool.Catalog
	responder    Responder
	snapshots    SnapshotLoader
	validator    *telephony.SignatureValidator
	publicURL    string
	streamURL    string
	greeting     string
	version      string
	startedAt    time.Time
}

func New(cfg Config) (*Server, error) {
	if cfg.Receptionist == nil {
		return nil, errors.New("receptionist is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = tool.Default()
	}

	s := &Server{
		receptionist: cfg.Receptionist,
		catalog:      cfg.Catalog,
		responder:    cfg.Responder,
		snapshots:    cfg.Snapshots,
		validator:    cfg.Validator,
		publicURL:    cfg.PublicURL,
		streamURL:    cfg.StreamURL,
		greeting:     cfg.Greeting,
		version:      cfg.Version,
		startedAt:    time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Resto Voice Agent",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestLogger())

	app.Get("/health", s.handleHealth)

	twilio := app.Group("/twilio", s.verifyTwilioSignature())
	twilio.Post("/voice", s.handleVoice)
	twilio.Post("/status", s.handleCallStatus)

	calls := app.Group("/calls")
	calls.Get("/tools", s.handleListTools)
	calls.Post("/", s.handleStartCall)
	calls.Get("/:id", s.handleGetCall)
	calls.Post("/:id/tools/:name", s.handleInvokeTool)
	calls.Post("/:id/transcript", s.handleTranscript)
	calls.Post("/:id/turns", s.handleTurn)
	calls.Post("/:id/hangup", s.handleHangup)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/calls/:id", websocket.New(s.handleEventsWS))

	s.app = app
	return s, nil
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	log.Info().Str("addr", addr).Msg("http server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		evt := log.Debug()
		if status >= http.StatusInternalServerError {
			evt = log.Error().Err(err)
		}
		evt.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(started)).
			Msg("http request")
		return err
	}
}

// errorStatus maps the error taxonomy onto HTTP codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, contractx.ErrSessionNotFound), errors.Is(err, contractx.ErrTenantNotFound),
		errors.Is(err, statex.ErrStateNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, contractx.ErrSessionClosed):
		return fiber.StatusConflict
	case errors.Is(err, contractx.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, contractx.ErrModelInvoke):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{"error": contractx.PublicMessage(err)})
}
