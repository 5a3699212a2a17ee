package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adhityan/resto-ai-sub001/agent/agents/conversation"
	"github.com/adhityan/resto-ai-sub001/agent/agents/receptionist"
	"github.com/adhityan/resto-ai-sub001/agent/api"
	"github.com/adhityan/resto-ai-sub001/agent/backend"
	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/customer"
	llmx "github.com/adhityan/resto-ai-sub001/agent/llm"
	nodex "github.com/adhityan/resto-ai-sub001/agent/nodes"
	"github.com/adhityan/resto-ai-sub001/agent/prompt"
	statex "github.com/adhityan/resto-ai-sub001/agent/state"
	"github.com/adhityan/resto-ai-sub001/agent/tenant"
	"github.com/adhityan/resto-ai-sub001/agent/tool"
	"github.com/adhityan/resto-ai-sub001/agent/transcript"
	configx "github.com/adhityan/resto-ai-sub001/pkg/config"
	_ "github.com/adhityan/resto-ai-sub001/pkg/logger/autoload"
	openrouterx "github.com/adhityan/resto-ai-sub001/pkg/openrouter"
	"github.com/adhityan/resto-ai-sub001/pkg/publisher"
	qstashx "github.com/adhityan/resto-ai-sub001/pkg/qstash"
	"github.com/adhityan/resto-ai-sub001/pkg/telephony"
)

var version = "dev"

type AppConfig struct {
	BackendURL                string        `envconfig:"BACKEND_URL" required:"true"`
	TenantsFile               string        `envconfig:"TENANTS_FILE" required:"true"`
	HTTPAddr                  string        `envconfig:"HTTP_ADDR" default:":8080"`
	ToolTimeout               time.Duration `envconfig:"TOOL_TIMEOUT" default:"10s"`
	DefaultRegion             string        `envconfig:"DEFAULT_REGION" default:"FR"`
	RequireLookupBeforeCancel bool          `envconfig:"REQUIRE_LOOKUP_BEFORE_CANCEL" default:"true"`
	PublicURL                 string        `envconfig:"PUBLIC_URL"`
	Greeting                  string        `envconfig:"GREETING"`
	TranscriptBatchSize       int           `envconfig:"TRANSCRIPT_BATCH_SIZE" default:"20"`
	ShutdownTimeout           time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

func (c AppConfig) Validate() error {
	if _, err := url.ParseRequestURI(strings.TrimSpace(c.BackendURL)); err != nil {
		return fmt.Errorf("%w: invalid backend url: %v", contractx.ErrConfiguration, err)
	}
	if _, ok := customer.CallingCode(c.DefaultRegion); !ok {
		return fmt.Errorf("%w: unsupported default region %q", contractx.ErrConfiguration, c.DefaultRegion)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("voice agent stopped")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	twilioCfg := configx.MustNew[telephony.Config]("TWILIO")
	mqttCfg := configx.MustNew[publisher.Config]("MQTT")
	pgCfg := configx.MustNew[transcript.PostgresConfig]("POSTGRES")
	upstashCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")

	registry, err := tenant.Load(appCfg.TenantsFile)
	if err != nil {
		return err
	}
	callingCode, _ := customer.CallingCode(appCfg.DefaultRegion)
	catalog := tool.Default()
	prompts := prompt.LoadPromptSet()

	// Every client is bound to one call; the factory runs once per session.
	clients := func(t contractx.TenantConfig) (nodex.Client, error) {
		return backend.New(backend.Config{
			BaseURL: appCfg.BackendURL,
			APIKey:  t.APIKey,
			Timeout: appCfg.ToolTimeout,
		})
	}

	var (
		sinks     []contractx.TranscriptSink
		snapshots api.SnapshotLoader
		closers   []func() error
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("release resource")
			}
		}
	}()

	if pgCfg.Enabled() {
		db, err := transcript.OpenPostgres(ctx, *pgCfg)
		if err != nil {
			return err
		}
		closers = append(closers, db.Close)
		pg := transcript.NewPostgresSink(db)
		if pgCfg.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		sinks = append(sinks, pg)
		log.Info().Msg("postgres transcript sink enabled")
	}

	if mqttCfg.Enabled() {
		pub, err := publisher.NewMQTTPublisher(*mqttCfg)
		if err != nil {
			return err
		}
		closers = append(closers, pub.Close)
		sinks = append(sinks, transcript.NewEventSink(pub, mqttCfg.TopicPrefix))
		log.Info().Str("broker", mqttCfg.Broker).Msg("mqtt event sink enabled")
	}

	if upstashCfg.Enabled() {
		store, err := statex.NewUpstashRedisStore(*upstashCfg, statex.WithTTL(upstashCfg.TTL))
		if err != nil {
			return err
		}
		instance, _ := os.Hostname()
		sinks = append(sinks, statex.NewRecorder(store, instance))
		snapshots = store
		log.Info().Msg("upstash snapshot store enabled")
	}

	if qstashCfg.Enabled() {
		if qstashCfg.Destination == "" {
			return fmt.Errorf("%w: qstash destination is required", contractx.ErrConfiguration)
		}
		queue, err := qstashx.NewClient(*qstashCfg)
		if err != nil {
			return err
		}
		sinks = append(sinks, transcript.NewQueueSink(queue, qstashCfg.Destination))
		log.Info().Str("destination", qstashCfg.Destination).Msg("qstash delivery enabled")
	}

	var (
		responder  api.Responder
		summarizer contractx.Summarizer
	)
	if llmCfg.Enabled() {
		orCfg := llmCfg.OpenRouter()
		chatModel, err := orCfg.New(ctx)
		if err != nil {
			return err
		}
		runner, err := conversation.New(ctx, conversation.Config{
			Model:         chatModel,
			Catalog:       catalog,
			SystemPrompt:  prompts.Receptionist,
			MaxToolRounds: llmCfg.MaxToolRounds,
		})
		if err != nil {
			return err
		}
		responder = runner

		if llmCfg.Summarize {
			s, err := conversation.NewSummarizer(openrouterx.NewClient(orCfg), llmCfg.SummaryModelName(), prompts.Summary)
			if err != nil {
				return err
			}
			summarizer = s
		}
		log.Info().Str("model", orCfg.Model).Msg("conversation runtime enabled")
	}

	var (
		calls     contractx.CallControl
		validator *telephony.SignatureValidator
	)
	if twilioCfg.Enabled() {
		c, err := telephony.New(*twilioCfg)
		if err != nil {
			return err
		}
		calls = c
		if twilioCfg.ValidateSignature {
			validator = telephony.NewSignatureValidator(twilioCfg.AuthToken)
		}
		log.Info().Bool("validate_signature", validator != nil).Msg("twilio call control enabled")
	}

	rec, err := receptionist.New(receptionist.Config{
		Tenants:                   registry,
		Clients:                   clients,
		Calls:                     calls,
		Catalog:                   catalog,
		Sinks:                     sinks,
		Summarizer:                summarizer,
		CallingCode:               callingCode,
		RequireLookupBeforeCancel: appCfg.RequireLookupBeforeCancel,
		TranscriptBatchSize:       appCfg.TranscriptBatchSize,
	})
	if err != nil {
		return err
	}

	srv, err := api.New(api.Config{
		Receptionist: rec,
		Catalog:      catalog,
		Responder:    responder,
		Snapshots:    snapshots,
		Validator:    validator,
		PublicURL:    appCfg.PublicURL,
		StreamURL:    twilioCfg.StreamURL,
		Greeting:     appCfg.Greeting,
		Version:      version,
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("tenants", registry.Len()).
		Int("sinks", len(sinks)).
		Str("version", version).
		Msg("voice agent ready")

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- srv.Listen(appCfg.HTTPAddr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := rec.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close receptionist: %w", err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	return errors.Join(errs...)
}
