package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

func Init(opts ...Config) {
	conf := safe(opts...)

	var out io.Writer = os.Stdout
	if conf.PrettyFormat {
		out = zerolog.NewConsoleWriter()
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if conf.Debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	log.Logger = log.Logger.With().Caller().Stack().Logger()
}

// ForSession returns a child of the global logger tagged with call identity.
func ForSession(sessionID, tenantID, callSID string) zerolog.Logger {
	ctx := log.Logger.With().Str("session_id", sessionID)
	if tenantID != "" {
		ctx = ctx.Str("tenant_id", tenantID)
	}
	if callSID != "" {
		ctx = ctx.Str("call_sid", callSID)
	}
	return ctx.Logger()
}
