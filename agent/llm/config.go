package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	openrouterx "github.com/adhityan/resto-ai-sub001/pkg/openrouter"
)

// Config drives the in-process conversation runtime. Leaving APIKey empty
// disables it; external voice runtimes then call the tool API directly.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"openai/gpt-4o-mini"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"400"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	// SummaryModel falls back to Model. Set Summarize=false to skip summaries.
	SummaryModel  string `envconfig:"SUMMARY_MODEL" split_words:"true"`
	Summarize     bool   `envconfig:"SUMMARIZE" split_words:"true" default:"true"`
	MaxToolRounds int    `envconfig:"MAX_TOOL_ROUNDS" split_words:"true" default:"4"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: llm model is required when an api key is set", contractx.ErrConfiguration)
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("%w: llm max tool rounds must be at least 1", contractx.ErrConfiguration)
	}
	return nil
}

// OpenRouter returns the chat model settings for the conversation runtime.
func (c Config) OpenRouter() openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

func (c Config) SummaryModelName() string {
	if v := strings.TrimSpace(c.SummaryModel); v != "" {
		return v
	}
	return strings.TrimSpace(c.Model)
}
