// Package conversation drives a call with an in-process chat model: it feeds
// caller turns to the model and executes the tool calls it asks for against
// the call session.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/session"
	"github.com/adhityan/resto-ai-sub001/agent/tool"
)

const defaultMaxToolRounds = 4

var ErrToolRounds = errors.New("model kept calling tools without answering")

// Session is the part of a call session the runner drives.
type Session interface {
	ID() string
	Grounding() string
	Status() contractx.CallStatus
	Done() <-chan struct{}
	Say(ctx context.Context, speaker contractx.Speaker, text string, interrupted bool) error
	Invoke(ctx context.Context, name string, rawArgs []byte) (contractx.ToolResult, error)
}

var _ Session = (*session.Session)(nil)

type Config struct {
	Model   einomodel.ToolCallingChatModel
	Catalog *tool.Catalog
	// SystemPrompt is an FString template with {today} and {grounding}.
	SystemPrompt  string
	MaxToolRounds int
	Now           func() time.Time
}

// Reply is what the agent said during one turn.
type Reply struct {
	Text   string               `json:"text"`
	Ended  bool                 `json:"ended"`
	Status contractx.CallStatus `json:"status"`
}

type Runner struct {
	turnRunner compose.Runnable[[]*schema.Message, *schema.Message]
	template   *einoprompt.DefaultChatTemplate
	maxRounds  int
	now        func() time.Time

	mu        sync.Mutex
	histories map[string]*history
}

type history struct {
	mu   sync.Mutex
	msgs []*schema.Message
}

func New(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	if cfg.Catalog == nil {
		cfg.Catalog = tool.Default()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	toolModel, err := cfg.Model.WithTools(cfg.Catalog.Infos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}
	turnRunner, err := compileTurnGraph(ctx, toolModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	return &Runner{
		turnRunner: turnRunner,
		template:   einoprompt.FromMessages(schema.FString, schema.SystemMessage(cfg.SystemPrompt)),
		maxRounds:  cfg.MaxToolRounds,
		now:        cfg.Now,
		histories:  make(map[string]*history),
	}, nil
}

// Respond records the caller's turn, lets the model call tools until it
// answers, and records what the agent said. It stops early once a tool ends
// the call.
func (r *Runner) Respond(ctx context.Context, s Session, userText string) (Reply, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return Reply{}, fmt.Errorf("%w: caller text is empty", contractx.ErrValidation)
	}

	h, err := r.history(ctx, s)
	if err != nil {
		return Reply{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := s.Say(ctx, contractx.SpeakerUser, text, false); err != nil {
		return Reply{Status: s.Status()}, err
	}
	h.msgs = append(h.msgs, schema.UserMessage(text))

	var spoken []string
	for round := 0; round < r.maxRounds; round++ {
		msg, err := r.turnRunner.Invoke(ctx, h.msgs)
		if err != nil {
			return Reply{Text: strings.Join(spoken, " "), Status: s.Status()},
				fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		if msg == nil {
			return Reply{Text: strings.Join(spoken, " "), Status: s.Status()},
				fmt.Errorf("%w: empty model response", contractx.ErrModelInvoke)
		}
		h.msgs = append(h.msgs, msg)

		// Anything said alongside a tool call is spoken before the tool runs,
		// so a farewell lands in the transcript ahead of end_call.
		if content := strings.TrimSpace(msg.Content); content != "" {
			if err := s.Say(ctx, contractx.SpeakerAgent, content, false); err != nil {
				return Reply{Text: strings.Join(spoken, " "), Status: s.Status()}, err
			}
			spoken = append(spoken, content)
		}
		if len(msg.ToolCalls) == 0 {
			return Reply{Text: strings.Join(spoken, " "), Status: s.Status()}, nil
		}

		for _, call := range msg.ToolCalls {
			res, err := s.Invoke(ctx, call.Function.Name, []byte(call.Function.Arguments))
			h.msgs = append(h.msgs, schema.ToolMessage(res.Text(), call.ID))
			if err != nil && !session.IsClosed(err) {
				return Reply{Text: strings.Join(spoken, " "), Status: s.Status()}, err
			}
			if s.Status().IsTerminal() {
				return Reply{Text: strings.Join(spoken, " "), Ended: true, Status: s.Status()}, nil
			}
		}
	}

	log.Warn().Str("session_id", s.ID()).Int("rounds", r.maxRounds).Msg("tool round limit reached")
	return Reply{Text: strings.Join(spoken, " "), Status: s.Status()}, ErrToolRounds
}

// history returns the message log for s, seeded with the system prompt on
// first use and dropped when the session ends.
func (r *Runner) history(ctx context.Context, s Session) (*history, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.histories[s.ID()]; ok {
		return h, nil
	}
	if s.Status().IsTerminal() {
		return nil, contractx.ErrSessionClosed
	}

	system, err := r.template.Format(ctx, map[string]any{
		"today":     r.now().Format("Monday 2 January 2006"),
		"grounding": s.Grounding(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: format system prompt: %v", contractx.ErrPromptMissing, err)
	}

	h := &history{msgs: system}
	r.histories[s.ID()] = h

	id := s.ID()
	done := s.Done()
	go func() {
		<-done
		r.mu.Lock()
		delete(r.histories, id)
		r.mu.Unlock()
	}()
	return h, nil
}

// Conversations reports how many calls currently hold model history.
func (r *Runner) Conversations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.histories)
}
