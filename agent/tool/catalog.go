package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

const (
	ToolCheckAvailability  = "check_availability"
	ToolSearchReservations = "search_reservations"
	ToolGetReservation     = "get_reservation"
	ToolCancelReservation  = "cancel_reservation"
	ToolRestaurantInfo     = "get_restaurant_info"
	ToolTransferToManager  = "transfer_to_manager"
	ToolEndCall            = "end_call"
)

// Catalog is an ordered, immutable set of tool definitions shared by all calls.
type Catalog struct {
	defs   []Definition
	byName map[string]Definition
}

func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" || d.Handler == nil {
			return nil, fmt.Errorf("%w: tool definition needs a name and a handler", contractx.ErrConfiguration)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %s", contractx.ErrConfiguration, d.Name)
		}
		c.defs = append(c.defs, d)
		c.byName[d.Name] = d
	}
	return c, nil
}

// Default returns the receptionist tool set.
func Default() *Catalog {
	c, err := NewCatalog(
		checkAvailability(),
		searchReservations(),
		getReservation(),
		cancelReservation(),
		restaurantInfo(),
		transferToManager(),
		endCall(),
	)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(c.defs))
	for _, d := range c.defs {
		infos = append(infos, d.Info())
	}
	return infos
}

func (c *Catalog) Declarations() []Declaration {
	out := make([]Declaration, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d.Declare())
	}
	return out
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for _, d := range c.defs {
		names = append(names, d.Name)
	}
	return names
}

func (c *Catalog) Lookup(name string) (Definition, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Execute validates raw arguments and runs the named handler. It never returns
// an error: every failure, including a handler panic, becomes a failed result.
func (c *Catalog) Execute(ctx context.Context, sc SessionContext, name string, raw []byte) (out Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", name).Interface("panic", r).Msg("tool handler panicked")
			out = Outcome{Result: contractx.Failure(name, contractx.KindInternal, "the tool failed unexpectedly, please try again or transfer the call")}
		}
		evt := log.Info()
		if !out.Result.OK {
			evt = log.Warn().Str("error_kind", string(out.Result.Kind))
		}
		evt.Str("session_id", sc.SessionID).
			Str("tool", name).
			Bool("ok", out.Result.OK).
			Dur("latency", time.Since(started)).
			Msg("tool invoked")
	}()

	def, ok := c.Lookup(name)
	if !ok {
		return Outcome{Result: fail(name, fmt.Errorf("%w: %s is not an available tool", contractx.ErrUnknownTool, name))}
	}
	args, err := def.Validate(raw)
	if err != nil {
		return Outcome{Result: fail(name, err)}
	}
	out = def.Handler(ctx, sc, args)
	out.Result.Tool = name
	return out
}

func fail(tool string, err error) contractx.ToolResult {
	return contractx.Failure(tool, contractx.KindOf(err), contractx.PublicMessage(err))
}
