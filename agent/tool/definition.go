package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

// Directive tells the session what a tool outcome means for the call.
type Directive int

const (
	DirectiveNone Directive = iota
	DirectiveEndCall
	DirectiveTransfer
)

func (d Directive) String() string {
	switch d {
	case DirectiveEndCall:
		return "end_call"
	case DirectiveTransfer:
		return "transfer"
	default:
		return "none"
	}
}

// BookingSet reports booking ids the caller has already looked up in this call.
type BookingSet interface {
	Has(bookingID string) bool
}

// SessionContext is the per-call state handlers operate on. Handlers hold no
// state of their own.
type SessionContext struct {
	SessionID     string
	Tenant        contractx.TenantConfig
	Backend       contractx.ReservationBackend
	Calls         contractx.CallControl
	CallSID       string
	CustomerPhone string

	KnownBookings BookingSet
	RequireLookup bool
}

// Outcome is a handler's result plus its effect on the session.
type Outcome struct {
	Result    contractx.ToolResult
	Directive Directive
	// Bookings lists ids the result revealed to the caller.
	Bookings []string
	// Reason is recorded on the call when Directive ends it.
	Reason string
}

type Handler func(ctx context.Context, sc SessionContext, args Args) Outcome

type Param struct {
	Name     string
	Type     schema.DataType
	Desc     string
	Required bool
}

type Definition struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

func (d Definition) Info() *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(d.Params))
	for _, p := range d.Params {
		params[p.Name] = &schema.ParameterInfo{Type: p.Type, Desc: p.Desc, Required: p.Required}
	}
	return &schema.ToolInfo{
		Name:        d.Name,
		Desc:        d.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

// Declaration is the JSON form of a tool for runtimes outside this process.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Declare renders the parameters as a JSON Schema object that rejects
// undeclared fields.
func (d Definition) Declare() Declaration {
	props := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		props[p.Name] = map[string]any{"type": string(p.Type), "description": p.Desc}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Declaration{
		Name:        d.Name,
		Description: d.Description,
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		},
	}
}

// Args holds arguments that passed Validate, keyed by parameter name.
type Args map[string]any

func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Validate checks raw JSON arguments against the declared parameters. Errors
// are phrased for the model, e.g. "booking_id is required".
func (d Definition) Validate(raw []byte) (Args, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var in map[string]any
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: arguments must be a JSON object", contractx.ErrValidation)
	}

	declared := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		declared[p.Name] = p
	}

	unknown := make([]string, 0)
	for name := range in {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown argument %s", contractx.ErrValidation, strings.Join(unknown, ", "))
	}

	out := make(Args, len(d.Params))
	for _, p := range d.Params {
		v, present := in[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, fmt.Errorf("%w: %s is required", contractx.ErrValidation, p.Name)
			}
			continue
		}
		coerced, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		if s, ok := coerced.(string); ok && s == "" {
			if p.Required {
				return nil, fmt.Errorf("%w: %s is required", contractx.ErrValidation, p.Name)
			}
			continue
		}
		out[p.Name] = coerced
	}
	return out, nil
}

// maxIntArg bounds integer arguments so they convert to int on every platform.
const maxIntArg = math.MaxInt32

func coerce(p Param, v any) (any, error) {
	switch p.Type {
	case schema.String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string", contractx.ErrValidation, p.Name)
		}
		return strings.TrimSpace(s), nil
	case schema.Integer:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a whole number", contractx.ErrValidation, p.Name)
		}
		f, err := n.Float64()
		if i, ierr := n.Int64(); ierr == nil {
			f, err = float64(i), nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%w: %s is out of range", contractx.ErrValidation, p.Name)
		}
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s must be a whole number", contractx.ErrValidation, p.Name)
		}
		if math.Abs(f) > maxIntArg {
			return nil, fmt.Errorf("%w: %s is out of range", contractx.ErrValidation, p.Name)
		}
		return int(f), nil
	case schema.Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be true or false", contractx.ErrValidation, p.Name)
		}
		return b, nil
	default:
		return v, nil
	}
}
