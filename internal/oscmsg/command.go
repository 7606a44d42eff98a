package oscmsg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

// ArgType declares how a command argument is encoded on the wire.
// The tags mirror OSC type tags: f=float32, i=int32, d=float64, s=string.
type ArgType string

const (
	TypeFloat  ArgType = "f"
	TypeInt    ArgType = "i"
	TypeDouble ArgType = "d"
	TypeString ArgType = "s"
)

// Arg is one typed OSC argument. Value carries whatever the caller or the
// JSON decoder produced; Coerce converts it to the declared wire type.
type Arg struct {
	Type  ArgType `json:"type"`
	Value any     `json:"value"`
}

// CommandRequest describes one outbound OSC message. Key optionally names
// the rate-limit bucket; when empty the relay keys by Address.
type CommandRequest struct {
	Address string `json:"address"`
	Args    []Arg  `json:"args,omitempty"`
	Key     string `json:"key,omitempty"`
}

// ErrInvalidAddress marks requests whose address does not begin with '/'.
var ErrInvalidAddress = errors.New("osc address must begin with '/'")

// Validate checks the request shape without touching the network.
func (r CommandRequest) Validate() error {
	if !strings.HasPrefix(r.Address, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, r.Address)
	}
	for i, arg := range r.Args {
		if _, err := arg.Coerce(); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}

// Message builds the wire message, coercing every argument to its declared
// type. Callers should Validate first; Message repeats coercion so it can
// be used standalone.
func (r CommandRequest) Message() (*osc.Message, error) {
	msg := osc.NewMessage(r.Address)
	for i, arg := range r.Args {
		value, err := arg.Coerce()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		msg.Append(value)
	}
	return msg, nil
}

// Coerce converts Value to the Go representation of the declared type:
// float32 for f, int32 for i, float64 for d, string for s. Integer
// coercion truncates fractional input.
func (a Arg) Coerce() (any, error) {
	switch a.Type {
	case TypeFloat:
		f, ok := toFloat64(a.Value)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %T to float", a.Value)
		}
		return float32(f), nil
	case TypeInt:
		f, ok := toFloat64(a.Value)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %T to integer", a.Value)
		}
		return int32(f), nil
	case TypeDouble:
		f, ok := toFloat64(a.Value)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %T to double", a.Value)
		}
		return f, nil
	case TypeString:
		return stringify(a.Value), nil
	default:
		return nil, fmt.Errorf("unknown argument type %q", a.Type)
	}
}

// Float returns a float-typed argument.
func Float(v float32) Arg { return Arg{Type: TypeFloat, Value: v} }

// Int returns an integer-typed argument.
func Int(v int32) Arg { return Arg{Type: TypeInt, Value: v} }

// Double returns a double-typed argument.
func Double(v float64) Arg { return Arg{Type: TypeDouble, Value: v} }

// String returns a string-typed argument.
func String(v string) Arg { return Arg{Type: TypeString, Value: v} }

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
