package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/helixkernel/kernel/pkg/kerr"
)

// HandlerFunc is one registered operation: it receives the engine handle and
// a JSON-like argument map, and returns its result or a kernel error. The
// gateway's role is purely transport; handlers own their transactions.
type HandlerFunc func(e *Engine, args map[string]any) (any, error)

// Response is the envelope handed back to the gateway. Error is set when the
// handler failed or the operation is unknown; otherwise Data carries the
// handler's result, which may be nil.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorEnvelope `json:"error,omitempty"`
}

// ErrorEnvelope is the compact {code, message} form kernel outcomes are
// translated into at the handler boundary.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Register binds an operation name to a handler. Re-registering a name
// replaces the previous binding.
func (e *Engine) Register(name string, h HandlerFunc) {
	e.handlers[name] = h
}

// Dispatch runs the named handler. Unknown operation names are reported in
// the same envelope; the gateway never sees a Go error from this path.
func (e *Engine) Dispatch(name string, args map[string]any) Response {
	h, ok := e.handlers[name]
	if !ok {
		return Response{Error: &ErrorEnvelope{
			Code:    "UnknownOperation",
			Message: fmt.Sprintf("no handler registered for %q", name),
		}}
	}
	data, err := h(e, args)
	if err != nil {
		e.logger.Warn("handler failed",
			zap.String("op", name),
			zap.Error(err))
		return Response{Error: envelope(err)}
	}
	return Response{Data: data}
}

// envelope translates a kernel outcome into its wire form. Tagged errors
// carry their family and kind as the code; anything else is Internal.
func envelope(err error) *ErrorEnvelope {
	var ke *kerr.Error
	if errors.As(err, &ke) {
		return &ErrorEnvelope{
			Code:    string(ke.Family) + "." + string(ke.Kind),
			Message: ke.Message,
		}
	}
	return &ErrorEnvelope{Code: "Internal", Message: err.Error()}
}
