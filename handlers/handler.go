// Package handlers maps handler names embedded in alerts to the
// integrations that turn an alert into an external action.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"alertrelay/core"

	"go.uber.org/zap"
)

// ErrUnknownHandler is the outcome error for a handler name with no
// registered implementation. A misspelled name in a detection query
// would otherwise drop the alert silently, so it surfaces through the
// same failure path as a handler error.
var ErrUnknownHandler = errors.New("unknown alert handler")

// Handler turns one alert into one external action (a ticket, a page).
// A nil return means the alert was resolved by this handler; an error
// return is the failure signal and never aborts the dispatch loop.
// Handlers perform no internal retry; the call blocks until the remote
// side answers or its client timeout fires.
type Handler interface {
	Handle(ctx context.Context, name string, alert core.Alert) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, name string, alert core.Alert) error

func (f HandlerFunc) Handle(ctx context.Context, name string, alert core.Alert) error {
	return f(ctx, name, alert)
}

// Outcome is the result of invoking one named handler for one alert.
type Outcome struct {
	Handler string
	Err     error
}

// Registry maps handler names to implementations. New handlers are
// added by registering an implementation at startup, not by editing
// the dispatch loop.
type Registry struct {
	handlers map[string]Handler
	logger   *zap.SugaredLogger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a handler implementation to a name. Registering the
// same name twice replaces the previous binding.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
	r.logger.Infof("Registered alert handler %q", name)
}

// Names returns the registered handler names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch invokes each handler the alert requests, sequentially and
// exactly once per name, and returns one outcome per invocation. A
// repeated name in the HANDLERS list is collapsed to a single
// invocation. Dispatch itself never fails; failures live in the
// outcomes.
func (r *Registry) Dispatch(ctx context.Context, alert core.Alert) []Outcome {
	names := alert.Body.Handlers()
	outcomes := make([]Outcome, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		h, ok := r.handlers[name]
		if !ok {
			r.logger.Warnf("Alert %s requests unregistered handler %q",
				alert.Body.AlertID(), name)
			outcomes = append(outcomes, Outcome{
				Handler: name,
				Err:     fmt.Errorf("%w: %q", ErrUnknownHandler, name),
			})
			continue
		}

		err := h.Handle(ctx, name, alert)
		if err != nil {
			r.logger.Errorf("Handler %q failed for alert %s: %v",
				name, alert.Body.AlertID(), err)
		}
		outcomes = append(outcomes, Outcome{Handler: name, Err: err})
	}

	return outcomes
}
