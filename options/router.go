// Package options implements a string-keyed SetOption dispatch table: a
// table lookup rather than a chain of nested conditionals, the same shape
// a name-keyed event bus uses for handler registration by topic.
package options

import "fmt"

// Handler applies one named option's value. It returns an error if the
// value is malformed or the underlying component rejected it.
type Handler func(value any) error

// FallbackHandler applies an unrecognized option by name; unlike Handler
// it receives the name since it has no dedicated registration to close
// over it.
type FallbackHandler func(name string, value any) error

// Router dispatches SetOption calls by name. A Fallback, if set, handles
// any name with no explicit entry.
type Router struct {
	handlers map[string]Handler
	fallback FallbackHandler
}

// NewRouter constructs an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register installs the handler for name, overwriting any previous entry.
func (r *Router) Register(name string, h Handler) {
	r.handlers[name] = h
}

// SetFallback installs the handler used for unrecognized names.
func (r *Router) SetFallback(h FallbackHandler) {
	r.fallback = h
}

// Dispatch applies the option. If name has no registered handler and no
// fallback is set, it returns an error.
func (r *Router) Dispatch(name string, value any) error {
	if h, ok := r.handlers[name]; ok {
		return h(value)
	}
	if r.fallback != nil {
		return r.fallback(name, value)
	}
	return fmt.Errorf("options: no handler registered for %q", name)
}
