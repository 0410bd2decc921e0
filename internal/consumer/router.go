package consumer

import (
	"context"
	"fmt"

	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/event"
)

// Handler applies one event's payload to the local read-model. The
// transaction boundary is owned by the caller; repositories pick the tx
// off the context.
type Handler interface {
	Handle(ctx context.Context, env *event.Envelope) error
}

// RoutingError reports a subject with no registered handler, kept distinct
// from handler errors so "we don't know this subject" is tellable apart
// from "the projection failed".
type RoutingError struct {
	Subject string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no handler for subject %q", e.Subject)
}

// Router is a static subject -> handler table.
type Router struct {
	routes map[string]Handler
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

func (r *Router) Register(subject string, h Handler) {
	r.routes[subject] = h
}

func (r *Router) Resolve(subject string) (Handler, error) {
	h, ok := r.routes[subject]
	if !ok {
		return nil, &RoutingError{Subject: subject}
	}
	return h, nil
}
