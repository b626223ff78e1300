package event

import (
	"context"
)

// Emitter records background work to be carried out by the outbox
// processor after the current request has returned.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}
