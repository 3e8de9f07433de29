package activity

import "context"

// Dispatcher sends events to an external activity log.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []*Event) error
}
