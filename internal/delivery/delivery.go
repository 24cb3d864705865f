// Package delivery holds the long-running entry points started by the fx app.
package delivery

import "context"

// Delivery is a server or worker that runs until its lifecycle stop hook fires.
type Delivery interface {
	Serve(ctx context.Context) error
}
