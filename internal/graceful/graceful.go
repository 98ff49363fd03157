// Package graceful coordinates shutdown of long-running services on signal
// or context cancellation.
package graceful

import (
	"context"
	"fmt"
)

type Stopper interface {
	Stop(ctx context.Context) error
}

// Service is anything the manager can stop and name in logs.
type Service interface {
	Stopper
	fmt.Stringer
}

type Manager interface {
	// Wait blocks until SIGINT/SIGTERM or context cancellation, then stops
	// every registered service within the configured timeout.
	Wait(ctx context.Context) error
	Stopper
	Register(svc Service)
}
