package proxy

import "context"

// Publisher is the message bus the proxy reports to.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error
	IsConnected() bool
}

// Restarter terminates and restarts the process. Restart does not return on
// success.
type Restarter interface {
	Restart(ctx context.Context) error
}
