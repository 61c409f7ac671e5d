// Package notify delivers rendered alert messages to an outbound push
// channel. Implementations carry their own credentials; callers hand over
// only the message text.
package notify

import "context"

// Notifier is the outbound push channel
type Notifier interface {
	Send(ctx context.Context, message string) error
}
