// Package publisher defines the message publishing contract used to forward
// tracker notifications to other systems. Implementations live in the
// memory and pubsub subpackages.
package publisher

import "context"

// Publisher sends one JSON-encodable payload with string attributes and
// returns the server-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, attrs map[string]string, payload any) (string, error)
	Close(ctx context.Context) error
}
