package ports

import "context"

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
