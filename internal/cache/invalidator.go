package cache

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/oriys/fmidb/internal/logging"
)

// InvalidationChannel carries keys to drop from local layers. Publishing
// is how an operator forces running servers to re-read metadata that has
// changed in the database.
const InvalidationChannel = "fmidb:invalidate"

// Invalidator deletes keys from a local cache when they are published on
// InvalidationChannel.
type Invalidator struct {
	local  Cache
	client *redis.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator for local.
func NewInvalidator(local Cache, client *redis.Client) *Invalidator {
	return &Invalidator{local: local, client: client}
}

// Start subscribes and blocks until ctx is cancelled or Close is called.
// ready, when non-nil, is closed once the subscription is confirmed.
func (inv *Invalidator) Start(ctx context.Context, ready chan<- struct{}) error {
	subCtx, cancel := context.WithCancel(ctx)
	inv.mu.Lock()
	if inv.closed {
		inv.mu.Unlock()
		cancel()
		return nil
	}
	inv.cancel = cancel
	inv.mu.Unlock()
	defer cancel()

	pubsub := inv.client.Subscribe(subCtx, InvalidationChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(subCtx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			logging.Op().Debug("cache invalidation", "key", msg.Payload)
			_ = inv.local.Delete(subCtx, msg.Payload)
		}
	}
}

// Publish announces that key must be dropped by every subscriber.
func Publish(ctx context.Context, client *redis.Client, key string) error {
	return client.Publish(ctx, InvalidationChannel, key).Err()
}

// Close stops the listener.
func (inv *Invalidator) Close() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.closed {
		return nil
	}
	inv.closed = true
	if inv.cancel != nil {
		inv.cancel()
	}
	return nil
}
