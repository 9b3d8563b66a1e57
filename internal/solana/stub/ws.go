package stub

import (
	"context"
	"fmt"
	"sync"

	"dlmm-rebalancer/internal/solana"
)

// WSClient implements solana.WSClient for testing. Notifications are pushed
// through Publish.
type WSClient struct {
	mu       sync.Mutex
	channels map[string]chan solana.AccountNotification
	closed   bool

	// SubscribeErr forces SubscribeAccount to fail.
	SubscribeErr error
}

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{channels: make(map[string]chan solana.AccountNotification)}
}

// Compile-time interface check.
var _ solana.WSClient = (*WSClient)(nil)

// SubscribeAccount registers a channel for the pubkey.
func (c *WSClient) SubscribeAccount(_ context.Context, pubkey string) (<-chan solana.AccountNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("client closed")
	}
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	ch := make(chan solana.AccountNotification, 16)
	c.channels[pubkey] = ch
	return ch, nil
}

// Publish delivers a notification to the pubkey's subscriber, if any.
func (c *WSClient) Publish(n solana.AccountNotification) {
	c.mu.Lock()
	ch, ok := c.channels[n.Pubkey]
	c.mu.Unlock()
	if ok {
		ch <- n
	}
}

// Close closes all subscription channels.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for pk, ch := range c.channels {
		close(ch)
		delete(c.channels, pk)
	}
	return nil
}

// Subscribed reports whether a pubkey has an active subscription.
func (c *WSClient) Subscribed(pubkey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[pubkey]
	return ok
}
