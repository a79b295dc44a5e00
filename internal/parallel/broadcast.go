package parallel

import (
	"context"
	"sync"
)

// Broadcaster delivers announcements to every subscribed worker.
type Broadcaster interface {
	Broadcast(ctx context.Context, a Announcement) error
}

// BroadcasterFunc adapts a function to the Broadcaster interface.
type BroadcasterFunc func(ctx context.Context, a Announcement) error

// Broadcast calls f.
func (f BroadcasterFunc) Broadcast(ctx context.Context, a Announcement) error { return f(ctx, a) }

// ChannelBroadcaster fans announcements out to in-process subscribers over
// buffered channels.
type ChannelBroadcaster struct {
	mu     sync.Mutex
	subs   []chan Announcement
	closed bool
}

// NewChannelBroadcaster returns a broadcaster without subscribers.
func NewChannelBroadcaster() *ChannelBroadcaster {
	return &ChannelBroadcaster{}
}

// Subscribe registers a subscriber with the given channel buffer.
func (b *ChannelBroadcaster) Subscribe(buffer int) <-chan Announcement {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Announcement, buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Broadcast sends a to every subscriber, blocking on full buffers until ctx
// ends.
func (b *ChannelBroadcaster) Broadcast(ctx context.Context, a Announcement) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- a:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close closes every subscriber channel. Later subscribers receive a closed
// channel.
func (b *ChannelBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
