// Package memory provides in-process channels implementing the blob
// collaborators, for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittodrive/pkg/blob"
)

// Channels holds messages per channel plus the drive's storage channel.
type Channels struct {
	mu         sync.Mutex
	channels   map[string]map[int64]*blob.Media
	storage    map[int64]*blob.Media
	nextStored int64
	copyErrs   map[int64]error
}

// New returns an empty set of channels.
func New() *Channels {
	return &Channels{
		channels: make(map[string]map[int64]*blob.Media),
		storage:  make(map[int64]*blob.Media),
		copyErrs: make(map[int64]error),
	}
}

// Put stores media in channel under m.MessageID, creating the channel.
func (c *Channels) Put(channel string, m blob.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.channels[channel]
	if !ok {
		msgs = make(map[int64]*blob.Media)
		c.channels[channel] = msgs
	}
	stored := m
	msgs[m.MessageID] = &stored
}

// CreateChannel registers an empty channel.
func (c *Channels) CreateChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		c.channels[channel] = make(map[int64]*blob.Media)
	}
}

// FailCopy makes CopyToStorage fail for messageID with err.
func (c *Channels) FailCopy(messageID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copyErrs[messageID] = err
}

// Stored returns the number of messages in the storage channel.
func (c *Channels) Stored() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.storage)
}

func (c *Channels) Message(ctx context.Context, channel string, messageID int64) (*blob.Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.channels[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrAccessDenied, channel)
	}
	m, ok := msgs[messageID]
	if !ok || m.Size == 0 {
		return nil, blob.ErrNoContent
	}
	out := *m
	return &out, nil
}

func (c *Channels) CopyToStorage(ctx context.Context, channel string, messageID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.copyErrs[messageID]; ok {
		return 0, err
	}
	m, ok := c.channels[channel][messageID]
	if !ok {
		return 0, blob.ErrNoContent
	}

	c.nextStored++
	stored := *m
	stored.MessageID = c.nextStored
	c.storage[c.nextStored] = &stored
	return c.nextStored, nil
}

func (c *Channels) CheckAccess(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return fmt.Errorf("%w: %s", blob.ErrAccessDenied, channel)
	}
	return ctx.Err()
}
