package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"agrimon-alert/internal/models"
)

// ErrUnknownChannel is returned when a send names an unregistered channel.
var ErrUnknownChannel = errors.New("unknown notification channel")

// Channel is one delivery medium. Send delivers a payload to a recipient
// address and returns a channel-specific result, or fails with a transport
// error. Implementations must honor ctx cancellation so a hung provider
// converts to a failed outcome instead of blocking sibling channels.
type Channel interface {
	Send(ctx context.Context, recipient string, payload models.Payload) (*models.DeliveryResult, error)
}

// Registry maps channel identifiers to implementations. It is populated
// once at startup and read-only afterwards.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel under an identifier, replacing any previous one.
func (r *Registry) Register(id string, channel Channel) {
	r.channels[id] = channel
}

// Resolve returns the channel for an identifier, or ErrUnknownChannel.
func (r *Registry) Resolve(id string) (Channel, error) {
	channel, ok := r.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	return channel, nil
}

// IDs returns the registered channel identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
