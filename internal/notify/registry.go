// Package notify delivers alert notifications over log, webhook and email
// channels.
package notify

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lepinkainen/og-monitor/pkg/monitor"
)

// Channel is a named notification transport
type Channel interface {
	monitor.Notifier
	Name() string
}

// Factory builds a channel from the shared notification config
type Factory func(cfg Config) (Channel, error)

// ChannelInfo describes a registered channel
type ChannelInfo struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry holds the available channel factories
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*ChannelInfo
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*ChannelInfo)}
}

// Register adds a channel factory
func (r *Registry) Register(name string, info *ChannelInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[name]; exists {
		return fmt.Errorf("notification channel %s is already registered", name)
	}
	r.channels[name] = info
	return nil
}

// Get returns the channel registered under name
func (r *Registry) Get(name string) (*ChannelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.channels[name]
	if !exists {
		return nil, fmt.Errorf("notification channel %s not found", name)
	}
	return info, nil
}

// List returns the registered channel names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the channel registered under name
func (r *Registry) Create(name string, cfg Config) (Channel, error) {
	info, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return info.Factory(cfg)
}

// Build creates every channel listed in cfg.Channels and combines them. No
// channels yields nil, which disables notifications.
func (r *Registry) Build(cfg Config) (*Multi, error) {
	if len(cfg.Channels) == 0 {
		return nil, nil
	}

	channels := make([]Channel, 0, len(cfg.Channels))
	for _, name := range cfg.Channels {
		ch, err := r.Create(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s notifier: %w", name, err)
		}
		slog.Debug("Notification channel enabled", "channel", name)
		channels = append(channels, ch)
	}
	return NewMulti(channels...), nil
}

// DefaultRegistry has the built-in channels registered
var DefaultRegistry = NewRegistry()

func register(name, description string, factory Factory) {
	if err := DefaultRegistry.Register(name, &ChannelInfo{Name: name, Description: description, Factory: factory}); err != nil {
		slog.Warn("Failed to register notification channel", "channel", name, "error", err)
	}
}

func init() {
	register(ChannelLog, "Write alerts to the application log", func(Config) (Channel, error) {
		return NewLogChannel(), nil
	})
	register(ChannelWebhook, "POST alerts as JSON to a chat webhook", func(cfg Config) (Channel, error) {
		return NewWebhookChannel(cfg.Webhook)
	})
	register(ChannelEmail, "Send alerts by email over SMTP", func(cfg Config) (Channel, error) {
		return NewEmailChannel(cfg.Email)
	})
}
