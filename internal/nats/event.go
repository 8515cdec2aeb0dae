// Package nats publishes registration events so other systems can react to
// newly registered hosts.
package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stone-age-io/autoregister/internal/config"
	"github.com/stone-age-io/autoregister/internal/hostinfo"
	"github.com/stone-age-io/autoregister/internal/reconcile"
	"go.uber.org/zap"
)

// RegistrationEvent is published after every run, created or skipped
type RegistrationEvent struct {
	ID        string             `json:"id"`
	Hostname  string             `json:"hostname"`
	Interface string             `json:"interface"`
	MAC       string             `json:"mac_address"`
	Address   string             `json:"address"`
	SiteID    int                `json:"site_id"`
	Status    reconcile.Status   `json:"status"`
	DeviceID  int                `json:"device_id"`
	Created   []reconcile.Record `json:"created,omitempty"`
	OS        string             `json:"os,omitempty"`
	Timestamp string             `json:"timestamp"`
}

// NewRegistrationEvent builds the event for one run
func NewRegistrationEvent(host hostinfo.HostInfo, result reconcile.Result, osRelease string) RegistrationEvent {
	return RegistrationEvent{
		ID:        uuid.NewString(),
		Hostname:  host.Hostname,
		Interface: host.InterfaceName,
		MAC:       host.MACAddress,
		Address:   host.IPv4CIDR,
		SiteID:    result.SiteID,
		Status:    result.Status,
		DeviceID:  result.DeviceID,
		Created:   result.Created,
		OS:        osRelease,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Subject returns <prefix>.<hostname>.registration. Characters that are
// not valid in a subject token are replaced with underscores.
func Subject(prefix, hostname string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, hostname)
	if token == "" {
		token = "_"
	}
	return fmt.Sprintf("%s.%s.registration", prefix, token)
}

// Notifier opens a connection per event and drains it after publishing
type Notifier struct {
	config *config.NATSConfig
	logger *zap.Logger
}

// NewNotifier creates a notifier for cfg
func NewNotifier(cfg *config.NATSConfig, logger *zap.Logger) *Notifier {
	return &Notifier{config: cfg, logger: logger}
}

// Notify publishes event
func (n *Notifier) Notify(ctx context.Context, event RegistrationEvent) error {
	client, err := NewClient(n.config, n.logger)
	if err != nil {
		return err
	}
	defer client.Drain(n.config.Timeout)

	return client.PublishEvent(ctx, event)
}
