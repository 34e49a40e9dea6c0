package sse

import (
	"context"
	"strconv"

	"github.com/kbukum/tilekit/component"
)

// HubComponent adapts a Hub to the component lifecycle so it can be
// managed by an application registry.
type HubComponent struct {
	hub *Hub
}

// NewHubComponent wraps hub. The hub must not be running yet.
func NewHubComponent(hub *Hub) *HubComponent {
	return &HubComponent{hub: hub}
}

// Hub returns the wrapped hub.
func (c *HubComponent) Hub() *Hub { return c.hub }

// Name implements component.Component.
func (c *HubComponent) Name() string { return "progress-hub" }

// Start launches the hub loop.
func (c *HubComponent) Start(ctx context.Context) error {
	go c.hub.Run()
	return nil
}

// Stop disconnects every client and stops the hub loop.
func (c *HubComponent) Stop(ctx context.Context) error {
	c.hub.Stop()
	return nil
}

// Health implements component.Component.
func (c *HubComponent) Health(ctx context.Context) component.Health {
	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Message: strconv.Itoa(c.hub.ClientCount()) + " clients",
	}
}
