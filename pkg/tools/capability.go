package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrToolNotFound is returned when a capability is invoked for a tool that
// was never bound.
var ErrToolNotFound = errors.New("tool not found")

// Capability is an executable function bound to a registered tool.
type Capability func(ctx context.Context, args map[string]any) (map[string]any, error)

// CapabilityMap binds tool names to executable capabilities. Binding requires
// the tool to exist in the registry; invocation recovers panics into errors
// so a misbehaving tool cannot take down the pipeline.
type CapabilityMap struct {
	mu       sync.RWMutex
	registry *Registry
	bound    map[string]Capability
}

// NewCapabilityMap creates a capability map backed by the given registry.
func NewCapabilityMap(registry *Registry) *CapabilityMap {
	return &CapabilityMap{
		registry: registry,
		bound:    make(map[string]Capability),
	}
}

// Bind associates an executable capability with a registered tool name.
func (c *CapabilityMap) Bind(name string, capability Capability) error {
	if capability == nil {
		return fmt.Errorf("capability for %q cannot be nil", name)
	}
	if c.registry.Get(name) == nil {
		return fmt.Errorf("%w: %s is not registered", ErrToolNotFound, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound[name] = capability
	return nil
}

// Invoke runs the capability bound to name. A panic inside the capability is
// captured and reported as an invocation error.
func (c *CapabilityMap) Invoke(ctx context.Context, name string, args map[string]any) (result map[string]any, err error) {
	c.mu.RLock()
	capability, ok := c.bound[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool %q panicked: %v", name, r)
		}
	}()

	result, err = capability(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %q failed: %w", name, err)
	}
	return result, nil
}

// Bound lists the names with an executable capability attached.
func (c *CapabilityMap) Bound() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.bound))
	for name := range c.bound {
		names = append(names, name)
	}
	return names
}
