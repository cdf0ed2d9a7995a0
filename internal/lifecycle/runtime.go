package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type named struct {
	name      string
	component Component
}

// Runtime starts components in registration order and stops the started ones in reverse.
type Runtime struct {
	mu         sync.Mutex
	components []named
	started    []named
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, named{name: name, component: component})
}

func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.components {
		if err := c.component.Start(ctx); err != nil {
			stopErr := stopComponents(ctx, r.started)
			r.started = nil
			return errors.Join(fmt.Errorf("start %s: %w", c.name, err), stopErr)
		}
		log.WithField("component", c.name).Debug("started")
		r.started = append(r.started, c)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := stopComponents(ctx, r.started)
	r.started = nil
	return err
}

func stopComponents(ctx context.Context, components []named) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.component.Stop(ctx); err != nil {
			log.WithField("component", c.name).WithField("error", err.Error()).Warn("stop failed")
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %s: %w", c.name, err))
			continue
		}
		log.WithField("component", c.name).Debug("stopped")
	}
	return stopErr
}
