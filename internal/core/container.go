package core

import (
	"context"
	"errors"
	"fmt"
)

// ContainerSpec describes a container by its natural key and ancestry.
type ContainerSpec struct {
	Type EntityType
	// Match is the natural key, unique among the children of the ancestor.
	Match Fields
	// Ancestor is resolved (and created if missing) before this container.
	// When nil the container lives directly under RootID.
	Ancestor *ContainerSpec
	RootID   int64
	// New returns extra initial fields for a freshly created container.
	New func() Fields
}

// ContainerResolver implements find-or-create for hierarchical containers.
// Every call re-checks the backend: a previous run, or an earlier record of
// this run, may already have created the container.
type ContainerResolver struct {
	backend Backend
	publish bool
}

// NewContainerResolver returns a resolver that creates missing containers in
// backend, publishing them when publish is set.
func NewContainerResolver(backend Backend, publish bool) *ContainerResolver {
	return &ContainerResolver{backend: backend, publish: publish}
}

// Resolve returns the container for spec, creating it and any missing
// ancestors first.
func (c *ContainerResolver) Resolve(ctx context.Context, spec ContainerSpec) (*Entity, error) {
	if spec.Type == "" {
		return nil, errors.New("container spec has no type")
	}
	if len(spec.Match) == 0 {
		return nil, fmt.Errorf("container %s has no natural key", spec.Type)
	}

	parentID := spec.RootID
	if spec.Ancestor != nil {
		ancestor, err := c.Resolve(ctx, *spec.Ancestor)
		if err != nil {
			return nil, err
		}
		parentID = ancestor.ID
	}

	filter := Filter{Fields: spec.Match}.Under(parentID)
	existing, err := c.backend.FindOne(ctx, spec.Type, filter)
	if err != nil {
		return nil, backendErr(fmt.Sprintf("find %s (%s)", spec.Type, filter), err)
	}
	if existing != nil {
		return existing, nil
	}

	fields := make(Fields, len(spec.Match))
	if spec.New != nil {
		for k, v := range spec.New() {
			fields[k] = v
		}
	}
	for k, v := range spec.Match {
		fields[k] = v
	}

	container, err := c.backend.Create(ctx, spec.Type, fields)
	if err != nil {
		return nil, backendErr("create "+string(spec.Type), err)
	}
	container.ParentID = parentID
	if err := c.backend.Save(ctx, container); err != nil {
		return nil, backendErr("save "+string(spec.Type), err)
	}
	if c.publish {
		if err := c.backend.Publish(ctx, container); err != nil {
			return nil, backendErr("publish "+string(spec.Type), err)
		}
	}
	return container, nil
}
