package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"gopkg.in/yaml.v3"
)

// Profile is the import profile: option defaults plus per-importer overrides.
//
//	defaults:
//	  publish: true
//	  capabilities: [blog_categories, member_uid_field]
//	importers:
//	  comments:
//	    default_container_id: 12
//	    capabilities: [comments]
//
// Per-importer capabilities are added to the defaults; prefix one with "!"
// to switch a default off.
type Profile struct {
	Defaults  ProfileOptions            `yaml:"defaults"`
	Importers map[string]ProfileOptions `yaml:"importers"`
}

// ProfileOptions mirrors core.Options; nil fields inherit.
type ProfileOptions struct {
	ParentContainerID  *int64   `yaml:"parent_container_id"`
	DefaultContainerID *int64   `yaml:"default_container_id"`
	Publish            *bool    `yaml:"publish"`
	Capabilities       []string `yaml:"capabilities"`
}

// LoadProfile reads a profile file. An empty path yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes a YAML profile. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return p, nil
}

// Validate reports importer sections that name no registered importer.
func (p *Profile) Validate(known []string) error {
	isKnown := make(map[string]bool, len(known))
	for _, k := range known {
		isKnown[k] = true
	}
	var unknown []string
	for k := range p.Importers {
		if !isKnown[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("profile names unknown importers %s (available: %s)",
			strings.Join(unknown, ", "), strings.Join(known, ", "))
	}
	return nil
}

// Options resolves the options for each importer key.
func (p *Profile) Options(keys []string) map[string]core.Options {
	out := make(map[string]core.Options, len(keys))
	for _, key := range keys {
		out[key] = p.OptionsFor(key)
	}
	return out
}

// OptionsFor merges the defaults with the importer's own section.
func (p *Profile) OptionsFor(key string) core.Options {
	var opts core.Options
	caps := core.Capabilities{}

	apply := func(po ProfileOptions) {
		if po.ParentContainerID != nil {
			opts.ParentContainerID = *po.ParentContainerID
		}
		if po.DefaultContainerID != nil {
			opts.DefaultContainerID = *po.DefaultContainerID
		}
		if po.Publish != nil {
			opts.Publish = *po.Publish
		}
		for _, c := range po.Capabilities {
			c = strings.TrimSpace(c)
			if name, off := strings.CutPrefix(c, "!"); off {
				delete(caps, name)
				continue
			}
			if c != "" {
				caps[c] = true
			}
		}
	}

	apply(p.Defaults)
	if section, ok := p.Importers[key]; ok {
		apply(section)
	}
	if len(caps) > 0 {
		opts.Capabilities = caps
	}
	return opts
}
