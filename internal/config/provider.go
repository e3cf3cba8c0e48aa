package config

import (
	"fmt"
	"sync"
)

// Provider owns the validated configuration for a running daemon. The first
// call to NewProvider persists the sample defaults when no file exists so the
// operator has something to edit.
type Provider struct {
	mu      sync.RWMutex
	path    string
	current Config
	created bool
}

// NewProvider loads the configuration at path (or the default search paths
// when empty), writing defaults first if nothing exists yet.
func NewProvider(path string) (*Provider, error) {
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		return nil, err
	}
	p := &Provider{path: resolved, current: cfg.Clone()}
	if !exists {
		if err := CreateSample(resolved); err != nil {
			return nil, fmt.Errorf("persist default config: %w", err)
		}
		p.created = true
	}
	return p, nil
}

// Current returns a copy of the latest validated configuration.
func (p *Provider) Current() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Clone()
}

// Path returns the resolved configuration file path.
func (p *Provider) Path() string {
	return p.path
}

// Created reports whether the provider wrote the defaults on startup.
func (p *Provider) Created() bool {
	return p.created
}

// Reload re-reads the configuration file. On error the previous
// configuration stays current.
func (p *Provider) Reload() (Config, error) {
	cfg, _, _, err := Load(p.path)
	if err != nil {
		return Config{}, err
	}
	p.mu.Lock()
	p.current = cfg.Clone()
	p.mu.Unlock()
	return cfg.Clone(), nil
}
