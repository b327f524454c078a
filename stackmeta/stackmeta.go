// Package stackmeta resolves software stack metadata, primarily the set of
// package repositories a given stack version provides per operating system.
// The registry uses it to decide whether a host's platform is supported by
// the stack a cluster intends to run.
package stackmeta

import (
	"fmt"
	"sync"
)

// StackID identifies a software stack by name and version.
type StackID struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
}

// String returns the canonical "NAME-VERSION" form, e.g. "HDP-1.3.0".
func (s StackID) String() string {
	return s.Name + "-" + s.Version
}

// IsZero reports whether the stack id is unset.
func (s StackID) IsZero() bool {
	return s.Name == "" && s.Version == ""
}

// RepositoryInfo describes a single package repository provided by a stack
// for one operating system.
type RepositoryInfo struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// Provider supplies repository metadata for stacks. Implementations return
// a map keyed by OS type ("centos6", "ubuntu22", ...). A nil or empty map
// means the stack supports no platforms; an unknown stack is not an error.
type Provider interface {
	Repositories(stack StackID) (map[string][]RepositoryInfo, error)
}

// StaticProvider is an in-memory Provider backed by a fixed table. It is
// safe for concurrent use and handy for tests and embedders that configure
// stacks programmatically.
type StaticProvider struct {
	mu     sync.RWMutex
	stacks map[string]map[string][]RepositoryInfo
}

// NewStaticProvider returns an empty StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		stacks: make(map[string]map[string][]RepositoryInfo),
	}
}

// AddStack registers repository metadata for a stack, replacing any
// previous entry for the same stack id.
func (p *StaticProvider) AddStack(stack StackID, repos map[string][]RepositoryInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stacks[stack.String()] = repos
}

// AddOS registers a single OS for a stack with a placeholder repository.
// Convenience for tests that only care about platform support.
func (p *StaticProvider) AddOS(stack StackID, osTypes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repos, ok := p.stacks[stack.String()]
	if !ok {
		repos = make(map[string][]RepositoryInfo)
		p.stacks[stack.String()] = repos
	}
	for _, osType := range osTypes {
		repos[osType] = append(repos[osType], RepositoryInfo{
			ID:   fmt.Sprintf("%s-%s", stack.String(), osType),
			Name: stack.Name,
		})
	}
}

// Repositories implements Provider.
func (p *StaticProvider) Repositories(stack StackID) (map[string][]RepositoryInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	repos, ok := p.stacks[stack.String()]
	if !ok {
		return nil, nil
	}

	// Copy so callers cannot mutate the provider's table.
	out := make(map[string][]RepositoryInfo, len(repos))
	for osType, list := range repos {
		out[osType] = append([]RepositoryInfo(nil), list...)
	}
	return out, nil
}
