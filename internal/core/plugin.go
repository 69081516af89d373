package core

import (
	"fmt"
	"sort"
)

// ValidationInput is what a named prop validator sees.
type ValidationInput struct {
	Value       any
	Props       map[string]any
	Options     []string
	ContextData any
	Path        []string
}

// Validator checks one code-component prop. It returns an empty string when
// the value is valid and a message otherwise.
type Validator func(in ValidationInput) string

// Plugin contributes prop validators to a synchronizer.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	validators map[string]Validator
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{validators: make(map[string]Validator)}
}

// RegisterValidator adds a named validator. Names are global across plugins.
func (r *PluginRegistry) RegisterValidator(name string, v Validator) error {
	if name == "" || v == nil {
		return fmt.Errorf("validator name and func are required")
	}
	if _, exists := r.validators[name]; exists {
		return fmt.Errorf("validator %s already registered", name)
	}
	r.validators[name] = v
	return nil
}

// Validators returns a copy of the registered validators.
func (r *PluginRegistry) Validators() map[string]Validator {
	out := make(map[string]Validator, len(r.validators))
	for name, v := range r.validators {
		out[name] = v
	}
	return out
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name       string
	Version    string
	Validators []string
}

// InstallPlugin registers the plugin's validators with the synchronizer.
// A validator name already known to the synchronizer is an error and leaves
// the synchronizer unchanged.
func (s *Synchronizer) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin is nil")
	}
	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("register plugin %s: %w", plugin.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plugins[plugin.Name()]; exists {
		return PluginMetadata{}, fmt.Errorf("plugin %s already installed", plugin.Name())
	}
	contributed := registry.Validators()
	names := make([]string, 0, len(contributed))
	for name := range contributed {
		if _, exists := s.opts.validators[name]; exists {
			return PluginMetadata{}, fmt.Errorf("plugin %s: validator %s already registered", plugin.Name(), name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for name, v := range contributed {
		s.opts.validators[name] = v
	}
	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version(), Validators: names}
	s.plugins[plugin.Name()] = meta
	s.opts.logger.Info("plugin installed", "plugin", meta.Name, "version", meta.Version, "validators", len(names))
	return meta, nil
}

// InstalledPlugins lists installed plugins ordered by name.
func (s *Synchronizer) InstalledPlugins() []PluginMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		meta.Validators = append([]string(nil), meta.Validators...)
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
