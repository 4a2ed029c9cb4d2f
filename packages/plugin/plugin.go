// Package plugin defines the extension points of a run. Plugins register
// explicitly; there is no discovery magic. Each lifecycle slot is its own
// optional interface, so a plugin implements only the events it cares about.
package plugin

import (
	"github.com/velocitest/velocitest/packages/core/collect"
	"github.com/velocitest/velocitest/packages/result"
)

// Plugin is the base interface. The name is used in diagnostics only.
type Plugin interface {
	Name() string
}

// CollectionStartHook fires before discovery walks the roots.
type CollectionStartHook interface {
	OnCollectionStart(roots []string)
}

// ItemCollectedHook fires once per collected (not deselected) item.
type ItemCollectedHook interface {
	OnItemCollected(item *collect.TestItem)
}

// RunStartHook fires after planning, before the first dispatch.
type RunStartHook interface {
	OnRunStart(total int, strategy string)
}

// ItemStartHook fires when an item is dispatched to a worker.
type ItemStartHook interface {
	OnItemStart(id string)
}

// ItemFinishHook fires when an item's result is recorded. Results arrive in
// completion order, not collection order.
type ItemFinishHook interface {
	OnItemFinish(res *result.TestResult)
}

// RunFinishHook fires after aggregation, before the process exits.
type RunFinishHook interface {
	OnRunFinish(sum *result.Summary)
}

// Registry holds registered plugins and fans events out to them in
// registration order.
type Registry struct {
	plugins []Plugin
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a plugin. Registration order is emission order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
}

// Names returns the registered plugin names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}

func (r *Registry) EmitCollectionStart(roots []string) {
	for _, p := range r.plugins {
		if h, ok := p.(CollectionStartHook); ok {
			h.OnCollectionStart(roots)
		}
	}
}

func (r *Registry) EmitItemCollected(item *collect.TestItem) {
	for _, p := range r.plugins {
		if h, ok := p.(ItemCollectedHook); ok {
			h.OnItemCollected(item)
		}
	}
}

func (r *Registry) EmitRunStart(total int, strategy string) {
	for _, p := range r.plugins {
		if h, ok := p.(RunStartHook); ok {
			h.OnRunStart(total, strategy)
		}
	}
}

func (r *Registry) EmitItemStart(id string) {
	for _, p := range r.plugins {
		if h, ok := p.(ItemStartHook); ok {
			h.OnItemStart(id)
		}
	}
}

func (r *Registry) EmitItemFinish(res *result.TestResult) {
	for _, p := range r.plugins {
		if h, ok := p.(ItemFinishHook); ok {
			h.OnItemFinish(res)
		}
	}
}

func (r *Registry) EmitRunFinish(sum *result.Summary) {
	for _, p := range r.plugins {
		if h, ok := p.(RunFinishHook); ok {
			h.OnRunFinish(sum)
		}
	}
}
