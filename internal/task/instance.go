package task

import (
	"context"

	"github.com/dorcha-inc/hsp/internal/params"
)

// Instance is a task with a live set of parameter values that persists across
// calls. Values set on it are validated against the task's parameter file and
// take part in every Run as the first source.
type Instance struct {
	runner *Runner
	name   string
	store  *params.Store
}

// NewInstance creates an instance of the named task seeded with its current
// parameter file defaults.
func (r *Runner) NewInstance(name string) (*Instance, error) {
	entry, schema, err := r.Describe(name)
	if err != nil {
		return nil, err
	}
	return &Instance{
		runner: r,
		name:   entry.Name,
		store:  params.NewStore(entry.Name, schema, entry.AcceptsExtra),
	}, nil
}

func (i *Instance) Name() string { return i.name }

// Get returns the current value of a parameter as a plain Go value.
func (i *Instance) Get(name string) (any, bool) {
	if v, ok := i.store.Get(name); ok {
		return v.Interface(), true
	}
	if v, ok := i.store.Extra(name); ok {
		return v, true
	}
	return nil, false
}

// Set assigns a parameter, rejecting unknown names and bad values.
func (i *Instance) Set(name string, v any) error {
	return i.store.Set(name, v)
}

// Names returns the declared parameter names in file order.
func (i *Instance) Names() []string { return i.store.Names() }

// Values returns the values set on the instance, so it can be used as a source.
func (i *Instance) Values() map[string]any {
	out := make(map[string]any)
	for _, name := range i.store.Names() {
		if i.store.Supplied(name) {
			v, _ := i.store.Get(name)
			out[name] = v
		}
	}
	for name, v := range i.store.Extras() {
		out[name] = v
	}
	return out
}

// Interface guard for Instance
var _ params.Source = &Instance{}

// Run invokes the task with the instance values overridden by sources. On
// success the instance adopts the final parameter values.
func (i *Instance) Run(ctx context.Context, sources ...params.Source) (*TaskResult, error) {
	result, err := i.runner.Run(ctx, i.name, append([]params.Source{i}, sources...)...)
	if err != nil {
		return nil, err
	}
	if p := result.Params(); p != nil {
		i.store = p
	}
	return result, nil
}
