package params

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
)

// ErrUnknownParameter is returned for a name no descriptor declares.
var ErrUnknownParameter = errors.New("params: unknown parameter")

// Setter applies a resolved value to its target: a pass uniform, an enabled flag or a resource.
type Setter func(v Resolved)

// Binding connects a parameter to one pass.
type Binding struct {
	// Name is the parameter name.
	Name string

	// Pass is the name of the pass the setter writes to.
	Pass string

	// Setter applies the value.
	Setter Setter
}

// TextureSource resolves a texture name to a texture, or nil when unknown.
type TextureSource func(name string) renderer.Texture

type bindingKey struct {
	name, pass string
}

// Table maps named external parameters to pass state. Values are clamped and resolved at the
// table and propagate to the bound setters only when they change.
type Table interface {
	// Descriptors returns every declared parameter in declaration order.
	Descriptors() []Descriptor

	// Descriptor returns the descriptor of a parameter.
	Descriptor(name string) (Descriptor, bool)

	// Bind binds a parameter to a pass. Binding the same (name, pass) pair again replaces the
	// previous setter. The current value is pushed to the new setter.
	//
	// Parameters:
	//   - name: the parameter name
	//   - pass: the pass the setter writes to
	//   - setter: the setter
	//
	// Returns:
	//   - error: ErrUnknownParameter if name is not declared
	Bind(name, pass string, setter Setter) error

	// Unbind removes the binding of a (name, pass) pair.
	Unbind(name, pass string)

	// Replace swaps every binding for a new set in one step and pushes the current values to it.
	//
	// Returns:
	//   - error: ErrUnknownParameter if a binding names an undeclared parameter; the table is unchanged
	Replace(bindings []Binding) error

	// Bindings returns the number of bindings of a parameter.
	Bindings(name string) int

	// Set sets a parameter. The value is clamped or resolved according to the descriptor and
	// propagated to every bound setter if it differs from the current value.
	//
	// Returns:
	//   - bool: whether the value changed
	//   - error: ErrUnknownParameter, or an error for an invalid enum option
	Set(name string, v Value) (bool, error)

	// Get returns the current resolved value of a parameter.
	Get(name string) (Resolved, error)

	// Apply sets every parameter of a preset. Unknown keys and invalid values are reported
	// together; the valid ones are still applied.
	Apply(p Preset) error

	// Snapshot returns the current values as a preset.
	Snapshot() Preset

	// Refresh resolves texture parameters again and pushes every value to every binding.
	Refresh()

	// SetTextureSource replaces the texture resolver.
	SetTextureSource(src TextureSource)
}

type table struct {
	mu          *sync.Mutex
	order       []string
	descriptors map[string]Descriptor
	values      map[string]Resolved
	bindings    map[bindingKey]Setter
	textures    TextureSource
}

var _ Table = &table{}

// NewTable creates a Table holding the default value of every descriptor.
//
// Parameters:
//   - descriptors: the declared parameters
//   - options: functional options for the table
//
// Returns:
//   - Table: the table, with no bindings
//   - error: an error for a duplicate name or an invalid default
func NewTable(descriptors []Descriptor, options ...TableBuilderOption) (Table, error) {
	t := &table{
		mu:          &sync.Mutex{},
		descriptors: make(map[string]Descriptor, len(descriptors)),
		values:      make(map[string]Resolved, len(descriptors)),
		bindings:    make(map[bindingKey]Setter),
	}
	for _, option := range options {
		option(t)
	}
	for _, d := range descriptors {
		if _, dup := t.descriptors[d.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", d.Name)
		}
		r, err := t.resolve(d, d.Default)
		if err != nil {
			return nil, fmt.Errorf("invalid default for %q: %w", d.Name, err)
		}
		t.order = append(t.order, d.Name)
		t.descriptors[d.Name] = d
		t.values[d.Name] = r
	}
	return t, nil
}

func (t *table) resolve(d Descriptor, v Value) (Resolved, error) {
	switch d.Kind {
	case KindBool:
		return Resolved{Bool: v.Bool}, nil
	case KindFloat:
		return Resolved{Float: common.Clamp(v.Float, d.Min, d.Max)}, nil
	case KindEnum:
		if v.Text != "" {
			o, ok := d.option(v.Text)
			if !ok {
				return Resolved{}, fmt.Errorf("%q is not an option of %q", v.Text, d.Name)
			}
			return Resolved{Float: o.Value, Text: o.Label}, nil
		}
		for _, o := range d.Options {
			if o.Value == v.Float {
				return Resolved{Float: o.Value, Text: o.Label}, nil
			}
		}
		return Resolved{}, fmt.Errorf("%g is not an option value of %q", v.Float, d.Name)
	case KindTexture:
		if v.Text == "" || v.Text == NoneTexture {
			return Resolved{Text: NoneTexture}, nil
		}
		r := Resolved{Text: v.Text}
		if t.textures != nil {
			r.Texture = t.textures(v.Text)
		}
		return r, nil
	default:
		return Resolved{}, fmt.Errorf("parameter %q has unknown kind %s", d.Name, d.Kind)
	}
}

func (t *table) Descriptors() []Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Descriptor, len(t.order))
	for i, name := range t.order {
		out[i] = t.descriptors[name]
	}
	return out
}

func (t *table) Descriptor(name string) (Descriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.descriptors[name]
	return d, ok
}

func (t *table) Bind(name, pass string, setter Setter) error {
	t.mu.Lock()
	if _, ok := t.descriptors[name]; !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	t.bindings[bindingKey{name, pass}] = setter
	v := t.values[name]
	t.mu.Unlock()

	setter(v)
	return nil
}

func (t *table) Unbind(name, pass string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bindings, bindingKey{name, pass})
}

func (t *table) Replace(bindings []Binding) error {
	next := make(map[bindingKey]Setter, len(bindings))
	t.mu.Lock()
	for _, b := range bindings {
		if _, ok := t.descriptors[b.Name]; !ok {
			t.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrUnknownParameter, b.Name)
		}
		next[bindingKey{b.Name, b.Pass}] = b.Setter
	}
	t.bindings = next
	pending := t.pendingLocked()
	t.mu.Unlock()

	pending.push()
	return nil
}

func (t *table) Bindings(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.bindings {
		if k.name == name {
			n++
		}
	}
	return n
}

func (t *table) Set(name string, v Value) (bool, error) {
	t.mu.Lock()
	d, ok := t.descriptors[name]
	if !ok {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	r, err := t.resolve(d, v)
	if err != nil {
		t.mu.Unlock()
		return false, err
	}
	if t.values[name] == r {
		t.mu.Unlock()
		return false, nil
	}
	t.values[name] = r
	var setters []Setter
	for _, k := range t.sortedKeysLocked() {
		if k.name == name {
			setters = append(setters, t.bindings[k])
		}
	}
	t.mu.Unlock()

	for _, s := range setters {
		s(r)
	}
	return true, nil
}

func (t *table) Get(name string) (Resolved, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.values[name]
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return r, nil
}

func (t *table) Apply(p Preset) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(p)) {
		d, ok := t.Descriptor(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownParameter, name))
			continue
		}
		v, err := d.valueOf(p[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := t.Set(name, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *table) Snapshot() Preset {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := make(Preset, len(t.values))
	for name, r := range t.values {
		switch t.descriptors[name].Kind {
		case KindBool:
			p[name] = r.Bool
		case KindFloat:
			p[name] = float64(r.Float)
		default:
			p[name] = r.Text
		}
	}
	return p
}

func (t *table) Refresh() {
	t.mu.Lock()
	for name, r := range t.values {
		d := t.descriptors[name]
		if d.Kind != KindTexture {
			continue
		}
		if resolved, err := t.resolve(d, Text(r.Text)); err == nil {
			t.values[name] = resolved
		}
	}
	pending := t.pendingLocked()
	t.mu.Unlock()

	pending.push()
}

func (t *table) SetTextureSource(src TextureSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.textures = src
}

// sortedKeysLocked returns the binding keys ordered by declaration order, then pass name.
func (t *table) sortedKeysLocked() []bindingKey {
	rank := make(map[string]int, len(t.order))
	for i, name := range t.order {
		rank[name] = i
	}
	keys := slices.Collect(maps.Keys(t.bindings))
	slices.SortFunc(keys, func(a, b bindingKey) int {
		if rank[a.name] != rank[b.name] {
			return rank[a.name] - rank[b.name]
		}
		if a.pass < b.pass {
			return -1
		}
		if a.pass > b.pass {
			return 1
		}
		return 0
	})
	return keys
}

type pendingCall struct {
	setter Setter
	value  Resolved
}

type pendingCalls []pendingCall

func (p pendingCalls) push() {
	for _, c := range p {
		c.setter(c.value)
	}
}

// pendingLocked collects a call per binding with the current value, to run outside the lock.
func (t *table) pendingLocked() pendingCalls {
	keys := t.sortedKeysLocked()
	calls := make(pendingCalls, 0, len(keys))
	for _, k := range keys {
		calls = append(calls, pendingCall{setter: t.bindings[k], value: t.values[k.name]})
	}
	return calls
}
