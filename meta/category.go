package meta

import (
	"fmt"
	"reflect"
	"sync"
)

// Category is a named set of methods injected into existing types while
// it is active. Methods keyed by an interface type apply to every type
// implementing it.
type Category struct {
	name string

	mu      sync.RWMutex
	methods map[reflect.Type]map[string][]*MetaMethod
	active  map[*Registry]int // activation count per registry
}

// NewCategory creates an empty category.
func NewCategory(name string) *Category {
	return &Category{
		name:    name,
		methods: make(map[reflect.Type]map[string][]*MetaMethod),
		active:  make(map[*Registry]int),
	}
}

func (c *Category) Name() string { return c.name }

// Add registers m for receivers of type t. Registries the category is
// active in move to a new epoch.
func (c *Category) Add(t reflect.Type, m *MetaMethod) error {
	if err := validMethod(m); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("category %s: method %s has no receiver type", c.name, m.name)
	}
	m = m.clone()
	m.origin = OriginCategory
	m.declaring = t
	c.mu.Lock()
	byName := c.methods[t]
	if byName == nil {
		byName = make(map[string][]*MetaMethod)
		c.methods[t] = byName
	}
	byName[m.name] = replaceOrAppend(byName[m.name], m)
	regs := make([]*Registry, 0, len(c.active))
	for r := range c.active {
		regs = append(regs, r)
	}
	c.mu.Unlock()

	for _, r := range regs {
		r.bump(fmt.Sprintf("category %s: %s added for %s", c.name, m.name, t))
	}
	return nil
}

func (c *Category) attach(r *Registry) {
	c.mu.Lock()
	c.active[r]++
	c.mu.Unlock()
}

func (c *Category) detach(r *Registry) {
	c.mu.Lock()
	if c.active[r] <= 1 {
		delete(c.active, r)
	} else {
		c.active[r]--
	}
	c.mu.Unlock()
}

// AddFunc registers fn, whose first parameter is the receiver.
func (c *Category) AddFunc(name string, fn any) error {
	m, err := MethodFunc(name, fn)
	if err != nil {
		return err
	}
	return c.Add(m.declaring, m)
}

// Types lists the receiver types the category covers.
func (c *Category) Types() []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]reflect.Type, 0, len(c.methods))
	for t := range c.methods {
		out = append(out, t)
	}
	return out
}

// methodsFor returns the methods named name that apply to receivers of t.
// Methods for an implemented interface sit one level deeper than methods
// for t itself.
func (c *Category) methodsFor(t reflect.Type, name string) []*MetaMethod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*MetaMethod
	for kt, byName := range c.methods {
		ms := byName[name]
		if len(ms) == 0 {
			continue
		}
		switch {
		case kt == t:
			out = append(out, ms...)
		case kt.Kind() == reflect.Interface && t.Implements(kt):
			for _, m := range ms {
				out = append(out, m.withDepth(1))
			}
		}
	}
	return out
}
