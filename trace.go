package synchro

import (
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Link records one rule application: the matched source tuple and the target
// elements created for it.
type Link struct {
	Rule    *RuleSpec
	Sources []*Element
	Targets []*Element
}

// Source returns the source element bound to the named pattern variable.
func (l *Link) Source(name string) *Element {
	for i, v := range l.Rule.Sources {
		if v == name {
			return l.Sources[i]
		}
	}
	return nil
}

// Target returns the target element created for the named pattern variable.
func (l *Link) Target(name string) *Element {
	for i, t := range l.Rule.Targets {
		if t.Var == name {
			return l.Targets[i]
		}
	}
	return nil
}

// Feeds returns the source elements recorded as feeding the named target.
func (l *Link) Feeds(name string) []*Element {
	for _, t := range l.Rule.Targets {
		if t.Var != name {
			continue
		}
		out := make([]*Element, 0, len(t.Feeds))
		for _, s := range t.Feeds {
			out = append(out, l.Source(s))
		}
		return out
	}
	return nil
}

// Trace is the append-only table of rule applications. Links are stored in an
// arena in insertion order and indexed by rule name plus source identities.
// Each key is inserted at most once.
type Trace struct {
	mu       sync.RWMutex
	links    []*Link
	index    map[string]int
	byRule   map[string][]int
	defaults map[*Element]int
	group    singleflight.Group
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{
		index:    make(map[string]int),
		byRule:   make(map[string][]int),
		defaults: make(map[*Element]int),
	}
}

func sourceKey(sources []*Element) string {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(s.model.role)
		b.WriteByte('#')
		b.WriteString(s.id)
	}
	return b.String()
}

func traceKey(rule string, sources []*Element) string {
	return rule + "/" + sourceKey(sources)
}

// Lookup returns the link of rule for the given source tuple.
func (t *Trace) Lookup(rule string, sources ...*Element) (*Link, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[traceKey(rule, sources)]
	if !ok {
		return nil, false
	}
	return t.links[i], true
}

// Insert returns the link for (rule, sources), calling create to build it when
// absent. Concurrent callers for the same key share a single creation and
// created is true only for the caller whose create ran.
func (t *Trace) Insert(rule *RuleSpec, sources []*Element, create func() (*Link, error)) (l *Link, created bool, err error) {
	key := traceKey(rule.Name, sources)
	if l, ok := t.Lookup(rule.Name, sources...); ok {
		return l, false, nil
	}
	v, err, _ := t.group.Do(key, func() (any, error) {
		if l, ok := t.Lookup(rule.Name, sources...); ok {
			return l, nil
		}
		l, err := create()
		if err != nil {
			return nil, err
		}
		t.append(key, l)
		created = true
		return l, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Link), created, nil
}

func (t *Trace) append(key string, l *Link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := len(t.links)
	t.links = append(t.links, l)
	t.index[key] = i
	t.byRule[l.Rule.Name] = append(t.byRule[l.Rule.Name], i)
	if !l.Rule.Lazy && len(l.Sources) == 1 && len(l.Targets) > 0 {
		if _, ok := t.defaults[l.Sources[0]]; !ok {
			t.defaults[l.Sources[0]] = i
		}
	}
}

// Resolve returns the default target of a source element: the first target of
// the first non-lazy single-source link that matched it.
func (t *Trace) Resolve(source *Element) (*Element, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.defaults[source]
	if !ok {
		return nil, false
	}
	return t.links[i].Targets[0], true
}

// ResolveTemp returns the target created for the named variable by the
// default rule of source.
func (t *Trace) ResolveTemp(source *Element, name string) (*Element, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.defaults[source]
	if !ok {
		return nil, false
	}
	el := t.links[i].Target(name)
	return el, el != nil
}

// LinksOf returns the links created by rule in insertion order.
func (t *Trace) LinksOf(rule string) []*Link {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := t.byRule[rule]
	out := make([]*Link, len(idx))
	for i, j := range idx {
		out[i] = t.links[j]
	}
	return out
}

// Links returns all links in insertion order.
func (t *Trace) Links() []*Link {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Link, len(t.links))
	copy(out, t.links)
	return out
}

// Len returns the number of links.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.links)
}
