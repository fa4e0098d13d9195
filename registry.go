package iosource

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultPrefix is used for paths without a "prefix:" part
const DefaultPrefix = "pcap"

var (
	ErrDuplicateComponent = errors.New("component already registered")
	ErrNoComponent        = errors.New("no component for prefix")
)

// Registry holds components in registration order. It is safe for
// concurrent use, so components can be added to a running system.
type Registry struct {
	mu         sync.RWMutex
	components []Component
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a component. Names are unique per kind.
func (r *Registry) Register(c Component) error {
	if c == nil {
		return errors.New("nil component")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.components {
		if existing.Kind() == c.Kind() && existing.Name() == c.Name() {
			return fmt.Errorf("%w: %s %s", ErrDuplicateComponent, c.Kind(), c.Name())
		}
	}
	r.components = append(r.components, c)
	log.WithFields(log.Fields{
		"name":     c.Name(),
		"kind":     c.Kind(),
		"prefixes": c.Prefixes(),
	}).Debug("registered component")
	return nil
}

// Lookup returns the first registered component handling prefix
func (r *Registry) Lookup(prefix string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.components {
		if c.HandlesPrefix(prefix) {
			return c, true
		}
	}
	return nil, false
}

// LookupSource returns the first source component handling prefix in the
// requested mode
func (r *Registry) LookupSource(prefix string, live bool) (*SourceComponent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.components {
		sc, ok := c.(*SourceComponent)
		if !ok || !sc.HandlesPrefix(prefix) {
			continue
		}
		if (live && sc.SupportsLive()) || (!live && sc.SupportsTrace()) {
			return sc, true
		}
	}
	return nil, false
}

// LookupDumper returns the first dumper component handling prefix
func (r *Registry) LookupDumper(prefix string) (*DumperComponent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.components {
		if dc, ok := c.(*DumperComponent); ok && dc.HandlesPrefix(prefix) {
			return dc, true
		}
	}
	return nil, false
}

// ListAll returns the components in registration order
func (r *Registry) ListAll() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, len(r.components))
	copy(out, r.components)
	return out
}

// Describe writes one line per component
func (r *Registry) Describe(w io.Writer) {
	for _, c := range r.ListAll() {
		_, _ = fmt.Fprintf(w, "%-7s ", c.Kind())
		c.Describe(w)
		_, _ = io.WriteString(w, "\n")
	}
}

// SplitPath splits "prefix:path". A path without prefix gets DefaultPrefix.
func SplitPath(s string) (prefix, path string) {
	if i := strings.Index(s, ":"); i > 0 {
		return s[:i], s[i+1:]
	}
	return DefaultPrefix, s
}

// OpenSource creates a source through the component handling the prefix of
// path, installing filter if it is not empty
func (r *Registry) OpenSource(path, filter string, live bool) (PktSrc, error) {
	prefix, p := SplitPath(path)
	sc, ok := r.LookupSource(prefix, live)
	if !ok {
		mode := "trace"
		if live {
			mode = "live"
		}
		return nil, fmt.Errorf("%w %q supporting %s input", ErrNoComponent, prefix, mode)
	}
	log.WithFields(log.Fields{
		"component": sc.Name(),
		"path":      p,
		"filter":    filter,
		"live":      live,
	}).Debug("opening source")
	src, err := sc.Factory().NewSource(p, filter, live)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sc.Name(), err)
	}
	return src, nil
}

// OpenDumper creates a dumper through the component handling the prefix of path
func (r *Registry) OpenDumper(path string, appending bool) (PktDumper, error) {
	prefix, p := SplitPath(path)
	dc, ok := r.LookupDumper(prefix)
	if !ok {
		return nil, fmt.Errorf("%w %q supporting output", ErrNoComponent, prefix)
	}
	log.WithFields(log.Fields{
		"component": dc.Name(),
		"path":      p,
		"append":    appending,
	}).Debug("opening dumper")
	d, err := dc.Factory().NewDumper(p, appending)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dc.Name(), err)
	}
	return d, nil
}
