package iosource

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedPrefixList is returned when a component is given no usable prefix
var ErrMalformedPrefixList = errors.New("malformed prefix list")

// Kind tags the variant of a Component
type Kind int

const (
	KindSource Kind = iota
	KindDumper
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindDumper:
		return "dumper"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// InputType is the capture mode a source component supports
type InputType int

const (
	Live InputType = iota
	Trace
	Both
)

func (t InputType) String() string {
	switch t {
	case Live:
		return "live"
	case Trace:
		return "trace"
	case Both:
		return "live, trace"
	}
	return fmt.Sprintf("InputType(%d)", int(t))
}

// SourceFactory creates a packet source for a path. filter, when not empty,
// is installed on the new source; live selects an interface over a trace file.
type SourceFactory interface {
	NewSource(path, filter string, live bool) (PktSrc, error)
}

// SourceFactoryFunc adapts a function to a SourceFactory
type SourceFactoryFunc func(path, filter string, live bool) (PktSrc, error)

func (f SourceFactoryFunc) NewSource(path, filter string, live bool) (PktSrc, error) {
	return f(path, filter, live)
}

// DumperFactory creates a packet dumper for a path
type DumperFactory interface {
	NewDumper(path string, appending bool) (PktDumper, error)
}

// DumperFactoryFunc adapts a function to a DumperFactory
type DumperFactoryFunc func(path string, appending bool) (PktDumper, error)

func (f DumperFactoryFunc) NewDumper(path string, appending bool) (PktDumper, error) {
	return f(path, appending)
}

// Component describes a packet source or dumper implementation and the
// prefixes it is selected by. The set of implementations is closed:
// *SourceComponent and *DumperComponent.
type Component interface {
	Name() string
	Kind() Kind
	Prefixes() []string
	HandlesPrefix(prefix string) bool
	// Describe writes a one line summary, without newline
	Describe(w io.Writer)
	String() string

	component()
}

// descriptor holds what both component kinds share
type descriptor struct {
	name     string
	prefixes []string
}

func newDescriptor(name, prefixes string) (descriptor, error) {
	if strings.TrimSpace(name) == "" {
		return descriptor{}, errors.New("component name must not be empty")
	}
	list, err := parsePrefixes(prefixes)
	if err != nil {
		return descriptor{}, fmt.Errorf("component %s: %w", name, err)
	}
	return descriptor{name: name, prefixes: list}, nil
}

// parsePrefixes splits a comma separated list, dropping blanks and
// duplicates and keeping the order of first appearance
func parsePrefixes(s string) ([]string, error) {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedPrefixList, s)
	}
	return out, nil
}

func (d *descriptor) Name() string {
	return d.name
}

// Prefixes returns the prefixes in the order they were given
func (d *descriptor) Prefixes() []string {
	out := make([]string, len(d.prefixes))
	copy(out, d.prefixes)
	return out
}

// HandlesPrefix is an exact, case sensitive match
func (d *descriptor) HandlesPrefix(prefix string) bool {
	for _, p := range d.prefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

func (d *descriptor) describe(b *strings.Builder) {
	fmt.Fprintf(b, "%s (%s)", d.name, strings.Join(d.prefixes, ","))
}

// SourceComponent describes a packet source implementation
type SourceComponent struct {
	descriptor
	typ     InputType
	factory SourceFactory
}

// NewSourceComponent parses prefixes from a comma separated list. An empty
// list fails with ErrMalformedPrefixList.
func NewSourceComponent(name, prefixes string, typ InputType, factory SourceFactory) (*SourceComponent, error) {
	if factory == nil {
		return nil, fmt.Errorf("component %s: nil factory", name)
	}
	switch typ {
	case Live, Trace, Both:
	default:
		return nil, fmt.Errorf("component %s: invalid input type %d", name, typ)
	}
	d, err := newDescriptor(name, prefixes)
	if err != nil {
		return nil, err
	}
	return &SourceComponent{descriptor: d, typ: typ, factory: factory}, nil
}

func (c *SourceComponent) Kind() Kind {
	return KindSource
}

func (c *SourceComponent) InputType() InputType {
	return c.typ
}

func (c *SourceComponent) SupportsLive() bool {
	return c.typ == Live || c.typ == Both
}

func (c *SourceComponent) SupportsTrace() bool {
	return c.typ == Trace || c.typ == Both
}

func (c *SourceComponent) Factory() SourceFactory {
	return c.factory
}

// Describe writes "<name> (<prefixes>)[, live][, trace]"
func (c *SourceComponent) Describe(w io.Writer) {
	_, _ = io.WriteString(w, c.String())
}

func (c *SourceComponent) String() string {
	var b strings.Builder
	c.describe(&b)
	if c.SupportsLive() {
		b.WriteString(", live")
	}
	if c.SupportsTrace() {
		b.WriteString(", trace")
	}
	return b.String()
}

func (c *SourceComponent) component() {}

// DumperComponent describes a packet dumper implementation
type DumperComponent struct {
	descriptor
	factory DumperFactory
}

func NewDumperComponent(name, prefixes string, factory DumperFactory) (*DumperComponent, error) {
	if factory == nil {
		return nil, fmt.Errorf("component %s: nil factory", name)
	}
	d, err := newDescriptor(name, prefixes)
	if err != nil {
		return nil, err
	}
	return &DumperComponent{descriptor: d, factory: factory}, nil
}

func (c *DumperComponent) Kind() Kind {
	return KindDumper
}

func (c *DumperComponent) Factory() DumperFactory {
	return c.factory
}

// Describe writes "<name> (<prefixes>)"
func (c *DumperComponent) Describe(w io.Writer) {
	_, _ = io.WriteString(w, c.String())
}

func (c *DumperComponent) String() string {
	var b strings.Builder
	c.describe(&b)
	return b.String()
}

func (c *DumperComponent) component() {}
