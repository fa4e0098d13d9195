package filter

import (
	"errors"
	"fmt"

	"golang.org/x/net/bpf"
)

// Options are the link parameters and code generation switches a Filter
// is compiled with.
type Options struct {
	// LinkType of the frames the program will see, see the LinkType constants.
	LinkType uint32
	// SnapLen is returned by the program for accepted packets.
	SnapLen int
	// Netmask of the capture network, needed by "ip broadcast". 0 means unknown.
	Netmask uint32
	// Optimize removes redundant jumps and unreachable instructions.
	Optimize bool
}

func (o Options) validate() error {
	switch o.LinkType {
	case LinkTypeNull, LinkTypeEthernet, LinkTypeRaw:
	default:
		return fmt.Errorf("unsupported link type %d", o.LinkType)
	}
	if o.SnapLen <= 0 {
		return fmt.Errorf("invalid snapshot length %d", o.SnapLen)
	}
	return nil
}

// Filter is a parsed tcpdump filter expression, as described at
// https://www.tcpdump.org/manpages/pcap-filter.7.html
type Filter struct {
	raw  string
	root expr
}

// expr is a node of the parsed expression tree
type expr interface {
	lower(c *compiler) (node, error)
	String() string
}

// Parse parses a filter expression. A blank expression yields a filter
// that accepts every packet.
func Parse(s string) (*Filter, error) {
	e := NewExpression(s)
	if e == nil {
		return &Filter{}, nil
	}
	return e.Compile()
}

// Compile takes a filter string compatible with tcpdump and returns bpf
// instructions for the given link parameters.
func Compile(s string, opts Options) ([]bpf.Instruction, error) {
	f, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return f.Compile(opts)
}

// Compile generates the bpf program. Accepted packets return opts.SnapLen,
// rejected packets return 0.
func (f *Filter) Compile(opts Options) ([]bpf.Instruction, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	c := &compiler{
		linkType: opts.LinkType,
		netmask:  opts.Netmask,
	}
	var root node = constant(true)
	if f.root != nil {
		var err error
		if root, err = f.root.lower(c); err != nil {
			return nil, err
		}
	}

	b := &builder{}
	accept, reject := b.newLabel(), b.newLabel()
	root.gen(b, accept, reject)
	b.bind(accept)
	b.emit(bpf.RetConstant{Val: uint32(opts.SnapLen)})
	b.bind(reject)
	b.emit(bpf.RetConstant{Val: 0})

	return b.assemble(opts.Optimize)
}

// Empty reports whether the filter accepts everything.
func (f *Filter) Empty() bool {
	return f.root == nil
}

func (f *Filter) String() string {
	if f.root == nil {
		return ""
	}
	return f.root.String()
}

var errTooComplex = errors.New("expression too complex")
