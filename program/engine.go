package program

import (
	"fmt"

	"golang.org/x/net/bpf"

	"github.com/packetcap/iosource/filter"
)

// Engine turns an expression into a Program for the link parameters of a
// context. Engines have no handle entry point; they only read LinkType and
// SnapLen.
type Engine interface {
	Compile(ctx Context, expr string, netmask uint32, optimize bool) (*Program, error)
}

// GoEngine compiles with the pure Go filter package. It supports the link
// types and expression subset documented there.
type GoEngine struct{}

func (GoEngine) Compile(ctx Context, expr string, netmask uint32, optimize bool) (*Program, error) {
	insns, err := filter.Compile(expr, filter.Options{
		LinkType: ctx.LinkType(),
		SnapLen:  ctx.SnapLen(),
		Netmask:  netmask,
		Optimize: optimize,
	})
	if err != nil {
		return nil, err
	}
	raw, err := bpf.Assemble(insns)
	if err != nil {
		return nil, fmt.Errorf("unable to assemble filter: %w", err)
	}
	return newProgram(raw, nil), nil
}

// DefaultEngine is used by compilers created without WithEngine
var DefaultEngine Engine = GoEngine{}
