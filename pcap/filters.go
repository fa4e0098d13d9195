package pcap

import (
	"fmt"

	"github.com/packetcap/iosource/program"
)

// filterSet holds the precompiled filters of one source, keyed by the
// index the caller chose.
type filterSet struct {
	ctx       program.Context
	netmask   uint32
	optimize  bool
	engine    program.Engine
	compilers map[int]*program.Compiler
}

func newFilterSet(ctx program.Context, cfg *config) *filterSet {
	return &filterSet{
		ctx:       ctx,
		netmask:   cfg.netmask,
		optimize:  cfg.optimize,
		engine:    cfg.engine,
		compilers: make(map[int]*program.Compiler),
	}
}

// precompile compiles expr against the source and stores it at index,
// replacing whatever was there. A failed compilation leaves the index empty.
func (f *filterSet) precompile(index int, expr string) error {
	if index < 0 {
		return fmt.Errorf("invalid filter index %d", index)
	}
	c, ok := f.compilers[index]
	if !ok {
		c = program.NewCompiler(program.WithEngine(f.engine))
		f.compilers[index] = c
	}
	return c.CompileBound(f.ctx, expr, f.netmask, f.optimize)
}

func (f *filterSet) program(index int) (*program.Program, error) {
	c, ok := f.compilers[index]
	if !ok {
		return nil, fmt.Errorf("no filter precompiled at index %d", index)
	}
	p, ok := c.Program()
	if !ok {
		return nil, fmt.Errorf("filter at index %d did not compile", index)
	}
	return p, nil
}

func (f *filterSet) release() {
	for _, c := range f.compilers {
		c.Release()
	}
}
