// Package program compiles filter expressions into classic BPF programs and
// manages the lifetime of the compiled result.
//
// A Compiler holds at most one Program. Every compile releases the previous
// program first, and a failed compile leaves nothing held:
//
//	c := program.NewCompiler()
//	defer c.Close()
//	if err := c.CompileUnbound(65535, filter.LinkTypeEthernet, "tcp port 80", 0, true); err != nil {
//		return err
//	}
//	p, _ := c.Program()
//	fmt.Print(p)
package program

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/bpf"
)

// Program is a compiled filter. It is owned by the Compiler that produced
// it and becomes unusable once that Compiler releases it or compiles again.
type Program struct {
	insns    []bpf.RawInstruction
	release  func()
	released bool

	vmOnce sync.Once
	vm     *bpf.VM
	vmErr  error
}

// newProgram wraps instructions. release, when set, frees the memory insns
// points into.
func newProgram(insns []bpf.RawInstruction, release func()) *Program {
	return &Program{insns: insns, release: release}
}

// Len returns the number of instructions, 0 once released
func (p *Program) Len() int {
	return len(p.insns)
}

// Instructions returns the raw instructions, suitable for SO_ATTACH_FILTER
// or BIOCSETF. The slice must not be kept past the next compile or release
// of the owning Compiler.
func (p *Program) Instructions() []bpf.RawInstruction {
	return p.insns
}

// Released reports whether the program was freed
func (p *Program) Released() bool {
	return p.released
}

// Matches runs the program over a frame and reports whether it was accepted
func (p *Program) Matches(data []byte) (bool, error) {
	if p.Released() {
		return false, ErrReleased
	}
	p.vmOnce.Do(func() {
		insns := make([]bpf.Instruction, len(p.insns))
		for i, raw := range p.insns {
			insns[i] = raw.Disassemble()
		}
		p.vm, p.vmErr = bpf.NewVM(insns)
	})
	if p.vmErr != nil {
		return false, fmt.Errorf("unable to run program: %w", p.vmErr)
	}
	n, err := p.vm.Run(data)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// String disassembles the program, one instruction per line like tcpdump -d
func (p *Program) String() string {
	var sb strings.Builder
	for i, raw := range p.insns {
		fmt.Fprintf(&sb, "(%03d) %s\n", i, raw.Disassemble())
	}
	return sb.String()
}

func (p *Program) free() {
	if p.released {
		return
	}
	p.released = true
	p.insns = nil
	p.vm = nil
	if p.release != nil {
		p.release()
		p.release = nil
	}
}
