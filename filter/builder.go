package filter

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// label is a jump target whose position is known once it is bound
type label int

// op is one instruction of the program being built. Jumps refer to labels
// while building and to absolute instruction indexes after resolve.
type op struct {
	ins    bpf.Instruction
	jump   bool
	cond   bool
	test   bpf.JumpTest
	val    uint32
	jt, jf int
}

func (o op) branches() bool {
	return o.jump || o.cond
}

func (o op) returns() bool {
	switch o.ins.(type) {
	case bpf.RetConstant, bpf.RetA:
		return true
	}
	return false
}

type builder struct {
	ops    []op
	labels []int
}

func (b *builder) newLabel() label {
	b.labels = append(b.labels, -1)
	return label(len(b.labels) - 1)
}

// bind points l at the next instruction emitted
func (b *builder) bind(l label) {
	b.labels[l] = len(b.ops)
}

func (b *builder) emit(ins bpf.Instruction) {
	b.ops = append(b.ops, op{ins: ins})
}

func (b *builder) jumpIf(test bpf.JumpTest, val uint32, yes, no label) {
	b.ops = append(b.ops, op{cond: true, test: test, val: val, jt: int(yes), jf: int(no)})
}

func (b *builder) jump(to label) {
	b.ops = append(b.ops, op{jump: true, jt: int(to)})
}

// resolve replaces label references by instruction indexes
func (b *builder) resolve() []op {
	ops := make([]op, len(b.ops))
	for i, o := range b.ops {
		if o.branches() {
			o.jt = b.labels[o.jt]
			if o.cond {
				o.jf = b.labels[o.jf]
			}
		}
		ops[i] = o
	}
	return ops
}

func (b *builder) assemble(optimize bool) ([]bpf.Instruction, error) {
	ops := b.resolve()
	if optimize {
		ops = optimizeOps(ops)
	}
	inst := make([]bpf.Instruction, 0, len(ops))
	for i, o := range ops {
		switch {
		case o.jump:
			inst = append(inst, bpf.Jump{Skip: uint32(o.jt - i - 1)})
		case o.cond:
			st, sf := o.jt-i-1, o.jf-i-1
			if st > maxSkip || sf > maxSkip {
				return nil, fmt.Errorf("%w: branch of %d instructions at %d", errTooComplex, max(st, sf), i)
			}
			inst = append(inst, bpf.JumpIf{Cond: o.test, Val: o.val, SkipTrue: uint8(st), SkipFalse: uint8(sf)})
		default:
			inst = append(inst, o.ins)
		}
	}
	return inst, nil
}

// optimizeOps threads jumps through unconditional jumps, turns branches with
// one destination into jumps, and drops unreachable instructions and jumps to
// the next instruction, until nothing changes.
func optimizeOps(ops []op) []op {
	for {
		changed := false
		for i := range ops {
			o := &ops[i]
			if !o.branches() {
				continue
			}
			if jt := follow(ops, o.jt); jt != o.jt {
				o.jt, changed = jt, true
			}
			if o.cond {
				if jf := follow(ops, o.jf); jf != o.jf {
					o.jf, changed = jf, true
				}
				if o.jt == o.jf {
					*o, changed = op{jump: true, jt: o.jt}, true
				}
			}
			// a jump to a return is the return itself
			if o.jump && ops[o.jt].returns() {
				*o, changed = op{ins: ops[o.jt].ins}, true
			}
		}
		var compacted bool
		if ops, compacted = compact(ops); !compacted && !changed {
			return ops
		}
	}
}

// follow skips over chains of unconditional jumps. Jumps only go forward so
// this always ends.
func follow(ops []op, i int) int {
	for ops[i].jump {
		i = ops[i].jt
	}
	return i
}

func compact(ops []op) ([]op, bool) {
	reachable := make([]bool, len(ops))
	reachable[0] = true
	for i, o := range ops {
		if !reachable[i] {
			continue
		}
		switch {
		case o.jump:
			reachable[o.jt] = true
		case o.cond:
			reachable[o.jt] = true
			reachable[o.jf] = true
		case !o.returns():
			reachable[i+1] = true
		}
	}
	keep := make([]bool, len(ops))
	removed := false
	for i, o := range ops {
		keep[i] = reachable[i] && !(o.jump && o.jt == i+1)
		removed = removed || !keep[i]
	}
	if !removed {
		return ops, false
	}

	// position of the first kept instruction at or after each index
	newIndex := make([]int, len(ops)+1)
	count := 0
	for i := range ops {
		if keep[i] {
			count++
		}
	}
	newIndex[len(ops)] = count
	for i := len(ops) - 1; i >= 0; i-- {
		if keep[i] {
			count--
			newIndex[i] = count
		} else {
			newIndex[i] = newIndex[i+1]
		}
	}

	out := make([]op, 0, newIndex[len(ops)])
	for i, o := range ops {
		if !keep[i] {
			continue
		}
		if o.branches() {
			o.jt = newIndex[o.jt]
			if o.cond {
				o.jf = newIndex[o.jf]
			}
		}
		out = append(out, o)
	}
	return out, true
}
