package filter

import "golang.org/x/net/bpf"

// node is the lowered form of an expression. gen emits instructions that
// branch to yes when the node matches and to no otherwise.
type node interface {
	gen(b *builder, yes, no label)
}

// test loads a value and compares it against a constant
type test struct {
	load []bpf.Instruction
	cond bpf.JumpTest
	val  uint32
}

func (t test) gen(b *builder, yes, no label) {
	for _, ins := range t.load {
		b.emit(ins)
	}
	b.jumpIf(t.cond, t.val, yes, no)
}

func compare(load bpf.Instruction, cond bpf.JumpTest, val uint32) test {
	return test{load: []bpf.Instruction{load}, cond: cond, val: val}
}

// maskedCompare applies mask to the loaded value before comparing. A full
// mask is left out.
func maskedCompare(load bpf.Instruction, mask uint32, cond bpf.JumpTest, val uint32) test {
	t := compare(load, cond, val)
	if mask != 0xffffffff {
		t.load = append(t.load, bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: mask})
	}
	return t
}

type all []node

func (a all) gen(b *builder, yes, no label) {
	for i, n := range a {
		if i == len(a)-1 {
			n.gen(b, yes, no)
			return
		}
		next := b.newLabel()
		n.gen(b, next, no)
		b.bind(next)
	}
}

type some []node

func (s some) gen(b *builder, yes, no label) {
	for i, n := range s {
		if i == len(s)-1 {
			n.gen(b, yes, no)
			return
		}
		next := b.newLabel()
		n.gen(b, yes, next)
		b.bind(next)
	}
}

type not struct {
	inner node
}

func (n not) gen(b *builder, yes, no label) {
	n.inner.gen(b, no, yes)
}

type constant bool

func (c constant) gen(b *builder, yes, no label) {
	if c {
		b.jump(yes)
		return
	}
	b.jump(no)
}

// allOf matches when every node matches. No nodes always match.
func allOf(nodes ...node) node {
	switch len(nodes) {
	case 0:
		return constant(true)
	case 1:
		return nodes[0]
	}
	return all(nodes)
}

// anyOf matches when one of the nodes matches. No nodes never match.
func anyOf(nodes ...node) node {
	switch len(nodes) {
	case 0:
		return constant(false)
	case 1:
		return nodes[0]
	}
	return some(nodes)
}
