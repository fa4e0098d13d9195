package program

import (
	log "github.com/sirupsen/logrus"
)

// Compiler holds at most one compiled Program. It is not safe for
// concurrent use.
type Compiler struct {
	engine   Engine
	prog     *Program
	compiled bool
}

type Option func(*Compiler)

// WithEngine selects the engine expressions are compiled with
func WithEngine(e Engine) Option {
	return func(c *Compiler) {
		c.engine = e
	}
}

func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{engine: DefaultEngine}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CompileBound compiles expr for the link type and snapshot length of an
// open capture. A nil or closed ctx fails with ErrInvalidContext without
// reaching the engine. The engine is handed a transient DeadContext carrying
// the handle's parameters, never the handle itself.
func (c *Compiler) CompileBound(ctx Context, expr string, netmask uint32, optimize bool) error {
	c.Release()
	if ctx == nil || ctx.Closed() {
		return ErrInvalidContext
	}
	dead := OpenDead(ctx.LinkType(), ctx.SnapLen())
	defer dead.Close()
	return c.compile(dead, expr, netmask, optimize)
}

// CompileUnbound compiles expr without a capture, against a synthetic
// context that is discarded afterwards whatever the outcome.
func (c *Compiler) CompileUnbound(snapLen int, linkType uint32, expr string, netmask uint32, optimize bool) error {
	c.Release()
	dead := OpenDead(linkType, snapLen)
	defer dead.Close()
	return c.compile(dead, expr, netmask, optimize)
}

func (c *Compiler) compile(ctx Context, expr string, netmask uint32, optimize bool) error {
	logger := log.WithFields(log.Fields{
		"expr":     expr,
		"linktype": ctx.LinkType(),
		"snaplen":  ctx.SnapLen(),
		"netmask":  netmask,
		"optimize": optimize,
	})
	logger.Debug("compiling")
	p, err := c.engine.Compile(ctx, expr, netmask, optimize)
	if err != nil {
		logger.Debugf("rejected: %v", err)
		return &CompileError{Expr: expr, Msg: err.Error(), Err: err}
	}
	if p == nil || p.Len() == 0 {
		if p != nil {
			p.free()
		}
		return &CompileError{Expr: expr, Msg: "engine returned an empty program"}
	}
	c.prog, c.compiled = p, true
	logger.Debugf("compiled %d instructions", p.Len())
	return nil
}

// Program returns the held program, if any. It is invalidated by the next
// Release or compile.
func (c *Compiler) Program() (*Program, bool) {
	if !c.compiled {
		return nil, false
	}
	return c.prog, true
}

// Release frees the held program. Calling it with nothing held does nothing.
func (c *Compiler) Release() {
	if c.prog != nil {
		log.Debugf("releasing program of %d instructions", c.prog.Len())
		c.prog.free()
	}
	c.prog, c.compiled = nil, false
}

// Close releases the held program
func (c *Compiler) Close() error {
	c.Release()
	return nil
}
