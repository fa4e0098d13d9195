package pcap

import (
	"context"
	"time"

	"github.com/packetcap/iosource/program"
)

type config struct {
	ctx         context.Context
	snaplen     int32
	promiscuous bool
	timeout     time.Duration
	netmask     uint32
	optimize    bool
	engine      program.Engine
}

// Option tunes the sources opened by this package
type Option func(*config)

func newConfig(opts []Option) *config {
	cfg := &config{
		ctx:         context.Background(),
		snaplen:     DefaultSnapLen,
		promiscuous: true,
		optimize:    true,
		engine:      program.DefaultEngine,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithContext bounds live reads; once ctx is done they return its error
func WithContext(ctx context.Context) Option {
	return func(c *config) { c.ctx = ctx }
}

func WithSnapLen(snaplen int32) Option {
	return func(c *config) { c.snaplen = snaplen }
}

func WithPromiscuous(promiscuous bool) Option {
	return func(c *config) { c.promiscuous = promiscuous }
}

// WithTimeout sets the idle timeout of live reads, 0 blocks forever
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) { c.timeout = timeout }
}

// WithNetmask sets the netmask used by "ip broadcast"
func WithNetmask(netmask uint32) Option {
	return func(c *config) { c.netmask = netmask }
}

func WithOptimize(optimize bool) Option {
	return func(c *config) { c.optimize = optimize }
}

func WithEngine(engine program.Engine) Option {
	return func(c *config) { c.engine = engine }
}
