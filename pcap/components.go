package pcap

import (
	"fmt"

	"github.com/packetcap/iosource"
)

// Name of the components registered by Register
const Name = "pcap"

// Register adds the pcap source, live and trace, and the pcap dumper to r.
// Both handle the "pcap" prefix. Options apply to every source opened
// through the registry.
func Register(r *iosource.Registry, opts ...Option) error {
	src, err := iosource.NewSourceComponent(Name, Name, iosource.Both, iosource.SourceFactoryFunc(func(path, filter string, live bool) (iosource.PktSrc, error) {
		return Open(path, filter, live, opts...)
	}))
	if err != nil {
		return err
	}
	dumper, err := iosource.NewDumperComponent(Name, Name, iosource.DumperFactoryFunc(func(path string, appending bool) (iosource.PktDumper, error) {
		return NewDumper(path, appending), nil
	}))
	if err != nil {
		return err
	}
	if err := r.Register(src); err != nil {
		return err
	}
	return r.Register(dumper)
}

// Open opens a live or trace source and, when filter is not empty, installs
// it as filter 0.
func Open(path, filter string, live bool, opts ...Option) (iosource.PktSrc, error) {
	var (
		src iosource.PktSrc
		err error
	)
	if live {
		src, err = OpenLiveSource(path, opts...)
	} else {
		src, err = OpenTraceSource(path, opts...)
	}
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return src, nil
	}
	if err := src.PrecompileFilter(0, filter); err != nil {
		_ = src.Close()
		return nil, err
	}
	if err := src.SetFilter(0); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("error setting filter on %s: %w", path, err)
	}
	return src, nil
}
