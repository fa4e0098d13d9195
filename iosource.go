// Package iosource describes pluggable packet sources and dumpers and
// dispatches to them by path prefix.
//
// Implementations register a SourceComponent or DumperComponent with a
// Registry. A path such as "pcap:/tmp/trace.pcap" is routed to the component
// handling prefix "pcap", whose factory creates the source or dumper:
//
//	r := iosource.NewRegistry()
//	if err := pcap.Register(r); err != nil {
//		return err
//	}
//	src, err := r.OpenSource("pcap:trace.pcap", "tcp port 80", false)
//
// Sources compile filters with package program.
package iosource

import (
	"github.com/gopacket/gopacket"
)

// PktSrc is an open packet source. It is a gopacket.PacketDataSource, and
// a capture context for program.Compiler.CompileBound.
type PktSrc interface {
	gopacket.PacketDataSource

	Path() string
	IsLive() bool
	// LinkType compliant with pcap-linktype(7)
	LinkType() uint32
	SnapLen() int
	Closed() bool

	// PrecompileFilter compiles expr and keeps it under index, replacing
	// whatever was there
	PrecompileFilter(index int, expr string) error
	// SetFilter installs the filter precompiled under index
	SetFilter(index int) error

	Close() error
}

// PktDumper writes packets to a path
type PktDumper interface {
	Path() string
	// Open prepares the output for frames of the given link type, e.g. by
	// writing a file header
	Open(linkType uint32, snapLen int) error
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
	Close() error
}
