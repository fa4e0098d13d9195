package pcap

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"

	"github.com/packetcap/iosource/program"
)

// TraceSource reads a pcap savefile. Filters run in the user-space BPF VM.
// The path "-" reads standard input.
type TraceSource struct {
	path    string
	f       io.ReadCloser
	r       *pcapgo.Reader
	filters *filterSet
	active  *program.Program
	index   int
	closed  bool
}

// OpenTraceSource opens a pcap file, gzip compressed or not
func OpenTraceSource(path string, opts ...Option) (*TraceSource, error) {
	cfg := newConfig(opts)
	var f io.ReadCloser = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		f = file
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s is not a pcap file: %w", path, err)
	}
	log.WithFields(log.Fields{
		"path":     path,
		"linktype": r.LinkType(),
		"snaplen":  r.Snaplen(),
	}).Debug("opened trace")
	s := &TraceSource{path: path, f: f, r: r, index: -1}
	s.filters = newFilterSet(s, cfg)
	return s, nil
}

// ReadPacketData returns the next packet the active filter accepts, io.EOF
// at the end of the file.
func (s *TraceSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if s.closed {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	if s.index >= 0 && s.active == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("active filter %d failed to recompile", s.index)
	}
	for {
		data, ci, err := s.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				log.WithField("path", s.path).Warn("truncated trailing packet")
				err = io.EOF
			}
			return nil, ci, err
		}
		if s.active == nil {
			return data, ci, nil
		}
		ok, err := s.active.Matches(data)
		if err != nil {
			return nil, ci, err
		}
		if ok {
			return data, ci, nil
		}
	}
}

func (s *TraceSource) Path() string     { return s.path }
func (s *TraceSource) IsLive() bool     { return false }
func (s *TraceSource) LinkType() uint32 { return uint32(s.r.LinkType()) }
func (s *TraceSource) Closed() bool     { return s.closed }

// SnapLen of the file header, DefaultSnapLen when the header says 0
func (s *TraceSource) SnapLen() int {
	if n := s.r.Snaplen(); n > 0 {
		return int(n)
	}
	return DefaultSnapLen
}

// PrecompileFilter compiles expr into slot index. Recompiling the active
// slot swaps the running filter; a failed recompile leaves no active filter
// and reads fail until SetFilter succeeds again.
func (s *TraceSource) PrecompileFilter(index int, expr string) error {
	err := s.filters.precompile(index, expr)
	if index == s.index {
		s.active, _ = s.filters.program(index)
	}
	return err
}

// SetFilter makes the filter precompiled at index the active one
func (s *TraceSource) SetFilter(index int) error {
	p, err := s.filters.program(index)
	if err != nil {
		return err
	}
	s.active = p
	s.index = index
	return nil
}

func (s *TraceSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.active = nil
	s.filters.release()
	if s.f == os.Stdin {
		return nil
	}
	return s.f.Close()
}
