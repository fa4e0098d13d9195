package pcap

import (
	"github.com/gopacket/gopacket"
	log "github.com/sirupsen/logrus"

	"github.com/packetcap/iosource"
)

// LiveSource captures from a network interface. Filters run in the kernel.
type LiveSource struct {
	handle  *Handle
	device  string
	filters *filterSet
}

var _ iosource.PktSrc = (*LiveSource)(nil)

// OpenLiveSource opens device, or every interface when device is empty
func OpenLiveSource(device string, opts ...Option) (*LiveSource, error) {
	cfg := newConfig(opts)
	h, err := OpenLive(cfg.ctx, device, cfg.snaplen, cfg.promiscuous, cfg.timeout)
	if err != nil {
		return nil, err
	}
	return &LiveSource{
		handle:  h,
		device:  device,
		filters: newFilterSet(h, cfg),
	}, nil
}

func (s *LiveSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return s.handle.ReadPacketData()
}

func (s *LiveSource) Path() string     { return s.device }
func (s *LiveSource) IsLive() bool     { return true }
func (s *LiveSource) LinkType() uint32 { return s.handle.LinkType() }
func (s *LiveSource) SnapLen() int     { return s.handle.SnapLen() }
func (s *LiveSource) Closed() bool     { return s.handle.Closed() }

// Handle exposes the underlying capture handle
func (s *LiveSource) Handle() *Handle {
	return s.handle
}

func (s *LiveSource) PrecompileFilter(index int, expr string) error {
	return s.filters.precompile(index, expr)
}

// SetFilter installs the filter precompiled at index in the kernel
func (s *LiveSource) SetFilter(index int) error {
	p, err := s.filters.program(index)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"device": s.device,
		"index":  index,
		"len":    p.Len(),
	}).Debug("installing filter")
	return s.handle.setFilter(p.Instructions())
}

func (s *LiveSource) Close() error {
	s.handle.Close()
	s.filters.release()
	return nil
}
