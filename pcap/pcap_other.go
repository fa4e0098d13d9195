//go:build !linux && !darwin && !freebsd

package pcap

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gopacket/gopacket"
	"golang.org/x/net/bpf"
)

// Handle is a placeholder on platforms without a live capture backend.
// Trace files and dumpers work everywhere.
type Handle struct {
	snaplen  int32
	linkType uint32
	closed   atomic.Bool
}

func openLive(ctx context.Context, iface string, snaplen int32, promiscuous bool, timeout time.Duration) (*Handle, error) {
	return nil, fmt.Errorf("live capture is not supported on %s", runtime.GOOS)
}

func (h *Handle) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	return nil, ci, io.EOF
}

func (h *Handle) Close() {
	h.closed.Store(true)
}

func (h *Handle) LinkType() uint32 {
	return h.linkType
}

func (h *Handle) setFilter([]bpf.RawInstruction) error {
	return fmt.Errorf("kernel filters are not supported on %s", runtime.GOOS)
}
