package pcap

import (
	"context"
	"encoding/binary"
	"errors"
	"time"
	"unsafe"

	"github.com/gopacket/gopacket"

	"github.com/packetcap/iosource/program"
)

// Packet a single packet returned by a listen call
type Packet struct {
	B     []byte
	Info  gopacket.CaptureInfo
	Error error
}

// OpenLive open a live capture on device, or on all interfaces when device is
// empty. Returns a Handle that implements https://godoc.org/github.com/gopacket/gopacket#PacketDataSource
// so you can pass it there. Reads return ctx.Err() once ctx is done, and
// context.DeadlineExceeded when timeout passes without a packet.
func OpenLive(ctx context.Context, device string, snaplen int32, promiscuous bool, timeout time.Duration) (handle *Handle, _ error) {
	return openLive(ctx, device, snaplen, promiscuous, timeout)
}

// Listen simple one-step command to listen and send packets over a returned
// channel. The channel is closed after the first error.
func (h *Handle) Listen() chan Packet {
	c := make(chan Packet, 50)
	go func() {
		defer close(c)
		for {
			b, ci, err := h.ReadPacketData()
			c <- Packet{
				B:     b,
				Info:  ci,
				Error: err,
			}
			if err != nil {
				return
			}
		}
	}()
	return c
}

// SetBPFFilter compiles a filter compliant with tcpdump syntax against the
// handle and installs it in the kernel.
func (h *Handle) SetBPFFilter(expr string) error {
	c := program.NewCompiler()
	defer c.Release()
	if err := c.CompileBound(h, expr, 0, true); err != nil {
		return err
	}
	p, _ := c.Program()
	return h.setFilter(p.Instructions())
}

func (h *Handle) SnapLen() int {
	return int(h.snaplen)
}

func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// getEndianness discover the endianness of our current system
func getEndianness() (binary.ByteOrder, error) {
	buf := [2]byte{}
	*(*uint16)(unsafe.Pointer(&buf[0])) = uint16(0xABCD)

	switch buf {
	case [2]byte{0xCD, 0xAB}:
		return binary.LittleEndian, nil
	case [2]byte{0xAB, 0xCD}:
		return binary.BigEndian, nil
	default:
		return nil, errors.New("could not determine native endianness")
	}
}
