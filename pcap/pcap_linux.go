package pcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gopacket/gopacket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/bpf"
	syscall "golang.org/x/sys/unix"
)

type Handle struct {
	context     context.Context
	close       sync.Once
	closed      atomic.Bool
	promiscuous bool
	timeout     time.Duration
	index       int
	snaplen     int32
	fd          int
	linkType    uint32
	waker       *waker
}

func (h *Handle) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	if h.closed.Load() {
		return nil, ci, io.EOF
	}
	if err := h.waker.poll(h.fd, h.timeout); err != nil {
		if h.closed.Load() {
			return nil, ci, io.EOF
		}
		if errors.Is(err, errWoken) {
			return nil, ci, h.context.Err()
		}
		return nil, ci, err
	}
	b := make([]byte, h.snaplen)
	// MSG_TRUNC returns the original packet length even when b is shorter
	read, from, err := syscall.Recvfrom(h.fd, b, syscall.MSG_TRUNC)
	if err != nil {
		if h.closed.Load() {
			return nil, ci, io.EOF
		}
		return nil, ci, fmt.Errorf("error reading: %v", err)
	}
	caplen := min(read, len(b))
	// TODO: kernel receive timestamps via SO_TIMESTAMPNS and recvmsg
	ci = gopacket.CaptureInfo{
		Timestamp:      time.Now(),
		Length:         read,
		CaptureLength:  caplen,
		InterfaceIndex: h.index,
	}
	if sall, ok := from.(*syscall.SockaddrLinklayer); ok {
		ci.InterfaceIndex = sall.Ifindex
	}
	return b[:caplen], ci, nil
}

// Close close sockets and release resources
// Close is idempotent, and uses sync.Once to ensure it only runs once.
func (h *Handle) Close() {
	h.close.Do(func() {
		h.closed.Store(true)
		h.waker.wake()
		_ = syscall.Close(h.fd)
		h.waker.close()
	})
}

// LinkType return the link type, compliant with pcap-linktype(7) and http://www.tcpdump.org/linktypes.html.
func (h *Handle) LinkType() uint32 {
	return h.linkType
}

// setFilter attaches a classic BPF program to the socket. An empty program
// detaches whatever filter is installed.
func (h *Handle) setFilter(filter []bpf.RawInstruction) error {
	if len(filter) == 0 {
		if err := syscall.SetsockoptInt(h.fd, syscall.SOL_SOCKET, syscall.SO_DETACH_FILTER, 0); err != nil && !errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("unable to remove filter: %v", err)
		}
		return nil
	}
	prog := syscall.SockFprog{
		Len:    uint16(len(filter)),
		Filter: (*syscall.SockFilter)(unsafe.Pointer(&filter[0])),
	}
	if err := syscall.SetsockoptSockFprog(h.fd, syscall.SOL_SOCKET, syscall.SO_ATTACH_FILTER, &prog); err != nil {
		return fmt.Errorf("unable to set filter: %v", err)
	}
	return nil
}

func htons(in uint16) uint16 {
	return (in<<8)&0xff00 | in>>8
}

// linkTypeOf maps the ARPHRD type of an interface to its pcap link type.
// Capturing on all interfaces yields ethernet framing.
func linkTypeOf(iface string) uint32 {
	if iface == "" {
		return LinkTypeEthernet
	}
	b, err := os.ReadFile(filepath.Join("/sys/class/net", iface, "type"))
	if err != nil {
		return LinkTypeEthernet
	}
	arphrd, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return LinkTypeEthernet
	}
	switch arphrd {
	case syscall.ARPHRD_NONE, syscall.ARPHRD_SIT, syscall.ARPHRD_IPGRE, syscall.ARPHRD_TUNNEL, syscall.ARPHRD_TUNNEL6:
		return LinkTypeRaw
	default:
		return LinkTypeEthernet
	}
}

func openLive(ctx context.Context, iface string, snaplen int32, promiscuous bool, timeout time.Duration) (handle *Handle, _ error) {
	logger := log.WithFields(log.Fields{
		"iface":       iface,
		"snaplen":     snaplen,
		"promiscuous": promiscuous,
		"timeout":     timeout,
	})
	logger.Debug("started")
	if snaplen <= 0 {
		snaplen = DefaultSnapLen
	}
	h := &Handle{
		context:  ctx,
		snaplen:  snaplen,
		timeout:  timeout,
		linkType: linkTypeOf(iface),
	}
	// set up the socket - remember to switch to network socket order for the protocol int
	fd, err := syscall.Socket(syscall.AF_PACKET, syscall.SOCK_RAW, int(htons(syscall.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("failed opening raw socket: %v", err)
	}
	h.fd = fd
	fail := func(err error) (*Handle, error) {
		_ = syscall.Close(fd)
		return nil, err
	}
	if iface != "" {
		// get our interface
		in, err := net.InterfaceByName(iface)
		if err != nil {
			return fail(fmt.Errorf("unknown interface %s: %v", iface, err))
		}
		h.index = in.Index

		// create the sockaddr_ll
		sa := syscall.SockaddrLinklayer{
			Protocol: htons(syscall.ETH_P_ALL),
			Ifindex:  in.Index,
		}
		// bind to it
		if err = syscall.Bind(fd, &sa); err != nil {
			return fail(fmt.Errorf("failed to bind to %s: %v", iface, err))
		}
		if promiscuous {
			h.promiscuous = true
			mreq := syscall.PacketMreq{
				Ifindex: int32(in.Index),
				Type:    syscall.PACKET_MR_PROMISC,
			}
			if err = syscall.SetsockoptPacketMreq(fd, syscall.SOL_PACKET, syscall.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
				return fail(fmt.Errorf("failed to set promiscuous for %s: %v", iface, err))
			}
		}
	}
	if h.waker, err = newWaker(ctx); err != nil {
		return fail(err)
	}
	logger.WithField("linktype", h.linkType).Debug("opened")
	return h, nil
}
