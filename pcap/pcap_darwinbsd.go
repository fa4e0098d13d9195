//go:build darwin || freebsd

package pcap

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/gopacket/gopacket"
	log "github.com/sirupsen/logrus"
)

const (
	enable = 1
)

type Handle struct {
	context     context.Context
	close       sync.Once
	closed      atomic.Bool
	promiscuous bool //nolint: unused
	timeout     time.Duration
	index       int
	snaplen     int32
	fd          int
	buf         []byte
	pending     []byte
	endian      binary.ByteOrder
	linkType    uint32
	waker       *waker
}

type BpfProgram struct {
	Len    uint32
	Filter *bpf.RawInstruction
}

// ReadPacketData returns the next packet from the bpf device. One read can
// return several packets; they are handed out one per call before the
// device is read again.
func (h *Handle) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	if h.closed.Load() {
		return nil, ci, io.EOF
	}
	if len(h.pending) == 0 {
		if err := h.fill(); err != nil {
			return nil, ci, err
		}
	}
	if len(h.pending) < unix.SizeofBpfHdr {
		h.pending = nil
		return nil, ci, errors.New("short bpf header")
	}
	// separate the header and packet body
	hdr := unix.BpfHdr{}
	buf := bytes.NewBuffer(h.pending[:unix.SizeofBpfHdr])
	if err = binary.Read(buf, h.endian, &hdr); err != nil {
		h.pending = nil
		return nil, ci, fmt.Errorf("error reading bpf header: %v", err)
	}
	end := uint32(hdr.Hdrlen) + hdr.Caplen
	if int(end) > len(h.pending) {
		h.pending = nil
		return nil, ci, fmt.Errorf("bpf record of %d bytes overruns buffer", end)
	}
	data = make([]byte, hdr.Caplen)
	copy(data, h.pending[hdr.Hdrlen:end])
	ci = gopacket.CaptureInfo{
		Timestamp:      time.Unix(int64(hdr.Tstamp.Sec), int64(hdr.Tstamp.Usec)*1000),
		CaptureLength:  int(hdr.Caplen),
		Length:         int(hdr.Datalen),
		InterfaceIndex: h.index,
	}
	next := bpfWordAlign(int(end))
	if next >= len(h.pending) {
		h.pending = nil
	} else {
		h.pending = h.pending[next:]
	}
	return data, ci, nil
}

// fill blocks until the device has data and reads it into the buffer.
func (h *Handle) fill() error {
	if err := h.waker.poll(h.fd, h.timeout); err != nil {
		if h.closed.Load() {
			return io.EOF
		}
		if errors.Is(err, errWoken) {
			return h.context.Err()
		}
		return err
	}
	read, err := unix.Read(h.fd, h.buf)
	if err != nil {
		if h.closed.Load() {
			return io.EOF
		}
		return fmt.Errorf("error reading: %v", err)
	}
	if read <= 0 {
		return fmt.Errorf("read no packets")
	}
	h.pending = h.buf[:read]
	return nil
}

func bpfWordAlign(x int) int {
	return (x + unix.BPF_ALIGNMENT - 1) &^ (unix.BPF_ALIGNMENT - 1)
}

// Close close sockets and release resources
// Close is idempotent, and uses sync.Once to ensure it only runs once.
func (h *Handle) Close() {
	h.close.Do(func() {
		h.closed.Store(true)
		h.waker.wake()
		_ = unix.Close(h.fd)
		h.waker.close()
	})
}

// set a classic BPF filter on the device. An empty program accepts
// everything.
func (h *Handle) setFilter(filter []bpf.RawInstruction) error {
	if len(filter) == 0 {
		filter = []bpf.RawInstruction{{Op: 0x06, K: 0xffffffff}}
	}
	/*
	 * Try to install the kernel filter.
	 */
	prog := BpfProgram{
		Len:    uint32(len(filter)),
		Filter: (*bpf.RawInstruction)(unsafe.Pointer(&filter[0])),
	}
	if err := ioctlPtr(h.fd, unix.BIOCSETF, unsafe.Pointer(&prog)); err != nil {
		return fmt.Errorf("unable to set filter: %v", err)
	}
	// BIOCSETF flushes the device buffer
	h.pending = nil
	return nil
}

func openLive(ctx context.Context, iface string, snaplen int32, promiscuous bool, timeout time.Duration) (handle *Handle, _ error) {
	var (
		fd  = -1
		err error
	)
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
	h := Handle{
		context: ctx,
		snaplen: snaplen,
		timeout: timeout,
	}
	// we need to know our endianness
	endianness, err := getEndianness()
	if err != nil {
		return nil, err
	}
	h.endian = endianness

	// open the bpf device
	for i := 0; i < 255; i++ {
		dev := fmt.Sprintf("/dev/bpf%d", i)
		fd, err = unix.Open(dev, unix.O_RDWR, 0000)
		if fd > -1 {
			break
		}
		if err != nil && err == unix.EBUSY {
			continue
		}
		return nil, fmt.Errorf("error opening device %s: %v", dev, err)
	}
	if fd <= -1 {
		return nil, errors.New("failed to get valid bpf device")
	}
	h.fd = fd
	fail := func(err error) (*Handle, error) {
		_ = unix.Close(fd)
		return nil, err
	}

	// set the options
	if err = SetBpfInterface(fd, iface); err != nil {
		return fail(fmt.Errorf("failed to set the BPF interface: %v", err))
	}
	if in, err := net.InterfaceByName(iface); err == nil {
		h.index = in.Index
	}
	if err = SetBpfHeadercmpl(fd, enable); err != nil {
		return fail(fmt.Errorf("failed to set the BPF header complete option: %v", err))
	}
	if err = SetBpfMonitor(fd, enable); err != nil {
		return fail(fmt.Errorf("failed to set the BPF monitor option: %v", err))
	}
	if err = SetBpfImmediate(fd, enable); err != nil {
		return fail(fmt.Errorf("failed to set the BPF immediate return option: %v", err))
	}
	if promiscuous {
		if err = SetBpfPromisc(fd); err != nil {
			return fail(fmt.Errorf("failed to set promiscuous for %s: %v", iface, err))
		}
		h.promiscuous = true
	}
	size, err := BpfBuflen(fd)
	if err != nil {
		return fail(fmt.Errorf("failed to read buffer length: %v", err))
	}
	h.buf = make([]byte, size)

	linkType, err := getLinkType(fd)
	if err != nil {
		return fail(fmt.Errorf("failed to get link type: %v", err))
	}
	h.linkType = linkType

	if h.waker, err = newWaker(ctx); err != nil {
		return fail(err)
	}
	logger.WithField("linktype", h.linkType).Debug("opened")
	return &h, nil
}

// because they deprecated all of the below from "syscall" and redirected to "golang.org/x/net/bpf" but did not
// create a replacement. Sigh.

type ivalue struct {
	name  [unix.IFNAMSIZ]byte
	value int16
}

func SetBpfInterface(fd int, name string) error {
	var iv ivalue
	copy(iv.name[:], []byte(name))
	return ioctlPtr(fd, unix.BIOCSETIF, unsafe.Pointer(&iv))
}

func SetBpfHeadercmpl(fd, m int) error {
	return unix.IoctlSetPointerInt(fd, unix.BIOCSHDRCMPLT, m)
}

func SetBpfImmediate(fd, m int) error {
	return unix.IoctlSetPointerInt(fd, unix.BIOCIMMEDIATE, m)
}

func SetBpfMonitor(fd, m int) error {
	return unix.IoctlSetPointerInt(fd, unix.BIOCSSEESENT, m)
}

func SetBpfPromisc(fd int) error {
	return ioctlPtr(fd, unix.BIOCPROMISC, nil)
}

func BpfBuflen(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.BIOCGBLEN)
}

func ioctlPtr(fd, arg int, valPtr unsafe.Pointer) error {
	//nolint:staticcheck // unix.SYS_IOCTL is deprecated, but golang does not provide a better alternative
	// as of this writing for passing pointers
	_, _, errno := unix.RawSyscall(unix.SYS_IOCTL, uintptr(fd), uintptr(arg), uintptr(valPtr))
	if errno != 0 {
		return fmt.Errorf("error: %d", errno)
	}
	return nil
}

func getLinkType(fd int) (uint32, error) {
	linkType, err := unix.IoctlGetInt(fd, unix.BIOCGDLT)
	if err != nil {
		return 0xffffffff, fmt.Errorf("failed to get link type: %v", err)
	}
	return uint32(linkType), nil
}

// LinkType return the link type, compliant with pcap-linktype(7) and http://www.tcpdump.org/linktypes.html.
// For now, we just support Null and Ethernet; some day we may support more
func (h *Handle) LinkType() uint32 {
	return h.linkType
}
