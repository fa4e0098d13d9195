//go:build libpcap

package program

/*
#cgo LDFLAGS: -lpcap
#include <stdlib.h>
#include <pcap.h>

#ifndef PCAP_NETMASK_UNKNOWN
#define PCAP_NETMASK_UNKNOWN 0xffffffff
#endif
*/
import "C"

import (
	"errors"
	"unsafe"

	"golang.org/x/net/bpf"

	"github.com/packetcap/iosource/filter"
)

// LibpcapEngine compiles with pcap_compile. The instructions stay in the
// native bpf_program and are freed with pcap_freecode when the Program is
// released. A netmask of 0 is passed as PCAP_NETMASK_UNKNOWN.
type LibpcapEngine struct{}

func (LibpcapEngine) Compile(ctx Context, expr string, netmask uint32, optimize bool) (*Program, error) {
	p := C.pcap_open_dead(dltOf(ctx.LinkType()), C.int(ctx.SnapLen()))
	if p == nil {
		return nil, errors.New("libpcap: error opening dead capture")
	}
	defer C.pcap_close(p)

	cexpr := C.CString(expr)
	defer C.free(unsafe.Pointer(cexpr))

	var opt C.int
	if optimize {
		opt = 1
	}
	mask := C.bpf_u_int32(netmask)
	if netmask == 0 {
		mask = C.PCAP_NETMASK_UNKNOWN
	}

	prog := (*C.struct_bpf_program)(C.calloc(1, C.sizeof_struct_bpf_program))
	if prog == nil {
		return nil, errors.New("libpcap: out of memory")
	}
	if C.pcap_compile(p, prog, cexpr, opt, mask) < 0 {
		C.free(unsafe.Pointer(prog))
		return nil, errors.New(C.GoString(C.pcap_geterr(p)))
	}
	// struct bpf_insn has the layout of bpf.RawInstruction
	insns := unsafe.Slice((*bpf.RawInstruction)(unsafe.Pointer(prog.bf_insns)), int(prog.bf_len))
	return newProgram(insns, func() {
		C.pcap_freecode(prog)
		C.free(unsafe.Pointer(prog))
	}), nil
}

// dltOf maps a LINKTYPE_ value to the DLT_ value pcap_open_dead expects.
// They differ only for LINKTYPE_RAW, whose DLT_ value is platform specific.
func dltOf(linkType uint32) C.int {
	if linkType == filter.LinkTypeRaw {
		return C.DLT_RAW
	}
	return C.int(linkType)
}
