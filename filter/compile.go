package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"

	"golang.org/x/net/bpf"
)

var (
	ip4MaskFull = net.CIDRMask(32, 32)   //[]byte{0xff, 0xff, 0xff, 0xff}
	ip6MaskFull = net.CIDRMask(128, 128) //[]byte{0xff, 0xff, 0xff, 0xff,0xff, 0xff, 0xff, 0xff,0xff, 0xff, 0xff, 0xff,0xff, 0xff, 0xff, 0xff}
)

// compiler holds the link parameters primitives are lowered against
type compiler struct {
	linkType uint32
	netmask  uint32
}

// linkTypeOffset returns the link layer header size for a given link type
func linkTypeOffset(linkType uint32) uint32 {
	switch linkType {
	case LinkTypeNull:
		return 4 // BSD loopback header
	case LinkTypeRaw:
		return 0
	}
	return 14 // Ethernet header (default)
}

func (c *compiler) offset() uint32 {
	return linkTypeOffset(c.linkType)
}

// etherType matches frames carrying the given network protocol. Link types
// without an EtherType field are mapped onto what they can express.
func (c *compiler) etherType(typ uint32) (node, error) {
	switch c.linkType {
	case LinkTypeEthernet:
		return compare(bpf.LoadAbsolute{Off: 12, Size: lengthHalf}, bpf.JumpEqual, typ), nil
	case LinkTypeNull:
		// the family is in the byte order of the capturing host, so accept both
		load := bpf.LoadAbsolute{Off: 0, Size: lengthWord}
		var families []uint32
		switch typ {
		case etherTypeIPv4:
			families = []uint32{afInet}
		case etherTypeIPv6:
			families = []uint32{afInet6NetBSD, afInet6FreeBSD, afInet6Darwin}
		}
		var alts []node
		for _, af := range families {
			alts = append(alts, compare(load, bpf.JumpEqual, af), compare(load, bpf.JumpEqual, bits.ReverseBytes32(af)))
		}
		if len(alts) > 0 {
			return anyOf(alts...), nil
		}
	case LinkTypeRaw:
		load := bpf.LoadAbsolute{Off: 0, Size: lengthByte}
		switch typ {
		case etherTypeIPv4:
			return maskedCompare(load, 0xf0, bpf.JumpEqual, 0x40), nil
		case etherTypeIPv6:
			return maskedCompare(load, 0xf0, bpf.JumpEqual, 0x60), nil
		}
	}
	return nil, fmt.Errorf("ethertype 0x%04x not supported on link type %d", typ, c.linkType)
}

func (c *compiler) ipv4() (node, error) {
	return c.etherType(etherTypeIPv4)
}

func (c *compiler) ipv6() (node, error) {
	return c.etherType(etherTypeIPv6)
}

func (c *compiler) loadIPv4SourceAddress() bpf.Instruction {
	return bpf.LoadAbsolute{Off: c.offset() + 12, Size: lengthWord}
}

func (c *compiler) loadIPv4DestinationAddress() bpf.Instruction {
	return bpf.LoadAbsolute{Off: c.offset() + 16, Size: lengthWord}
}

func (c *compiler) loadArpSenderAddress() bpf.Instruction {
	return bpf.LoadAbsolute{Off: c.offset() + 14, Size: lengthWord}
}

func (c *compiler) loadArpTargetAddress() bpf.Instruction {
	return bpf.LoadAbsolute{Off: c.offset() + 24, Size: lengthWord}
}

// IPv6 addresses start at offset 8 (source) and 24 (destination) within the IP header
func (c *compiler) ip6SourceAddressStart() uint32 {
	return c.offset() + 8
}

func (c *compiler) ip6DestinationAddressStart() uint32 {
	return c.offset() + 24
}

// ipv4Protocol compares the IPv4 protocol field
func (c *compiler) ipv4Protocol(proto uint32) node {
	return compare(bpf.LoadAbsolute{Off: c.offset() + 9, Size: lengthByte}, bpf.JumpEqual, proto)
}

// ipv6Protocol compares the IPv6 next header, looking past a fragment header
func (c *compiler) ipv6Protocol(proto uint32) node {
	next := bpf.LoadAbsolute{Off: c.offset() + 6, Size: lengthByte}
	return anyOf(
		compare(next, bpf.JumpEqual, proto),
		allOf(
			compare(next, bpf.JumpEqual, ip6FragmentHeader),
			compare(bpf.LoadAbsolute{Off: c.offset() + 40, Size: lengthByte}, bpf.JumpEqual, proto),
		),
	)
}

// ipv4NotFragment is true for the first fragment only, where the L4 header is
func (c *compiler) ipv4NotFragment() node {
	return compare(bpf.LoadAbsolute{Off: c.offset() + 6, Size: lengthHalf}, bpf.JumpBitsNotSet, fragmentMask)
}

// loadIPv4Port loads the source (0) or destination (2) port behind a
// variable length IPv4 header
func (c *compiler) loadIPv4Port(field uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadMemShift{Off: c.offset()}, // calculate size of IP header (starting from link layer size)
		bpf.LoadIndirect{Off: c.offset() + field, Size: lengthHalf},
	}
}

func (c *compiler) loadIPv6Port(field uint32) []bpf.Instruction {
	return []bpf.Instruction{bpf.LoadAbsolute{Off: c.offset() + 40 + field, Size: lengthHalf}}
}

// portRange matches a loaded port against lo..hi
func portRange(load []bpf.Instruction, lo, hi uint32) node {
	if lo == hi {
		return test{load: load, cond: bpf.JumpEqual, val: lo}
	}
	return allOf(
		test{load: load, cond: bpf.JumpGreaterOrEqual, val: lo},
		test{load: load, cond: bpf.JumpLessOrEqual, val: hi},
	)
}

// directional combines the source and destination checks of a primitive
func directional(direction filterDirection, src, dst node) node {
	switch direction {
	case filterDirectionSrc:
		return src
	case filterDirectionDst:
		return dst
	case filterDirectionSrcAndDst:
		return allOf(src, dst)
	}
	return anyOf(src, dst)
}

// ipv4Address compares a loaded IPv4 address with addr under mask
func ipv4Address(load bpf.Instruction, addr net.IP, mask net.IPMask) node {
	m := binary.BigEndian.Uint32(mask[len(mask)-4:])
	a := binary.BigEndian.Uint32(addr[len(addr)-4:])
	return maskedCompare(load, m, bpf.JumpEqual, a&m)
}

// ipv6Address compares the IPv6 address at start word by word, as far as the mask reaches
func ipv6Address(start uint32, addr net.IP, mask net.IPMask) node {
	var words []node
	for i := 0; i < 4; i++ {
		m := binary.BigEndian.Uint32(mask[i*4 : i*4+4])
		if m == 0 {
			break
		}
		a := binary.BigEndian.Uint32(addr[i*4 : i*4+4])
		words = append(words, maskedCompare(bpf.LoadAbsolute{Off: start + uint32(i*4), Size: lengthWord}, m, bpf.JumpEqual, a&m))
	}
	return allOf(words...)
}

// etherAddress compares the MAC address at off; the last 4 bytes and first 2 bytes are loaded separately
func etherAddress(off uint32, hwAddr net.HardwareAddr) node {
	lastFour := binary.BigEndian.Uint32(hwAddr[2:6])
	firstTwo := uint32(binary.BigEndian.Uint16(hwAddr[0:2]))
	return allOf(
		compare(bpf.LoadAbsolute{Off: off + 2, Size: lengthWord}, bpf.JumpEqual, lastFour),
		compare(bpf.LoadAbsolute{Off: off, Size: lengthHalf}, bpf.JumpEqual, firstTwo),
	)
}

// getNetAndMask get the address and the network with mask for an IP address.
// If it is *not* CIDR, will return full mask, i.e. 0xffffffff
func getNetAndMask(id string) (net.IP, net.IPMask, error) {
	if addr := net.ParseIP(id); addr != nil {
		if ip4 := addr.To4(); ip4 != nil {
			return ip4, ip4MaskFull, nil
		}
		return addr, ip6MaskFull, nil
	}
	addr, network, err := net.ParseCIDR(id)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid net: %s", id)
	}
	if !addr.Equal(network.IP) {
		return nil, nil, fmt.Errorf("non-network bits set in %q", id)
	}
	if ip4 := network.IP.To4(); ip4 != nil {
		return ip4, network.Mask, nil
	}
	return network.IP, network.Mask, nil
}
