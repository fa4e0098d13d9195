package filter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"
)

// resolver looks up host names used in host primitives
var resolver net.Resolver

// primitive is a single qualified id, e.g. "tcp dst port 80"
type primitive struct {
	kind        filterKind
	direction   filterDirection
	protocol    filterProtocol
	subProtocol filterSubProtocol
	id          string
}

func (p *primitive) lower(c *compiler) (node, error) {
	switch p.kind {
	case filterKindUnset:
		return p.lowerProtocol(c)
	case filterKindHost:
		return p.lowerHost(c)
	case filterKindNet:
		return p.lowerNet(c)
	case filterKindPort, filterKindPortRange:
		return p.lowerPort(c)
	case filterKindProto:
		return p.lowerProto(c)
	case filterKindBroadcast:
		return p.lowerBroadcast(c)
	case filterKindMulticast:
		return p.lowerMulticast(c)
	case filterKindLess, filterKindGreater:
		return p.lowerLength()
	}
	return nil, fmt.Errorf("parse error: %s", p)
}

// lowerProtocol handles a primitive made of protocol qualifiers only, e.g. "ip6" or "tcp"
func (p *primitive) lowerProtocol(c *compiler) (node, error) {
	if p.subProtocol != filterSubProtocolUnset {
		return c.ipProtocol(p.protocol, p.subProtocol, ipProtocolNumbers[p.subProtocol])
	}
	switch p.protocol {
	case filterProtocolIP:
		return c.ipv4()
	case filterProtocolIP6:
		return c.ipv6()
	case filterProtocolArp:
		return c.etherType(etherTypeArp)
	case filterProtocolRarp:
		return c.etherType(etherTypeRarp)
	}
	return nil, fmt.Errorf("parse error: %q is not a complete primitive", p.String())
}

// ipProtocol matches an IP protocol number over IPv4, IPv6 or both
func (c *compiler) ipProtocol(protocol filterProtocol, sub filterSubProtocol, num uint32) (node, error) {
	v4, v6 := true, true
	switch protocol {
	case filterProtocolIP:
		v6 = false
	case filterProtocolIP6:
		v4 = false
	case filterProtocolUnset:
	default:
		return nil, fmt.Errorf("'%s' modifier applied to ip protocol", protocolName(protocol))
	}
	switch sub {
	case filterSubProtocolICMP, filterSubProtocolIGMP:
		v6 = false
	case filterSubProtocolICMP6:
		v4 = false
	}
	if !v4 && !v6 {
		return nil, fmt.Errorf("'%s' modifier applied to '%s'", protocolName(protocol), subProtocolName(sub))
	}
	var alts []node
	if v4 {
		l3, err := c.ipv4()
		if err != nil {
			return nil, err
		}
		alts = append(alts, allOf(l3, c.ipv4Protocol(num)))
	}
	if v6 {
		l3, err := c.ipv6()
		if err != nil {
			return nil, err
		}
		alts = append(alts, allOf(l3, c.ipv6Protocol(num)))
	}
	return anyOf(alts...), nil
}

func (p *primitive) lowerHost(c *compiler) (node, error) {
	if p.id == "" {
		return nil, errors.New("blank host")
	}
	if p.subProtocol != filterSubProtocolUnset {
		return nil, fmt.Errorf("'%s' modifier applied to host", subProtocolName(p.subProtocol))
	}
	if p.protocol == filterProtocolEther {
		if c.linkType != LinkTypeEthernet {
			return nil, fmt.Errorf("ether host not supported on link type %d", c.linkType)
		}
		hwAddr, err := net.ParseMAC(p.id)
		if err != nil || len(hwAddr) != 6 {
			return nil, fmt.Errorf("invalid ethernet address: %s", p.id)
		}
		return directional(p.direction, etherAddress(6, hwAddr), etherAddress(0, hwAddr)), nil
	}

	addrs, err := lookupHost(p.id)
	if err != nil {
		return nil, err
	}
	var (
		alts    []node
		lastErr error
	)
	for _, addr := range addrs {
		var n node
		if ip4 := addr.To4(); ip4 != nil {
			n, err = c.ip4Host(p.protocol, p.direction, ip4, ip4MaskFull)
		} else {
			n, err = c.ip6Host(p.protocol, p.direction, addr, ip6MaskFull)
		}
		// a name may resolve to both families, keep whatever the qualifiers allow
		if err != nil {
			lastErr = err
			continue
		}
		alts = append(alts, n)
	}
	if len(alts) == 0 {
		return nil, lastErr
	}
	return anyOf(alts...), nil
}

func (p *primitive) lowerNet(c *compiler) (node, error) {
	if p.subProtocol != filterSubProtocolUnset {
		return nil, fmt.Errorf("'%s' modifier applied to net", subProtocolName(p.subProtocol))
	}
	addr, mask, err := getNetAndMask(p.id)
	if err != nil {
		return nil, err
	}
	if addr.To4() != nil && len(addr) == net.IPv4len {
		return c.ip4Host(p.protocol, p.direction, addr, mask)
	}
	return c.ip6Host(p.protocol, p.direction, addr, mask)
}

// ip4Host matches an IPv4 address or network in IP packets and, on Ethernet,
// in ARP and RARP packets
func (c *compiler) ip4Host(protocol filterProtocol, direction filterDirection, addr net.IP, mask net.IPMask) (node, error) {
	ip := func() (node, error) {
		l3, err := c.ipv4()
		if err != nil {
			return nil, err
		}
		return allOf(l3, directional(direction,
			ipv4Address(c.loadIPv4SourceAddress(), addr, mask),
			ipv4Address(c.loadIPv4DestinationAddress(), addr, mask))), nil
	}
	arp := func(typ uint32) (node, error) {
		l2, err := c.etherType(typ)
		if err != nil {
			return nil, err
		}
		return allOf(l2, directional(direction,
			ipv4Address(c.loadArpSenderAddress(), addr, mask),
			ipv4Address(c.loadArpTargetAddress(), addr, mask))), nil
	}

	switch protocol {
	case filterProtocolIP:
		return ip()
	case filterProtocolArp:
		return arp(etherTypeArp)
	case filterProtocolRarp:
		return arp(etherTypeRarp)
	case filterProtocolUnset:
		n, err := ip()
		if err != nil {
			return nil, err
		}
		if c.linkType != LinkTypeEthernet {
			return n, nil
		}
		a, err := arp(etherTypeArp)
		if err != nil {
			return nil, err
		}
		r, err := arp(etherTypeRarp)
		if err != nil {
			return nil, err
		}
		return anyOf(n, a, r), nil
	}
	return nil, fmt.Errorf("'%s' modifier applied to IPv4 address %s", protocolName(protocol), addr)
}

func (c *compiler) ip6Host(protocol filterProtocol, direction filterDirection, addr net.IP, mask net.IPMask) (node, error) {
	if protocol != filterProtocolUnset && protocol != filterProtocolIP6 {
		return nil, fmt.Errorf("'%s' modifier applied to IPv6 address %s", protocolName(protocol), addr)
	}
	l3, err := c.ipv6()
	if err != nil {
		return nil, err
	}
	return allOf(l3, directional(direction,
		ipv6Address(c.ip6SourceAddressStart(), addr, mask),
		ipv6Address(c.ip6DestinationAddressStart(), addr, mask))), nil
}

func (p *primitive) lowerPort(c *compiler) (node, error) {
	var transports []filterSubProtocol
	switch p.subProtocol {
	case filterSubProtocolUnset:
		transports = []filterSubProtocol{filterSubProtocolTCP, filterSubProtocolUDP, filterSubProtocolSctp}
	case filterSubProtocolTCP, filterSubProtocolUDP, filterSubProtocolSctp:
		transports = []filterSubProtocol{p.subProtocol}
	default:
		return nil, fmt.Errorf("'%s' modifier applied to port", subProtocolName(p.subProtocol))
	}
	v4, v6 := true, true
	switch p.protocol {
	case filterProtocolIP:
		v6 = false
	case filterProtocolIP6:
		v4 = false
	case filterProtocolUnset:
	default:
		return nil, fmt.Errorf("'%s' modifier applied to port", protocolName(p.protocol))
	}
	lo, hi, err := parsePorts(p.id, p.kind == filterKindPortRange, transports[0])
	if err != nil {
		return nil, err
	}

	var alts []node
	for _, transport := range transports {
		num := ipProtocolNumbers[transport]
		if v4 {
			l3, err := c.ipv4()
			if err != nil {
				return nil, err
			}
			alts = append(alts, allOf(l3, c.ipv4Protocol(num), c.ipv4NotFragment(), directional(p.direction,
				portRange(c.loadIPv4Port(0), lo, hi),
				portRange(c.loadIPv4Port(2), lo, hi))))
		}
		if v6 {
			l3, err := c.ipv6()
			if err != nil {
				return nil, err
			}
			alts = append(alts, allOf(l3, compare(bpf.LoadAbsolute{Off: c.offset() + 6, Size: lengthByte}, bpf.JumpEqual, num), directional(p.direction,
				portRange(c.loadIPv6Port(0), lo, hi),
				portRange(c.loadIPv6Port(2), lo, hi))))
		}
	}
	return anyOf(alts...), nil
}

func (p *primitive) lowerProto(c *compiler) (node, error) {
	if p.id == "" {
		return nil, errors.New("blank protocol")
	}
	if p.protocol == filterProtocolEther {
		typ, ok := etherTypeNames[p.id]
		if !ok {
			v, err := strconv.ParseUint(p.id, 0, 16)
			if err != nil {
				return nil, fmt.Errorf("unknown ether proto '%s'", p.id)
			}
			typ = uint32(v)
		}
		return c.etherType(typ)
	}
	sub := subProtocols[p.id]
	num, ok := ipProtocolNumbers[sub]
	if !ok {
		v, err := strconv.ParseUint(p.id, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("unknown ip proto '%s'", p.id)
		}
		num = uint32(v)
	}
	return c.ipProtocol(p.protocol, sub, num)
}

func (p *primitive) lowerBroadcast(c *compiler) (node, error) {
	switch p.protocol {
	case filterProtocolUnset, filterProtocolEther:
		if c.linkType != LinkTypeEthernet {
			return nil, fmt.Errorf("broadcast not supported on link type %d", c.linkType)
		}
		return etherAddress(0, net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}), nil
	case filterProtocolIP:
		if c.netmask == 0 {
			return nil, errors.New("netmask not known, so 'ip broadcast' not supported")
		}
		l3, err := c.ipv4()
		if err != nil {
			return nil, err
		}
		// host part all zeroes or all ones
		hostmask := ^c.netmask
		dst := c.loadIPv4DestinationAddress()
		return allOf(l3, anyOf(
			maskedCompare(dst, hostmask, bpf.JumpEqual, 0),
			maskedCompare(dst, hostmask, bpf.JumpEqual, hostmask),
		)), nil
	}
	return nil, fmt.Errorf("only link-layer/IP broadcast filters supported, not '%s'", protocolName(p.protocol))
}

func (p *primitive) lowerMulticast(c *compiler) (node, error) {
	switch p.protocol {
	case filterProtocolUnset, filterProtocolEther:
		if c.linkType != LinkTypeEthernet {
			return nil, fmt.Errorf("multicast not supported on link type %d", c.linkType)
		}
		return compare(bpf.LoadAbsolute{Off: 0, Size: lengthByte}, bpf.JumpBitsSet, 0x01), nil
	case filterProtocolIP:
		l3, err := c.ipv4()
		if err != nil {
			return nil, err
		}
		return allOf(l3, compare(bpf.LoadAbsolute{Off: c.offset() + 16, Size: lengthByte}, bpf.JumpGreaterOrEqual, 224)), nil
	case filterProtocolIP6:
		l3, err := c.ipv6()
		if err != nil {
			return nil, err
		}
		return allOf(l3, compare(bpf.LoadAbsolute{Off: c.offset() + 24, Size: lengthByte}, bpf.JumpEqual, 0xff)), nil
	}
	return nil, fmt.Errorf("only link-layer/IP multicast filters supported, not '%s'", protocolName(p.protocol))
}

func (p *primitive) lowerLength() (node, error) {
	n, err := strconv.ParseUint(p.id, 0, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid length: '%s'", p.id)
	}
	cond := bpf.JumpLessOrEqual
	if p.kind == filterKindGreater {
		cond = bpf.JumpGreaterOrEqual
	}
	return compare(bpf.LoadExtension{Num: bpf.ExtLen}, cond, uint32(n)), nil
}

// lookupHost returns the addresses of an IP literal or host name
func lookupHost(id string) ([]net.IP, error) {
	if addr := net.ParseIP(id); addr != nil {
		return []net.IP{addr}, nil
	}
	addrs, err := resolver.LookupIPAddr(context.Background(), id)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("unknown host: %s", id)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// parsePorts parses "80", "http" or, for portrange, "6000-6010"
func parsePorts(id string, isRange bool, transport filterSubProtocol) (uint32, uint32, error) {
	if id == "" {
		return 0, 0, errors.New("blank port")
	}
	if !isRange {
		port, err := parsePort(id, transport)
		return port, port, err
	}
	from, to, ok := strings.Cut(id, "-")
	if !ok || from == "" || to == "" {
		return 0, 0, fmt.Errorf("invalid port range: %s", id)
	}
	lo, err := parsePort(from, transport)
	if err != nil {
		return 0, 0, err
	}
	hi, err := parsePort(to, transport)
	if err != nil {
		return 0, 0, err
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

func parsePort(s string, transport filterSubProtocol) (uint32, error) {
	if s == "" {
		return 0, errors.New("blank port")
	}
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return uint32(n), nil
	}
	network := "tcp"
	if transport == filterSubProtocolUDP {
		network = "udp"
	}
	port, err := net.LookupPort(network, s)
	if err != nil {
		return 0, fmt.Errorf("unknown port: %s", s)
	}
	return uint32(port), nil
}

func (p *primitive) String() string {
	var words []string
	if p.protocol != filterProtocolUnset {
		words = append(words, protocolName(p.protocol))
	}
	if p.subProtocol != filterSubProtocolUnset {
		words = append(words, subProtocolName(p.subProtocol))
	}
	if p.direction != filterDirectionUnset && p.direction != filterDirectionSrcOrDst {
		words = append(words, nameOf(directions, p.direction))
	}
	if p.kind != filterKindUnset {
		words = append(words, nameOf(kinds, p.kind))
	}
	if p.id != "" {
		words = append(words, p.id)
	}
	return strings.Join(words, " ")
}

// Equal reports whether both primitives carry the same qualifiers and id
func (p primitive) Equal(o primitive) bool {
	return p == o
}

func protocolName(p filterProtocol) string {
	return nameOf(protocols, p)
}

func subProtocolName(s filterSubProtocol) string {
	return nameOf(subProtocols, s)
}

func nameOf[T comparable](m map[string]T, v T) string {
	for k, val := range m {
		if val == v {
			return k
		}
	}
	return ""
}
