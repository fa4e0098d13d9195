package filter

// Link types, compliant with pcap-linktype(7) and http://www.tcpdump.org/linktypes.html.
const (
	LinkTypeNull     uint32 = 0x0  // BSD loopback, 4 byte protocol family header
	LinkTypeEthernet uint32 = 0x01 // Ethernet II
	LinkTypeRaw      uint32 = 0x65 // raw IPv4/IPv6, no link header
)

const (
	lengthByte  int = 1
	lengthHalf  int = 2
	lengthWord  int = 4

	etherTypeIPv4 uint32 = 0x0800
	etherTypeIPv6 uint32 = 0x86dd
	etherTypeArp  uint32 = 0x806
	etherTypeRarp uint32 = 0x8035

	// protocol family values found in a LinkTypeNull header
	afInet uint32 = 2
	// BSD variants disagree on AF_INET6; a capture may carry any of these
	afInet6NetBSD  uint32 = 24
	afInet6FreeBSD uint32 = 28
	afInet6Darwin  uint32 = 30

	fragmentMask uint32 = 0x1fff

	ipProtocolICMP   uint32 = 0x01
	ipProtocolIGMP   uint32 = 0x02
	ipProtocolTCP    uint32 = 0x06
	ipProtocolUDP    uint32 = 0x11
	ipProtocolICMPv6 uint32 = 0x3a
	ipProtocolSctp   uint32 = 0x84

	ip6FragmentHeader uint32 = 0x2c

	// maximum branch a conditional jump can encode
	maxSkip = 0xff
)

type filterKind int

const (
	filterKindUnset filterKind = iota
	filterKindHost
	filterKindNet
	filterKindPort
	filterKindPortRange
	filterKindProto
	filterKindBroadcast
	filterKindMulticast
	filterKindLess
	filterKindGreater
)

var kinds = map[string]filterKind{
	"host":      filterKindHost,
	"net":       filterKindNet,
	"port":      filterKindPort,
	"portrange": filterKindPortRange,
	"proto":     filterKindProto,
	"broadcast": filterKindBroadcast,
	"multicast": filterKindMulticast,
	"less":      filterKindLess,
	"greater":   filterKindGreater,
}

type filterDirection int

const (
	filterDirectionUnset filterDirection = iota
	filterDirectionSrcAndDst
	filterDirectionSrcOrDst
	filterDirectionSrc
	filterDirectionDst
)

var directions = map[string]filterDirection{
	"src":         filterDirectionSrc,
	"dst":         filterDirectionDst,
	"src and dst": filterDirectionSrcAndDst,
	"src or dst":  filterDirectionSrcOrDst,
}

type filterProtocol int

const (
	filterProtocolUnset filterProtocol = iota
	filterProtocolEther
	filterProtocolIP
	filterProtocolIP6
	filterProtocolArp
	filterProtocolRarp
)

var protocols = map[string]filterProtocol{
	"ether": filterProtocolEther,
	"ip":    filterProtocolIP,
	"ip6":   filterProtocolIP6,
	"arp":   filterProtocolArp,
	"rarp":  filterProtocolRarp,
}

type filterSubProtocol int

const (
	filterSubProtocolUnset filterSubProtocol = iota
	filterSubProtocolICMP
	filterSubProtocolICMP6
	filterSubProtocolIGMP
	filterSubProtocolTCP
	filterSubProtocolUDP
	filterSubProtocolSctp
)

var subProtocols = map[string]filterSubProtocol{
	"icmp":  filterSubProtocolICMP,
	"icmp6": filterSubProtocolICMP6,
	"igmp":  filterSubProtocolIGMP,
	"tcp":   filterSubProtocolTCP,
	"udp":   filterSubProtocolUDP,
	"sctp":  filterSubProtocolSctp,
}

// ipProtocolNumbers maps sub-protocols to their IP protocol number.
var ipProtocolNumbers = map[filterSubProtocol]uint32{
	filterSubProtocolICMP:  ipProtocolICMP,
	filterSubProtocolICMP6: ipProtocolICMPv6,
	filterSubProtocolIGMP:  ipProtocolIGMP,
	filterSubProtocolTCP:   ipProtocolTCP,
	filterSubProtocolUDP:   ipProtocolUDP,
	filterSubProtocolSctp:  ipProtocolSctp,
}

// etherTypeNames are accepted after "ether proto".
var etherTypeNames = map[string]uint32{
	"ip":   etherTypeIPv4,
	"ip6":  etherTypeIPv6,
	"arp":  etherTypeArp,
	"rarp": etherTypeRarp,
}
