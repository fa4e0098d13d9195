package pcap

import "github.com/packetcap/iosource/filter"

// constants, see compliant with pcap-linktype(7) and http://www.tcpdump.org/linktypes.html.
const (
	LinkTypeNull     = filter.LinkTypeNull
	LinkTypeEthernet = filter.LinkTypeEthernet
	LinkTypeRaw      = filter.LinkTypeRaw

	// DefaultSnapLen is used when no snapshot length is configured
	DefaultSnapLen = 262144
)
