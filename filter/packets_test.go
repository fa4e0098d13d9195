package filter

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"golang.org/x/net/bpf"
)

var (
	macA      = net.HardwareAddr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0x01}
	macB      = net.HardwareAddr{0xbe, 0xbe, 0xbe, 0xbe, 0xbe, 0x02}
	macBcast  = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	macMcast6 = net.HardwareAddr{0x33, 0x33, 0x00, 0x00, 0x00, 0x01}
)

// serialize builds a frame from layers, fixing lengths and checksums
func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("unable to serialize packet: %v", err)
	}
	return buf.Bytes()
}

func ipv4Layer(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func ipv6Layer(src, dst string, next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: next,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
}

// testPackets returns named Ethernet frames used across the compile tests:
//
//	tcp4  aa:..:01 > be:..:02 10.0.0.1:12345 > 10.0.0.2:80
//	udp4  aa:..:01 > be:..:02 10.0.0.3:5353 > 8.8.8.8:53
//	icmp4 be:..:02 > ff:..:ff 10.0.0.2 > 10.0.0.255 echo request
//	tcp6  be:..:02 > aa:..:01 [2001:db8::1]:443 > [2001:db8::2]:50000
//	udp6  aa:..:01 > 33:33:00:00:00:01 [fe80::1]:546 > [ff02::1]:547
//	arp   aa:..:01 > ff:..:ff who-has 10.0.0.9 tell 10.0.0.1
func testPackets(t *testing.T) map[string][]byte {
	t.Helper()
	packets := map[string][]byte{}

	ip := ipv4Layer("10.0.0.1", "10.0.0.2", layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 12345, DstPort: 80, SYN: true, Window: 1024}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	packets["tcp4"] = serialize(t,
		&layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4},
		ip, tcp, gopacket.Payload("GET / HTTP/1.1\r\n\r\n"))

	ip = ipv4Layer("10.0.0.3", "8.8.8.8", layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	_ = udp.SetNetworkLayerForChecksum(ip)
	packets["udp4"] = serialize(t,
		&layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4},
		ip, udp, gopacket.Payload("query"))

	packets["icmp4"] = serialize(t,
		&layers.Ethernet{SrcMAC: macB, DstMAC: macBcast, EthernetType: layers.EthernetTypeIPv4},
		ipv4Layer("10.0.0.2", "10.0.0.255", layers.IPProtocolICMPv4),
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1},
		gopacket.Payload("ping ping ping ping ping"))

	ip6 := ipv6Layer("2001:db8::1", "2001:db8::2", layers.IPProtocolTCP)
	tcp = &layers.TCP{SrcPort: 443, DstPort: 50000, ACK: true, Window: 1024}
	_ = tcp.SetNetworkLayerForChecksum(ip6)
	packets["tcp6"] = serialize(t,
		&layers.Ethernet{SrcMAC: macB, DstMAC: macA, EthernetType: layers.EthernetTypeIPv6},
		ip6, tcp, gopacket.Payload("tls"))

	ip6 = ipv6Layer("fe80::1", "ff02::1", layers.IPProtocolUDP)
	udp = &layers.UDP{SrcPort: 546, DstPort: 547}
	_ = udp.SetNetworkLayerForChecksum(ip6)
	packets["udp6"] = serialize(t,
		&layers.Ethernet{SrcMAC: macA, DstMAC: macMcast6, EthernetType: layers.EthernetTypeIPv6},
		ip6, udp, gopacket.Payload("dhcp"))

	packets["arp"] = serialize(t,
		&layers.Ethernet{SrcMAC: macA, DstMAC: macBcast, EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   macA,
			SourceProtAddress: net.ParseIP("10.0.0.1").To4(),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    net.ParseIP("10.0.0.9").To4(),
		})

	return packets
}

// matching runs the program over every packet and returns the names that matched
func matching(t *testing.T, inst []bpf.Instruction, packets map[string][]byte) map[string]bool {
	t.Helper()
	vm, err := bpf.NewVM(inst)
	if err != nil {
		t.Fatalf("invalid program: %v\n%v", err, inst)
	}
	matched := map[string]bool{}
	for name, data := range packets {
		n, err := vm.Run(data)
		if err != nil {
			t.Fatalf("%s: error running program: %v", name, err)
		}
		if n > 0 {
			matched[name] = true
		}
	}
	return matched
}
