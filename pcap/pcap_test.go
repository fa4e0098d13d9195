package pcap

import (
	"io"
	"net"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	tstMsg = "The quick brown fox jumps over the lazy dog!"
)

func enableLogs() {

	log.SetReportCaller(true)
	log.SetLevel(log.TraceLevel)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
		PadLevelText:     true,
		QuoteEmptyFields: true,
		ForceColors:      true, // If you run an IDE in no pty mode then you probably want to also force color mode
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1] + "()"
			_, filename := path.Split(f.File)
			return funcName, filename + ":" + strconv.Itoa(f.Line)
		},
	})
}

// packet builds an ethernet frame carrying IPv4 and either UDP or TCP
func packet(t *testing.T, udp bool, dstPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xaa, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0xbe, 0xbe, 0xbe, 0xbe, 0xbe, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		TTL:     64,
		SrcIP:   net.IPv4(10, 0, 0, 1),
		DstIP:   net.IPv4(10, 0, 0, 2),
	}
	var l4 gopacket.SerializableLayer
	if udp {
		ip.Protocol = layers.IPProtocolUDP
		u := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
		require.NoError(t, u.SetNetworkLayerForChecksum(ip))
		l4 = u
	} else {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{SrcPort: 40000, DstPort: layers.TCPPort(dstPort), SYN: true, Window: 1024}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
		l4 = tcp
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, l4, gopacket.Payload([]byte(tstMsg))))
	return buf.Bytes()
}

// mixedTrace is udp/53, tcp/80, udp/123, tcp/443
func mixedTrace(t *testing.T) [][]byte {
	return [][]byte{
		packet(t, true, 53),
		packet(t, false, 80),
		packet(t, true, 123),
		packet(t, false, 443),
	}
}

// writeTrace writes packets to a new pcap file under a temp dir
func writeTrace(t *testing.T, packets [][]byte) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "trace.pcap")
	d := NewDumper(file, false)
	require.NoError(t, d.Open(LinkTypeEthernet, 65535))
	for i, p := range packets {
		require.NoError(t, d.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)*1000),
			CaptureLength: len(p),
			Length:        len(p),
		}, p))
	}
	require.NoError(t, d.Close())
	return file
}

// readAll drains src
func readAll(t *testing.T, src gopacket.PacketDataSource) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		data, _, err := src.ReadPacketData()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return out
		}
		out = append(out, data)
	}
}
