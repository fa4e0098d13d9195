package filter

import (
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// dnsHandler answers one decoded query
type dnsHandler interface {
	serveDNS(*udpConnection, *layers.DNS)
}

// dnsServer answers A and AAAA queries from a fixed record table, so host
// name primitives resolve without network access
type dnsServer struct {
	port    int
	handler dnsHandler
}

func newDNSServer(port int, records map[string]map[string]string) *dnsServer {
	return &dnsServer{
		port: port,
		handler: &serveMux{
			records: records,
		},
	}
}

type serveMux struct {
	records map[string]map[string]string
}

func (srv *serveMux) serveDNS(u *udpConnection, request *layers.DNS) {
	if len(request.Questions) < 1 {
		return
	}

	var response string
	if recs, ok := srv.records[string(request.Questions[0].Name)]; ok {
		if data, ok := recs[request.Questions[0].Type.String()]; ok {
			response = data
		}
	}

	respond(u, request, request.Questions[0].Type, response)
}

// StartAndServe listens on loopback and returns the address queries go to
func (dns *dnsServer) StartAndServe() string {
	addr := net.UDPAddr{
		Port: dns.port,
		IP:   net.ParseIP("127.0.0.1"),
	}
	l, err := net.ListenUDP("udp", &addr)
	if err != nil {
		panic(err)
	}
	dnsServerAddr := l.LocalAddr().String()
	udpConnection := &udpConnection{conn: l}
	go dns.serve(udpConnection)
	return dnsServerAddr
}

func (dns *dnsServer) serve(u *udpConnection) {
	for {
		tmp := make([]byte, 1024)
		n, addr, err := u.conn.ReadFrom(tmp)
		if err != nil {
			return
		}
		u.addr = addr
		packet := gopacket.NewPacket(tmp[:n], layers.LayerTypeDNS, gopacket.Default)
		query, ok := packet.Layer(layers.LayerTypeDNS).(*layers.DNS)
		if !ok {
			continue
		}
		dns.handler.serveDNS(u, query)
	}
}

type udpConnection struct {
	conn net.PacketConn
	addr net.Addr
}

func (udp *udpConnection) Write(b []byte) error {
	_, _ = udp.conn.WriteTo(b, udp.addr)
	return nil
}

func respond(w *udpConnection, r *layers.DNS, answerType layers.DNSType, ip string) {
	replyMess := r
	var err error
	a := net.ParseIP(ip)
	if a != nil {
		dnsAnswer := layers.DNSResourceRecord{
			Type:  answerType,
			IP:    a,
			Name:  []byte(r.Questions[0].Name),
			Class: layers.DNSClassIN,
		}
		replyMess.Answers = append(replyMess.Answers, dnsAnswer)
	}
	replyMess.QR = true
	replyMess.ANCount = 1
	replyMess.OpCode = layers.DNSOpCodeNotify
	replyMess.AA = true
	replyMess.ResponseCode = layers.DNSResponseCodeNoErr
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{} // See SerializeOptions for more details.
	err = replyMess.SerializeTo(buf, opts)
	if err != nil {
		panic(err)
	}
	_ = w.Write(buf.Bytes())
}
