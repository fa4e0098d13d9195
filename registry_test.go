package iosource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource replays packets from memory
type memSource struct {
	path    string
	filter  string
	live    bool
	packets [][]byte
	closed  bool
	err     error
}

func (s *memSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if s.err != nil {
		return nil, gopacket.CaptureInfo{}, s.err
	}
	if len(s.packets) == 0 {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	data := s.packets[0]
	s.packets = s.packets[1:]
	return data, gopacket.CaptureInfo{
		Timestamp:     time.Unix(1, 0),
		CaptureLength: len(data),
		Length:        len(data),
	}, nil
}

func (s *memSource) Path() string { return s.path }
func (s *memSource) IsLive() bool { return s.live }
func (s *memSource) LinkType() uint32 { return 1 }
func (s *memSource) SnapLen() int { return 65535 }
func (s *memSource) Closed() bool { return s.closed }
func (s *memSource) PrecompileFilter(int, string) error { return nil }
func (s *memSource) SetFilter(int) error { return nil }
func (s *memSource) Close() error { s.closed = true; return nil }

// memDumper collects written packets
type memDumper struct {
	path      string
	appending bool
	packets   [][]byte
	err       error
}

func (d *memDumper) Path() string { return d.path }
func (d *memDumper) Open(uint32, int) error { return nil }
func (d *memDumper) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	if d.err != nil {
		return d.err
	}
	d.packets = append(d.packets, data)
	return nil
}
func (d *memDumper) Close() error { return nil }

func memComponents(t *testing.T, name, prefixes string, typ InputType) (*SourceComponent, *DumperComponent) {
	t.Helper()
	sc, err := NewSourceComponent(name, prefixes, typ, SourceFactoryFunc(func(path, filter string, live bool) (PktSrc, error) {
		return &memSource{path: name + ":" + path, filter: filter, live: live}, nil
	}))
	require.NoError(t, err)
	dc, err := NewDumperComponent(name, prefixes, DumperFactoryFunc(func(path string, appending bool) (PktDumper, error) {
		return &memDumper{path: name + ":" + path, appending: appending}, nil
	}))
	require.NoError(t, err)
	return sc, dc
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	sc, dc := memComponents(t, "mem", "mem", Both)
	require.NoError(t, r.Register(sc))
	require.NoError(t, r.Register(dc))

	again, _ := memComponents(t, "mem", "other", Live)
	assert.ErrorIs(t, r.Register(again), ErrDuplicateComponent)
	assert.Error(t, r.Register(nil))

	all := r.ListAll()
	require.Len(t, all, 2)
	assert.Same(t, sc, all[0])
	assert.Same(t, dc, all[1])
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	first, _ := memComponents(t, "first", "eth,wifi", Live)
	second, _ := memComponents(t, "second", "wifi,file", Trace)
	_, dumper := memComponents(t, "out", "file", Both)
	for _, c := range []Component{first, second, dumper} {
		require.NoError(t, r.Register(c))
	}

	c, ok := r.Lookup("wifi")
	require.True(t, ok)
	assert.Same(t, first, c, "first registered wins")

	c, ok = r.Lookup("file")
	require.True(t, ok)
	assert.Same(t, second, c)

	_, ok = r.Lookup("Eth")
	assert.False(t, ok)

	sc, ok := r.LookupSource("wifi", false)
	require.True(t, ok)
	assert.Same(t, second, sc, "mode filters candidates")

	_, ok = r.LookupSource("eth", false)
	assert.False(t, ok)

	dc, ok := r.LookupDumper("file")
	require.True(t, ok)
	assert.Same(t, dumper, dc)
	_, ok = r.LookupDumper("wifi")
	assert.False(t, ok)
}

func TestRegistryDescribe(t *testing.T) {
	r := NewRegistry()
	sc, dc := memComponents(t, "pcap-file", "file,trace", Trace)
	require.NoError(t, r.Register(sc))
	require.NoError(t, r.Register(dc))

	var buf bytes.Buffer
	r.Describe(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "pcap-file (file,trace), trace"), lines[0])
	assert.True(t, strings.HasPrefix(lines[0], "source"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "pcap-file (file,trace)"), lines[1])
	assert.True(t, strings.HasPrefix(lines[1], "dumper"), lines[1])
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in, prefix, path string
	}{
		{"pcap:/tmp/a.pcap", "pcap", "/tmp/a.pcap"},
		{"mem:x:y", "mem", "x:y"},
		{"/tmp/a.pcap", DefaultPrefix, "/tmp/a.pcap"},
		{"eth0", DefaultPrefix, "eth0"},
		{":odd", DefaultPrefix, ":odd"},
	}
	for _, tt := range tests {
		prefix, path := SplitPath(tt.in)
		assert.Equal(t, tt.prefix, prefix, tt.in)
		assert.Equal(t, tt.path, path, tt.in)
	}
}

func TestRegistryOpen(t *testing.T) {
	r := NewRegistry()
	sc, dc := memComponents(t, "mem", "mem", Trace)
	require.NoError(t, r.Register(sc))
	require.NoError(t, r.Register(dc))

	src, err := r.OpenSource("mem:trace1", "udp", false)
	require.NoError(t, err)
	assert.Equal(t, "mem:trace1", src.Path())
	assert.Equal(t, "udp", src.(*memSource).filter)

	_, err = r.OpenSource("mem:eth0", "", true)
	assert.ErrorIs(t, err, ErrNoComponent)

	_, err = r.OpenSource("/tmp/x.pcap", "", false)
	assert.ErrorIs(t, err, ErrNoComponent)

	d, err := r.OpenDumper("mem:out", true)
	require.NoError(t, err)
	assert.True(t, d.(*memDumper).appending)

	_, err = r.OpenDumper("nope:out", false)
	assert.ErrorIs(t, err, ErrNoComponent)

	failing, err := NewDumperComponent("broken", "broken", DumperFactoryFunc(func(string, bool) (PktDumper, error) {
		return nil, errors.New("disk full")
	}))
	require.NoError(t, err)
	require.NoError(t, r.Register(failing))
	_, err = r.OpenDumper("broken:x", false)
	assert.ErrorContains(t, err, "disk full")
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			sc, _ := memComponents(t, fmt.Sprintf("c%d", i), fmt.Sprintf("p%d", i), Both)
			assert.NoError(t, r.Register(sc))
		}(i)
		go func(i int) {
			defer wg.Done()
			r.Lookup(fmt.Sprintf("p%d", i))
			r.Describe(io.Discard)
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.ListAll(), 20)
}

func TestPump(t *testing.T) {
	src := &memSource{path: "in", packets: [][]byte{{1, 2, 3}, {4, 5}, {6}}}
	dst := &memDumper{path: "out"}
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	n, err := Pump(context.Background(), src, dst, 0, m)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][]byte{{1, 2, 3}, {4, 5}, {6}}, dst.packets)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PacketsReceived.WithLabelValues("in")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PacketsWritten.WithLabelValues("out")))
	assert.Equal(t, float64(6), testutil.ToFloat64(m.BytesWritten.WithLabelValues("out")))
}

func TestPumpLimit(t *testing.T) {
	src := &memSource{path: "in", packets: [][]byte{{1}, {2}, {3}}}
	dst := &memDumper{path: "out"}
	n, err := Pump(context.Background(), src, dst, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, src.packets, 1)
}

func TestPumpCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &memSource{path: "in", packets: [][]byte{{1}}}
	n, err := Pump(ctx, src, &memDumper{path: "out"}, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPumpErrors(t *testing.T) {
	m := NewMetrics()
	src := &memSource{path: "in", err: errors.New("device gone")}
	_, err := Pump(context.Background(), src, &memDumper{path: "out"}, 0, m)
	assert.ErrorContains(t, err, "device gone")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Errors.WithLabelValues("in", "read")))

	src = &memSource{path: "in", packets: [][]byte{{1}}}
	_, err = Pump(context.Background(), src, &memDumper{path: "out", err: errors.New("disk full")}, 0, m)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Errors.WithLabelValues("out", "write")))
}
