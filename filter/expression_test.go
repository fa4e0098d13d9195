package filter

import (
	"testing"
)

func TestExpressionEmpty(t *testing.T) {
	for _, s := range []string{"", "   ", "\t\n"} {
		if e := NewExpression(s); e != nil {
			t.Errorf("expected nil for blank expression %q", s)
		}
	}
}

func TestExpressionHasNext(t *testing.T) {
	// single element
	e := NewExpression("a")
	if !e.HasNext() {
		t.Fatal("with one element remaining, should have HasNext()==true")
	}
	if _, err := e.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.HasNext() {
		t.Fatal("with zero element remaining, should have HasNext()==false")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in  string
		out []string
	}{
		{"tcp", []string{"tcp"}},
		{"tcp  and\tudp", []string{"tcp", "and", "udp"}},
		{"(tcp or udp)", []string{"(", "tcp", "or", "udp", ")"}},
		{"!tcp", []string{"!", "tcp"}},
		{"tcp&&udp", []string{"tcp", "&&", "udp"}},
		{"tcp || udp", []string{"tcp", "||", "udp"}},
		{"ether proto \\arp", []string{"ether", "proto", "\\arp"}},
	}
	for _, tt := range tests {
		got := tokenize(tt.in)
		if len(got) != len(tt.out) {
			t.Errorf("%q: mismatched tokens\nactual   %q\nexpected %q", tt.in, got, tt.out)
			continue
		}
		for i := range got {
			if got[i] != tt.out[i] {
				t.Errorf("%q: mismatched token %d\nactual   %q\nexpected %q", tt.in, i, got, tt.out)
				break
			}
		}
	}
}

// TestExpressionNextPrimitive tests Expression.Next(), including the
// defaults it applies
func TestExpressionNextPrimitive(t *testing.T) {
	tests := []struct {
		expression string
		prim       primitive
	}{
		{"abc", primitive{
			kind:      filterKindHost,
			direction: filterDirectionSrcOrDst,
			id:        "abc",
		}},
		{"host", primitive{
			kind:      filterKindHost,
			direction: filterDirectionSrcOrDst,
		}},
		{"host abc", primitive{
			kind:      filterKindHost,
			direction: filterDirectionSrcOrDst,
			id:        "abc",
		}},
		{"src host abc", primitive{
			kind:      filterKindHost,
			direction: filterDirectionSrc,
			id:        "abc",
		}},
		{"dst host abc", primitive{
			kind:      filterKindHost,
			direction: filterDirectionDst,
			id:        "abc",
		}},
		{"src or dst host abc", primitive{
			kind:      filterKindHost,
			direction: filterDirectionSrcOrDst,
			id:        "abc",
		}},
		{"src and dst host abc", primitive{
			kind:      filterKindHost,
			direction: filterDirectionSrcAndDst,
			id:        "abc",
		}},
		{"port 22", primitive{
			kind:      filterKindPort,
			direction: filterDirectionSrcOrDst,
			id:        "22",
		}},
		{"src port 22", primitive{
			kind:      filterKindPort,
			direction: filterDirectionSrc,
			id:        "22",
		}},
		{"tcp dst portrange 6000-6010", primitive{
			kind:        filterKindPortRange,
			direction:   filterDirectionDst,
			subProtocol: filterSubProtocolTCP,
			id:          "6000-6010",
		}},
		{"net 192.168.0.0/24", primitive{
			kind:      filterKindNet,
			direction: filterDirectionSrcOrDst,
			id:        "192.168.0.0/24",
		}},
		{"ip proto tcp", primitive{
			kind:      filterKindProto,
			direction: filterDirectionSrcOrDst,
			protocol:  filterProtocolIP,
			id:        "tcp",
		}},
		{"ether proto \\arp", primitive{
			kind:      filterKindProto,
			direction: filterDirectionSrcOrDst,
			protocol:  filterProtocolEther,
			id:        "arp",
		}},
		{"ip6", primitive{
			direction: filterDirectionSrcOrDst,
			protocol:  filterProtocolIP6,
		}},
		{"udp", primitive{
			direction:   filterDirectionSrcOrDst,
			subProtocol: filterSubProtocolUDP,
		}},
		{"ip broadcast", primitive{
			kind:      filterKindBroadcast,
			direction: filterDirectionSrcOrDst,
			protocol:  filterProtocolIP,
		}},
		{"less 100", primitive{
			kind:      filterKindLess,
			direction: filterDirectionSrcOrDst,
			id:        "100",
		}},
	}
	for _, tt := range tests {
		e := NewExpression(tt.expression)
		val, err := e.Next()
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.expression, err)
			continue
		}
		if !val.Equal(tt.prim) {
			t.Errorf("%s: mismatched value\nactual   %#v\nexpected %#v", tt.expression, *val, tt.prim)
		}
	}
}

func TestExpressionInheritsQualifiers(t *testing.T) {
	e := NewExpression("tcp dst port ftp or ftp-data or domain")
	f, err := e.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "((tcp dst port ftp or tcp dst port ftp-data) or tcp dst port domain)"
	if f.String() != expected {
		t.Errorf("mismatched tree\nactual   %s\nexpected %s", f, expected)
	}
}

func TestExpressionPrecedence(t *testing.T) {
	tests := []struct {
		expression string
		tree       string
	}{
		{"tcp or udp and icmp", "(tcp or (udp and icmp))"},
		{"(tcp or udp) and icmp", "((tcp or udp) and icmp)"},
		{"not tcp and udp", "(not tcp and udp)"},
		{"! (tcp || udp)", "not (tcp or udp)"},
		{"not not arp", "not not arp"},
	}
	for _, tt := range tests {
		f, err := Parse(tt.expression)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.expression, err)
			continue
		}
		if f.String() != tt.tree {
			t.Errorf("%s: mismatched tree\nactual   %s\nexpected %s", tt.expression, f, tt.tree)
		}
	}
}

func TestExpressionSyntaxErrors(t *testing.T) {
	tests := []string{
		"and",
		"tcp and",
		"tcp or or udp",
		"(tcp",
		"tcp)",
		"()",
		"not",
		"host 1.2.3.4 5.6.7.8",
		"host port",
		"tcp not udp",
		"tcp & udp",
	}
	for _, expression := range tests {
		if _, err := Parse(expression); err == nil {
			t.Errorf("%q: expected syntax error", expression)
		}
	}
}
