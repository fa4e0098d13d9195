package main

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/packetcap/iosource/filter"
	"github.com/packetcap/iosource/pcap"
)

// flag names double as config keys; IOSOURCE_METRICS_ADDR sets metrics-addr
var envKeyReplacer = strings.NewReplacer("-", "_")

// parseNetmask accepts a dotted quad or a number, "" means unknown
func parseNetmask(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	if ip := net.ParseIP(s); ip != nil {
		v4 := ip.To4()
		if v4 == nil {
			return 0, fmt.Errorf("netmask %s is not IPv4", s)
		}
		return binary.BigEndian.Uint32(v4), nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid netmask %q", s)
	}
	return uint32(n), nil
}

var linkTypeNames = map[string]uint32{
	"null":     filter.LinkTypeNull,
	"ethernet": filter.LinkTypeEthernet,
	"en10mb":   filter.LinkTypeEthernet,
	"raw":      filter.LinkTypeRaw,
}

// parseLinkType accepts a DLT name or number
func parseLinkType(s string) (uint32, error) {
	if lt, ok := linkTypeNames[strings.ToLower(s)]; ok {
		return lt, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown link type %q", s)
	}
	return uint32(n), nil
}

// pcapOptions turns the capture settings into options for the pcap components
func pcapOptions() ([]pcap.Option, error) {
	netmask, err := parseNetmask(viper.GetString("netmask"))
	if err != nil {
		return nil, err
	}
	return []pcap.Option{
		pcap.WithSnapLen(viper.GetInt32("snaplen")),
		pcap.WithPromiscuous(viper.GetBool("promiscuous")),
		pcap.WithTimeout(viper.GetDuration("timeout")),
		pcap.WithNetmask(netmask),
		pcap.WithOptimize(viper.GetBool("optimize")),
	}, nil
}
