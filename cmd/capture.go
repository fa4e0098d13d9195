package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/packetcap/iosource"
	"github.com/packetcap/iosource/pcap"
)

func captureFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("interface", "i", "", "interface from which to capture, default to all")
	flags.StringP("read", "r", "", "read packets from a trace file instead of an interface")
	flags.StringP("write", "w", "", "write packets to a pcap file instead of printing them")
	flags.Bool("append", false, "append to the file given with -w instead of truncating it")
	flags.IntP("count", "c", 0, "stop after this many packets, 0 means no limit")
	flags.Int32("snaplen", pcap.DefaultSnapLen, "snapshot length of live captures")
	flags.Bool("promiscuous", true, "put the interface into promiscuous mode")
	flags.Duration("timeout", 500*time.Millisecond, "idle timeout of live reads, e.g. 100ms, 1s; 0 blocks")
	flags.String("netmask", "", "netmask for 'ip broadcast', dotted quad or number")
	flags.Bool("optimize", true, "optimize compiled filters")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9100")
	flags.Bool("gopacket", false, "use gopacket PacketSource instead of a plain read loop when printing")
	for _, name := range []string{"interface", "read", "write", "append", "count", "snaplen", "promiscuous", "timeout", "netmask", "optimize", "metrics-addr", "gopacket"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := pcapOptions()
	if err != nil {
		return err
	}
	r := iosource.NewRegistry()
	if err := pcap.Register(r, append(opts, pcap.WithContext(ctx))...); err != nil {
		return err
	}

	filter := strings.Join(args, " ")
	path, live := viper.GetString("read"), false
	if path == "" {
		path, live = viper.GetString("interface"), true
		fmt.Fprintf(os.Stderr, "capturing from interface %s\n", path)
	}
	src, err := r.OpenSource(path, filter, live)
	if err != nil {
		return err
	}
	defer src.Close()

	m := iosource.NewMetrics()
	if addr := viper.GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			return err
		}
		srv := serveMetrics(addr, reg)
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
	}

	count := viper.GetInt("count")
	if out := viper.GetString("write"); out != "" {
		dst, err := r.OpenDumper(out, viper.GetBool("append"))
		if err != nil {
			return err
		}
		if err := dst.Open(src.LinkType(), src.SnapLen()); err != nil {
			return err
		}
		n, err := iosource.Pump(ctx, src, dst, count, m)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		log.Infof("%d packets written to %s", n, out)
		return err
	}

	if viper.GetBool("gopacket") {
		return printPacketSource(ctx, src, count, m)
	}
	return printPackets(ctx, src, count, m)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return srv
}

func printPackets(ctx context.Context, src iosource.PktSrc, limit int, m *iosource.Metrics) error {
	linkType := layers.LinkType(src.LinkType())
	for count := 0; limit <= 0 || count < limit; {
		data, _, err := src.ReadPacketData()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				continue
			}
			m.Errors.WithLabelValues(src.Path(), "read").Inc()
			return err
		}
		m.PacketsReceived.WithLabelValues(src.Path()).Inc()
		processPacket(gopacket.NewPacket(data, linkType, gopacket.Default), count)
		count++
	}
	return nil
}

func printPacketSource(ctx context.Context, src iosource.PktSrc, limit int, m *iosource.Metrics) error {
	packetSource := gopacket.NewPacketSource(src, layers.LinkType(src.LinkType()))
	packets := packetSource.Packets()
	for count := 0; limit <= 0 || count < limit; count++ {
		select {
		case <-ctx.Done():
			return nil
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			m.PacketsReceived.WithLabelValues(src.Path()).Inc()
			processPacket(packet, count)
		}
	}
	return nil
}

func processPacket(packet gopacket.Packet, count int) {
	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		fmt.Printf("%d: IP packet ", count)
		// Get actual IP data from this layer
		ip, _ := ipLayer.(*layers.IPv4)
		fmt.Printf("From src %s to dst %s\n", ip.SrcIP, ip.DstIP)
	}
	if ipLayer := packet.Layer(layers.LayerTypeIPv6); ipLayer != nil {
		fmt.Printf("%d: IP packet ", count)
		// Get actual IP data from this layer
		ip, _ := ipLayer.(*layers.IPv6)
		fmt.Printf("From src %s to dst %s\n", ip.SrcIP, ip.DstIP)
	}
	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		fmt.Printf("%d: UDP packet ", count)
		// Get actual UDP data from this layer
		udp, _ := udpLayer.(*layers.UDP)
		fmt.Printf("From src port %d to dst port %d\n", udp.SrcPort, udp.DstPort)
	}
	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		fmt.Printf("%d: TCP packet ", count)
		// Get actual TCP data from this layer
		tcp, _ := tcpLayer.(*layers.TCP)
		fmt.Printf("From src port %d to dst port %d\n", tcp.SrcPort, tcp.DstPort)
	}
	// Iterate over all layers, printing out each layer type
	for i, layer := range packet.Layers() {
		fmt.Printf("%d: PACKET LAYER %d: %s\n", count, i, layer.LayerType())
	}

	data := packet.Data()
	if len(data) > 50 {
		data = data[:50]
	}
	fmt.Printf("%d: packet size %d, first bytes %d\n", count, packet.Metadata().CaptureLength, data)
}
