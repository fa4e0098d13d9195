package pcap

/*
 Live sources open the capture device without libpcap.
 MacOS and FreeBSD use a /dev/bpf* device instead of a raw socket. Some good examples:
  https://github.com/c-bata/xpcap/blob/master/sniffer.c#L50
  https://gist.github.com/2opremio/6fda363ab384b0d85347956fb79a3927
 Linux uses a raw AF_PACKET socket.
  For syscall-based capture: see http://www.microhowto.info/howto/capture_ethernet_frames_using_an_af_packet_socket_in_c.html
 Filters are attached in the kernel: SO_ATTACH_FILTER on linux, BIOCSETF on the bpf device.

 Trace sources and dumpers read and write pcap files with gopacket/pcapgo.
 Trace sources have no kernel to run filters in, so they run the compiled
 program over each record with the x/net/bpf VM.
*/
