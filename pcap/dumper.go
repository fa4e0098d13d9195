package pcap

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"

	"github.com/packetcap/iosource"
)

// Dumper writes packets to a pcap savefile. The path "-" writes standard
// output. Nothing touches the file until Open.
type Dumper struct {
	path      string
	appending bool
	f         io.WriteCloser
	w         *pcapgo.Writer
}

var _ iosource.PktDumper = (*Dumper)(nil)

func NewDumper(path string, appending bool) *Dumper {
	return &Dumper{path: path, appending: appending}
}

func (d *Dumper) Path() string {
	return d.path
}

// Open creates or truncates the file and writes the file header. In append
// mode an existing non-empty file keeps its header; its link type must match
// and its timestamp resolution is kept.
func (d *Dumper) Open(linkType uint32, snapLen int) error {
	if d.w != nil {
		return fmt.Errorf("dumper %s already open", d.path)
	}
	if d.path == "-" {
		d.f = os.Stdout
		d.w = pcapgo.NewWriter(os.Stdout)
		return d.w.WriteFileHeader(uint32(snapLen), layers.LinkType(linkType))
	}

	nanos := false
	resume := false
	if d.appending {
		existing, err := readHeader(d.path)
		switch {
		case err != nil:
			return err
		case existing != nil:
			if uint32(existing.LinkType()) != linkType {
				return fmt.Errorf("cannot append link type %d to %s with link type %d", linkType, d.path, existing.LinkType())
			}
			nanos = existing.Resolution() == gopacket.TimestampResolutionNanosecond
			resume = true
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(d.path, flags, 0o644)
	if err != nil {
		return err
	}
	d.f = f
	if nanos {
		d.w = pcapgo.NewWriterNanos(f)
	} else {
		d.w = pcapgo.NewWriter(f)
	}
	log.WithFields(log.Fields{
		"path":     d.path,
		"linktype": linkType,
		"snaplen":  snapLen,
		"append":   resume,
	}).Debug("opened dumper")
	if resume {
		return nil
	}
	if err := d.w.WriteFileHeader(uint32(snapLen), layers.LinkType(linkType)); err != nil {
		_ = f.Close()
		d.f, d.w = nil, nil
		return fmt.Errorf("error writing header to %s: %w", d.path, err)
	}
	return nil
}

// readHeader returns a reader positioned after the file header of path, or
// nil when the file does not exist or is empty.
func readHeader(path string) (*pcapgo.Reader, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, nil
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cannot append to %s: %w", path, err)
	}
	return r, nil
}

func (d *Dumper) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	if d.w == nil {
		return fmt.Errorf("dumper %s is not open", d.path)
	}
	return d.w.WritePacket(ci, data)
}

func (d *Dumper) Close() error {
	if d.f == nil || d.f == os.Stdout {
		return nil
	}
	err := d.f.Close()
	d.f, d.w = nil, nil
	return err
}
