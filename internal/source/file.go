package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the section header block type that opens every pcapng file.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// FileSource replays a pcap or pcapng capture.
type FileSource struct {
	reader packetReader
	closer io.Closer
}

// OpenFile opens a capture file, detecting pcap or pcapng from its header.
func OpenFile(path string) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("capture file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	src, err := NewReaderSource(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	src.closer = f
	return src, nil
}

// NewReaderSource reads a pcap or pcapng stream from r.
func NewReaderSource(r io.Reader) (*FileSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var reader packetReader
	if bytes.Equal(magic, pcapngMagic) {
		reader, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		reader, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, err
	}
	return &FileSource{reader: reader}, nil
}

// ReadPacketData returns the next frame or io.EOF at the end of the capture.
func (s *FileSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, nil
}

// LinkType returns the link type recorded in the capture header.
func (s *FileSource) LinkType() layers.LinkType {
	return s.reader.LinkType()
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
