// Package source reads pcap and pcapng captures into packet records.
package source

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"

	"firestige.xyz/pcaplens/internal/core"
)

// ngMagic is the pcapng section header block type.
const ngMagic = 0x0A0D0D0A

// Source produces packet records in capture order. Next returns io.EOF
// after the last record.
type Source interface {
	Next() (core.PacketRecord, error)
	Close() error
}

// CompileFunc compiles a filter expression for the given link type.
type CompileFunc func(linkType layers.LinkType, expr string) ([]bpf.RawInstruction, error)

// Options controls how a capture is read.
type Options struct {
	// Filter is a BPF expression; frames it rejects are skipped.
	Filter string
	// Compile turns Filter into a program. Required when Filter is set.
	Compile CompileFunc
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type fileSource struct {
	path   string
	file   *os.File
	reader packetReader
	filter *filter
}

// Open opens the capture at path. The format is picked from the file magic.
func Open(path string, opts Options) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCaptureOpen, path, err)
	}

	reader, err := newReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCaptureOpen, path, err)
	}

	s := &fileSource{path: path, file: f, reader: reader}
	if opts.Filter != "" {
		if opts.Compile == nil {
			f.Close()
			return nil, fmt.Errorf("%w: no compiler for %q", core.ErrFilterInvalid, opts.Filter)
		}
		raw, err := opts.Compile(reader.LinkType(), opts.Filter)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %q: %v", core.ErrFilterInvalid, opts.Filter, err)
		}
		s.filter, err = newFilter(raw)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %q: %v", core.ErrFilterInvalid, opts.Filter, err)
		}
	}

	slog.Debug("capture opened", "file", path, "link_type", reader.LinkType().String(), "filter", opts.Filter)
	return s, nil
}

func newReader(br *bufio.Reader) (packetReader, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read file header: %w", err)
	}
	if binary.LittleEndian.Uint32(magic) == ngMagic {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// Next returns the next frame that passes the filter.
func (s *fileSource) Next() (core.PacketRecord, error) {
	for {
		data, ci, err := s.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return core.PacketRecord{}, io.EOF
			}
			return core.PacketRecord{}, fmt.Errorf("%w: %s: %v", core.ErrCaptureRead, s.path, err)
		}
		if s.filter != nil && !s.filter.Match(data) {
			continue
		}

		pkt := gopacket.NewPacket(data, s.reader.LinkType(), gopacket.DecodeOptions{NoCopy: true})
		rec := Record(pkt)
		rec.Timestamp = ci.Timestamp
		return rec, nil
	}
}

func (s *fileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
