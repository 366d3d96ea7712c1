// Package mwdump reads MediaWiki Special:Export XML dumps, plain or
// compressed, as a stream of documents.
package mwdump

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

// Compression is the container format detected from a dump's first bytes.
type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionXZ    Compression = "xz"
	CompressionBzip2 Compression = "bzip2"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	bzip2Magic = []byte("BZh")
)

// Dump is an open dump file. Reads return decompressed XML; Digest
// covers the raw, still compressed bytes.
type Dump struct {
	io.Reader
	Compression Compression

	raw    *bufio.Reader
	file   *os.File
	closer io.Closer
	hasher *blake3.Hasher
}

// Open opens path and detects its compression from the magic bytes, not
// the file extension.
func Open(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	d, err := newDump(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.file = f
	return d, nil
}

// NewReader wraps an in-memory or network stream the same way Open wraps
// a file.
func NewReader(r io.Reader) (*Dump, error) {
	return newDump(r)
}

func newDump(r io.Reader) (*Dump, error) {
	h := blake3.New()
	br := bufio.NewReader(io.TeeReader(r, h))
	comp, err := detect(br)
	if err != nil {
		return nil, err
	}

	d := &Dump{Compression: comp, raw: br, hasher: h}
	switch comp {
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		d.Reader, d.closer = zr, zr
	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		d.Reader = xr
	case CompressionBzip2:
		d.Reader = bzip2.NewReader(br)
	default:
		d.Reader = br
	}
	return d, nil
}

func detect(br *bufio.Reader) (Compression, error) {
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", fmt.Errorf("sniff dump: %w", err)
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip, nil
	case bytes.HasPrefix(head, xzMagic):
		return CompressionXZ, nil
	case bytes.HasPrefix(head, bzip2Magic):
		return CompressionBzip2, nil
	}
	return CompressionNone, nil
}

// Digest consumes whatever the XML reader left unread and returns the hex
// BLAKE3 digest of the raw input.
func (d *Dump) Digest() (string, error) {
	if _, err := io.Copy(io.Discard, d.Reader); err != nil {
		return "", fmt.Errorf("drain dump: %w", err)
	}
	if _, err := io.Copy(io.Discard, d.raw); err != nil {
		return "", fmt.Errorf("drain dump: %w", err)
	}
	return hex.EncodeToString(d.hasher.Sum(nil)), nil
}

// Close releases the decompressor and the underlying file.
func (d *Dump) Close() error {
	var first error
	if d.closer != nil {
		first = d.closer.Close()
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
