package seqio

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// STDIN is the file name used to read from standard input
const STDIN = "-"

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bzip2Magic = []byte("BZh")
)

// readCloser joins a decompressing reader to the file it reads from
type readCloser struct {
	io.Reader
	closers []func() error
}

// Close closes the decompressor and then the file
func (rc *readCloser) Close() error {
	var err error
	for _, c := range rc.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Open opens a file (or STDIN for "-"), transparently decompressing gzip, zstd or bzip2 content.
// The compression is detected from the leading bytes rather than the file extension.
func Open(path string) (io.ReadCloser, error) {
	var fh *os.File
	if path == STDIN {
		fh = os.Stdin
	} else {
		var err error
		if fh, err = os.Open(path); err != nil {
			return nil, errors.Wrap(err, "could not open file")
		}
	}
	rc, err := decompress(fh)
	if err != nil {
		fh.Close()
		return nil, errors.Wrap(err, path)
	}
	rc.closers = append(rc.closers, fh.Close)
	return rc, nil
}

// Decompress wraps a reader with the decompressor its content needs (if any), closing it does not close r
func Decompress(r io.Reader) (io.ReadCloser, error) {
	return decompress(r)
}

func decompress(r io.Reader) (*readCloser, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	magic, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "could not read file")
	}
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "could not open gzip stream")
		}
		return &readCloser{Reader: gz, closers: []func() error{gz.Close}}, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "could not open zstd stream")
		}
		return &readCloser{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }}}, nil
	case bytes.HasPrefix(magic, bzip2Magic):
		return &readCloser{Reader: bzip2.NewReader(br)}, nil
	}
	return &readCloser{Reader: br}, nil
}
