// Package loader identifies the executable format of a file by its
// magic bytes. It never parses symbols, sections, or debug info — that
// is out of scope for the engine this package feeds.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// Format is the executable container format a File was classified as.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatPE
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	default:
		return "unknown"
	}
}

// File is a classified, already-closed view of a path on disk.
type File struct {
	Path   string
	Format Format

	// Entry is always 0: the engine only needs a path and a format to
	// hand to proc.Launch, not a load address.
	Entry uint64
}

var (
	ErrNotFound   = errors.New("file not found")
	ErrNotRegular = errors.New("not a regular file")
	ErrBadMagic   = errors.New("unrecognized executable format")
)

var (
	elfMagic = []byte{0x7F, 'E', 'L', 'F'}
	peMagic  = []byte{'M', 'Z'}
)

// Open stats path, reads its first four bytes, and classifies the
// result. It holds the file open only long enough to read the header.
func Open(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var header [4]byte
	n, err := f.Read(header[:])
	if err != nil && n == 0 {
		return File{}, fmt.Errorf("reading header of %s: %w", path, err)
	}

	format, ok := classify(header[:n])
	if !ok {
		return File{}, fmt.Errorf("%s: %w", path, ErrBadMagic)
	}
	return File{Path: path, Format: format}, nil
}

func classify(header []byte) (Format, bool) {
	if len(header) >= 4 && bytes.Equal(header[:4], elfMagic) {
		return FormatELF, true
	}
	if len(header) >= 2 && bytes.Equal(header[:2], peMagic) {
		return FormatPE, true
	}
	return FormatUnknown, false
}
