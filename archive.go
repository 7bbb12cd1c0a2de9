// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxManifestSize bounds manifest documents read into memory.
const maxManifestSize = 64 * 1024 * 1024

// Archive provides read-only access to a parsed bundle archive.
type Archive struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Archive owns an *os.File opened via Open.
	file *os.File
	// bundle is the parsed model; components carry their source payload offsets.
	bundle *Bundle
	// size is total source size in bytes.
	size int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// LoadBundle opens archive at path, parses its model and closes the file.
// Entries of the returned bundle can only be written with a source reader over the same file.
func LoadBundle(path string) (*Bundle, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	return a.Bundle(), nil
}

// Open opens archive by path and parses footer, manifests and component headers.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	a, err := NewArchive(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	a.file = f
	return a, nil
}

// NewArchive parses archive from existing ReaderAt and known size.
func NewArchive(ra io.ReaderAt, size int64) (*Archive, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	a := &Archive{ra: ra, size: size}
	if err := a.parse(); err != nil {
		return nil, err
	}

	return a, nil
}

// Bundle returns parsed bundle model. Callers must treat it as immutable.
func (a *Archive) Bundle() *Bundle {
	if a == nil {
		return nil
	}

	return a.bundle
}

// Size returns total archive size in bytes.
func (a *Archive) Size() int64 {
	return a.size
}

// ReaderAt returns underlying random-access source.
func (a *Archive) ReaderAt() io.ReaderAt {
	return a.ra
}

// Close closes the underlying file if archive owns one.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true
	if a.file != nil {
		return a.file.Close()
	}

	return nil
}

// ReadEntryRaw returns stored (compressed) payload bytes of one entry.
func (a *Archive) ReadEntryRaw(component, path string) ([]byte, error) {
	if a == nil || a.ra == nil {
		return nil, ErrNilReader
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	c := a.bundle.Component(component)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, component)
	}

	e, ok := c.Files.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: component %s has no entry %q", ErrUnknownFile, component, path)
	}

	buf := make([]byte, e.CompressedSize)
	if err := readFullAt(a.ra, buf, c.dataStart+e.sourceOffset); err != nil {
		return nil, fmt.Errorf("%w: component %s entry %q: %w", ErrSourceRead, component, path, err)
	}

	return buf, nil
}

// ReadEntry returns raw content of one entry decoded with codec.
func (a *Archive) ReadEntry(component, path string, codec Decompressor) ([]byte, error) {
	data, err := a.ReadEntryRaw(component, path)
	if err != nil {
		return nil, err
	}

	if codec == nil {
		return nil, fmt.Errorf("%w: nil decompressor", ErrUnknownCodec)
	}

	e, _ := a.bundle.Component(component).Files.Lookup(path)
	out, err := codec.Decompress(data, e.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("component %s entry %q: %w", component, path, err)
	}

	return out, nil
}

// parse reads footer, bundle manifest and every component block.
func (a *Archive) parse() error {
	if a.size < FooterSize {
		return fmt.Errorf("%w: file too short (%d bytes)", ErrInvalidFooter, a.size)
	}

	footerBuf := make([]byte, FooterSize)
	if err := readFullAt(a.ra, footerBuf, a.size-FooterSize); err != nil {
		return fmt.Errorf("%w: read footer: %w", ErrSourceRead, err)
	}

	footer, err := decodeFooter(footerBuf)
	if err != nil {
		return err
	}

	limit := uint64(a.size - FooterSize) //nolint:gosec // size checked above
	if err := checkRange(ErrInvalidFooter, "bundle manifest", footer.ManifestOffset, footer.ManifestSize, limit); err != nil {
		return err
	}
	if err := checkRange(ErrInvalidFooter, "payload", footer.PayloadOffset, footer.PayloadSize, limit); err != nil {
		return err
	}
	if footer.ManifestSize > maxManifestSize {
		return fmt.Errorf("%w: bundle manifest size %d exceeds limit", ErrInvalidFooter, footer.ManifestSize)
	}

	manifestBuf := make([]byte, footer.ManifestSize)
	if err := readFullAt(a.ra, manifestBuf, int64(footer.ManifestOffset)); err != nil { //nolint:gosec // range checked
		return fmt.Errorf("%w: read bundle manifest: %w", ErrSourceRead, err)
	}

	doc, err := ParseBundleManifest(manifestBuf)
	if err != nil {
		return err
	}

	b := &Bundle{
		CoreVersion:       doc.CoreVersion,
		ProductComponents: doc.ProductComponents,
		Footer:            footer,
		Components:        make([]*Component, 0, len(doc.Components)),
	}

	seen := make(map[string]struct{}, len(doc.Components))
	for _, ref := range doc.Components {
		if _, dup := seen[ref.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateComponent, ref.Name)
		}
		seen[ref.Name] = struct{}{}

		c, err := a.parseComponent(footer, ref)
		if err != nil {
			return fmt.Errorf("component %s: %w", ref.Name, err)
		}

		b.Components = append(b.Components, c)
	}

	a.bundle = b
	return nil
}

// parseComponent reads one component header and manifest.
func (a *Archive) parseComponent(footer Footer, ref ComponentRef) (*Component, error) {
	if ref.Offset < 0 || ref.Size < ComponentHeaderSize {
		return nil, fmt.Errorf("%w: bad location offset=%d size=%d", ErrInvalidManifest, ref.Offset, ref.Size)
	}

	if err := checkRange(ErrInvalidManifest, "component", uint64(ref.Offset), uint64(ref.Size), footer.PayloadSize); err != nil {
		return nil, err
	}

	start := int64(footer.PayloadOffset) + ref.Offset //nolint:gosec // range checked
	headerBuf := make([]byte, ComponentHeaderSize)
	if err := readFullAt(a.ra, headerBuf, start); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrSourceRead, err)
	}

	h, err := decodeComponentHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	size := uint64(ref.Size)
	if err := checkRange(ErrInvalidHeader, "component manifest", h.ManifestOffset, h.ManifestSize, size); err != nil {
		return nil, err
	}
	if err := checkRange(ErrInvalidHeader, "component payload", h.DataOffset, h.DataSize, size); err != nil {
		return nil, err
	}
	if h.ManifestSize > maxManifestSize {
		return nil, fmt.Errorf("%w: component manifest size %d exceeds limit", ErrInvalidHeader, h.ManifestSize)
	}

	manifestBuf := make([]byte, h.ManifestSize)
	if err := readFullAt(a.ra, manifestBuf, start+int64(h.ManifestOffset)); err != nil { //nolint:gosec // range checked
		return nil, fmt.Errorf("%w: read manifest: %w", ErrSourceRead, err)
	}

	c, err := ParseComponentManifest(manifestBuf)
	if err != nil {
		return nil, err
	}
	if c.Name != ref.Name {
		return nil, fmt.Errorf("%w: manifest names component %q", ErrInvalidManifest, c.Name)
	}

	for _, e := range c.Files.Entries() {
		end := e.Offset + e.CompressedSize
		if end < e.Offset || uint64(end) > h.DataSize { //nolint:gosec // non-negative after parse
			return nil, fmt.Errorf("%w: entry %q range [%d,%d) exceeds %d", ErrEntryOutOfBounds, e.Path, e.Offset, end, h.DataSize)
		}
	}

	c.dataStart = start + int64(h.DataOffset) //nolint:gosec // range checked
	c.offset = ref.Offset
	c.dataSize = int64(h.DataSize) //nolint:gosec // range checked
	c.hasSource = true

	return c, nil
}

// checkRange validates [offset, offset+size) fits within limit.
func checkRange(sentinel error, what string, offset, size, limit uint64) error {
	if offset > limit || size > limit-offset {
		return fmt.Errorf("%w: %s range [%d,+%d) exceeds %d", sentinel, what, offset, size, limit)
	}

	return nil
}

// readFullAt fills buf from ra at off, accepting io.EOF on a complete read.
func readFullAt(ra io.ReaderAt, buf []byte, off int64) error {
	n, err := ra.ReadAt(buf, off)
	if n == len(buf) && (err == nil || errors.Is(err, io.EOF)) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}

	return err
}
