// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
)

// defaultCopyBufferPool reuses default-sized payload copy buffers between writes.
var defaultCopyBufferPool = sync.Pool{
	New: func() any {
		return new([DefaultCopyBufferSize]byte)
	},
}

// ComponentResult describes one component block in the written archive.
type ComponentResult struct {
	Name string `json:"name" yaml:"name"`
	// Offset is position inside payload region.
	Offset int64 `json:"offset" yaml:"offset"`
	// Size is header + manifest + payload size.
	Size         int64 `json:"size" yaml:"size"`
	ManifestSize int64 `json:"manifest_size" yaml:"manifest_size"`
	DataSize     int64 `json:"data_size" yaml:"data_size"`
	Entries      int   `json:"entries" yaml:"entries"`
}

// WriteResult contains written archive layout and statistics.
type WriteResult struct {
	// Digest is sha256 of all written bytes.
	Digest         digest.Digest     `json:"digest" yaml:"digest"`
	Components     []ComponentResult `json:"components" yaml:"components"`
	Size           int64             `json:"size" yaml:"size"`
	ManifestOffset int64             `json:"manifest_offset" yaml:"manifest_offset"`
	ManifestSize   int64             `json:"manifest_size" yaml:"manifest_size"`
	PayloadOffset  int64             `json:"payload_offset" yaml:"payload_offset"`
	PayloadSize    int64             `json:"payload_size" yaml:"payload_size"`
	PatchedEntries int               `json:"patched_entries" yaml:"patched_entries"`
	CopiedEntries  int               `json:"copied_entries" yaml:"copied_entries"`
	Duration       time.Duration     `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// trackingWriter counts and hashes written bytes and tags write failures.
type trackingWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		_, _ = t.h.Write(p[:n])
		t.n += int64(n)
	}
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrDestinationWrite, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("%w: %w", ErrDestinationWrite, io.ErrShortWrite)
	}

	return n, nil
}

// WriteBundle streams b to out in one sequential pass.
//
// Bytes before the source bundle manifest are copied verbatim from src, followed by
// the rendered bundle manifest, every component block and the footer. Original entries
// are copied from src; patched entries are written from their held bytes.
func WriteBundle(out io.Writer, src io.ReaderAt, b *Bundle, opts WriteOptions) (*WriteResult, error) {
	startedAt := time.Now()

	if out == nil {
		return nil, ErrNilWriter
	}
	if b == nil {
		return nil, ErrNilBundle
	}

	opts.applyDefaults()

	manifest, layouts, err := layoutBundle(b)
	if err != nil {
		return nil, err
	}

	if err := checkWritable(src, b, layouts); err != nil {
		return nil, err
	}

	copyBuf, releaseCopyBuffer := acquireCopyBuffer(opts.CopyBufferSize)
	defer releaseCopyBuffer()

	digester := digest.Canonical.Digester()
	w := &trackingWriter{w: out, h: digester.Hash()}

	prefixSize := int64(b.Footer.ManifestOffset) //nolint:gosec // bounded by source size
	if prefixSize > 0 {
		n, err := copyPayload(w, io.NewSectionReader(src, 0, prefixSize), prefixSize, copyBuf)
		if err != nil {
			return nil, fmt.Errorf("copy launcher prefix: %w", err)
		}
		if n != prefixSize {
			return nil, fmt.Errorf("%w: launcher prefix short read (%d/%d)", ErrSourceRead, n, prefixSize)
		}
	}

	if _, err := w.Write(manifest); err != nil {
		return nil, fmt.Errorf("write bundle manifest: %w", err)
	}

	res := &WriteResult{
		ManifestOffset: prefixSize,
		ManifestSize:   int64(len(manifest)),
		PayloadOffset:  w.n,
		Components:     make([]ComponentResult, 0, len(layouts)),
	}

	for _, l := range layouts {
		if err := writeComponent(w, src, l, opts, copyBuf, res); err != nil {
			return nil, err
		}

		res.Components = append(res.Components, ComponentResult{
			Name:         l.component.Name,
			Offset:       l.offset,
			Size:         l.size(),
			ManifestSize: int64(len(l.manifest)),
			DataSize:     l.dataSize,
			Entries:      len(l.entries),
		})
	}
	res.PayloadSize = w.n - res.PayloadOffset

	footer := Footer{
		Version:        b.Footer.Version,
		LauncherSize:   b.Footer.LauncherSize,
		LegacySize:     b.Footer.LegacySize,
		LegacyOffset:   b.Footer.LegacyOffset,
		PayloadOffset:  uint64(res.PayloadOffset), //nolint:gosec // non-negative counter
		PayloadSize:    uint64(res.PayloadSize),   //nolint:gosec // non-negative counter
		ManifestOffset: uint64(res.ManifestOffset),
		ManifestSize:   uint64(res.ManifestSize),
	}
	if _, err := w.Write(footer.encode()); err != nil {
		return nil, fmt.Errorf("write footer: %w", err)
	}

	res.Size = w.n
	res.Digest = digester.Digest()
	res.Duration = time.Since(startedAt)

	return res, nil
}

// Pack writes a new archive from launcher bytes and a bundle whose entries are all patched.
// Entries of every component are laid out contiguously in layout order.
func Pack(out io.Writer, launcher []byte, b *Bundle, opts WriteOptions) (*WriteResult, error) {
	if b == nil {
		return nil, ErrNilBundle
	}

	staged := &Bundle{
		CoreVersion:       b.CoreVersion,
		ProductComponents: b.ProductComponents,
		Footer: Footer{
			Version:        b.Footer.Version,
			LauncherSize:   uint64(len(launcher)),
			LegacySize:     b.Footer.LegacySize,
			LegacyOffset:   b.Footer.LegacyOffset,
			ManifestOffset: uint64(len(launcher)),
		},
		Components: make([]*Component, 0, len(b.Components)),
	}
	if staged.Footer.Version == 0 {
		staged.Footer.Version = FooterVersion
	}

	for _, c := range b.Components {
		packed := c.cloneScalars()
		if c.Files != nil {
			fs, err := compactFileSet(c)
			if err != nil {
				return nil, err
			}
			packed.Files = fs
		}

		staged.Components = append(staged.Components, packed)
	}

	return WriteBundle(out, bytes.NewReader(launcher), staged, opts)
}

// compactFileSet moves entries to cumulative offsets in layout order.
func compactFileSet(c *Component) (*FileSet, error) {
	entries := c.Files.Entries()
	moved := make([]*FileEntry, 0, len(entries))

	var offset int64
	for _, e := range entries {
		moved = append(moved, e.movedTo(offset))
		offset += e.CompressedSize
	}

	fs, err := NewFileSet(moved...)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", c.Name, err)
	}

	return fs, nil
}

// checkWritable validates tiling and source availability before any byte is written.
func checkWritable(src io.ReaderAt, b *Bundle, layouts []componentLayout) error {
	if b.Footer.ManifestOffset > 0 && src == nil {
		return fmt.Errorf("%w: launcher prefix requires source", ErrNilReader)
	}

	for _, l := range layouts {
		if err := l.component.Files.CheckTiling(); err != nil {
			return fmt.Errorf("component %s: %w", l.component.Name, err)
		}

		for _, e := range l.entries {
			if e.IsPatched() {
				continue
			}

			if src == nil {
				return fmt.Errorf("%w: component %s entry %q", ErrNilReader, l.component.Name, e.Path)
			}
			if _, ok := l.component.sourceDataStart(); !ok {
				return fmt.Errorf("%w: component %s entry %q", ErrMissingSource, l.component.Name, e.Path)
			}
		}
	}

	return nil
}

// writeComponent emits header, manifest and payload of one component.
func writeComponent(
	w *trackingWriter,
	src io.ReaderAt,
	l componentLayout,
	opts WriteOptions,
	copyBuf []byte,
	res *WriteResult,
) error {
	name := l.component.Name

	header := newComponentHeader(int64(len(l.manifest)), l.dataSize)
	if _, err := w.Write(header.encode()); err != nil {
		return fmt.Errorf("write component %s header: %w", name, err)
	}

	if _, err := w.Write(l.manifest); err != nil {
		return fmt.Errorf("write component %s manifest: %w", name, err)
	}

	dataStart, _ := l.component.sourceDataStart()
	for _, e := range l.entries {
		var (
			written int64
			err     error
		)

		if e.IsPatched() {
			written, err = writePatchedPayload(w, e)
		} else {
			sr := io.NewSectionReader(src, dataStart+e.sourceOffset, e.CompressedSize)
			written, err = copyPayload(w, sr, e.CompressedSize, copyBuf)
		}
		if err != nil {
			return fmt.Errorf("component %s entry %q: %w", name, e.Path, err)
		}

		if written != e.CompressedSize {
			return fmt.Errorf(
				"%w: component %s entry %q: wrote %d bytes, declared %d",
				ErrSizeMismatch, name, e.Path, written, e.CompressedSize,
			)
		}

		if e.IsPatched() {
			res.PatchedEntries++
		} else {
			res.CopiedEntries++
		}

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(EntryProgress{
				Component:      name,
				Path:           e.Path,
				Offset:         e.Offset,
				CompressedSize: e.CompressedSize,
				Patched:        e.IsPatched(),
			})
		}
	}

	return nil
}

// writePatchedPayload writes held replacement bytes.
func writePatchedPayload(w io.Writer, e *FileEntry) (int64, error) {
	n, err := w.Write(e.data)
	return int64(n), err
}

// acquireCopyBuffer returns payload copy buffer and release callback.
func acquireCopyBuffer(size int) ([]byte, func()) {
	if size != DefaultCopyBufferSize {
		return make([]byte, size), func() {}
	}

	arr := defaultCopyBufferPool.Get().(*[DefaultCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	return arr[:], func() {
		defaultCopyBufferPool.Put(arr)
	}
}

// copyPayload streams at most limit bytes from src to dst through buf.
// Read failures are tagged ErrSourceRead; a source ending early yields a short count, not an error.
func copyPayload(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunk := buf
		if remaining := limit - written; int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, readErr := src.Read(chunk)
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(chunk[:n])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return written, fmt.Errorf("%w: %w", ErrSourceRead, readErr)
		}

		if n == 0 {
			emptyReads++
			if emptyReads > 100 {
				return written, fmt.Errorf("%w: %w", ErrSourceRead, io.ErrNoProgress)
			}
		}
	}

	return written, nil
}
