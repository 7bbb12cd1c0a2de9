// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
)

// Default tuning values.
const (
	DefaultCopyBufferSize     = 64 * 1024
	DefaultWriterBufferSize   = 1024 * 1024
	DefaultMaxReplacementSize = 512 * 1024 * 1024
	DefaultCodec              = CodecZlib
)

// Bundle is the in-memory model of a whole installer archive.
type Bundle struct {
	// CoreVersion is installer core version declared by the product.
	CoreVersion string `json:"core_version" yaml:"core_version"`
	// Components are ordered as laid out in the payload region.
	Components []*Component `json:"components" yaml:"components"`
	// ProductComponents are opaque references listed under product.
	ProductComponents []string `json:"product_components,omitempty" yaml:"product_components,omitempty"`
	// Footer is the source footer; only its pass-through fields and manifest offset are reused on write.
	Footer Footer `json:"footer" yaml:"footer"`
}

// Component returns component by exact name or nil.
func (b *Bundle) Component(name string) *Component {
	if b == nil {
		return nil
	}

	for _, c := range b.Components {
		if c.Name == name {
			return c
		}
	}

	return nil
}

// Dependency is one component relation entry.
type Dependency struct {
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Component is a named sub-archive inside a bundle.
type Component struct {
	// Origin links a planned component to the component it was derived from.
	Origin *Component `json:"-" yaml:"-"`
	// Files is nil for components that carry no payload.
	Files *FileSet `json:"files,omitempty" yaml:"files,omitempty"`

	Name         string `json:"name" yaml:"name"`
	LongName     string `json:"long_name,omitempty" yaml:"long_name,omitempty"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Platform     string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Architecture string `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	CoreVersion  string `json:"core_version,omitempty" yaml:"core_version,omitempty"`
	// EULA is empty when component has no license text.
	EULA string `json:"eula,omitempty" yaml:"eula,omitempty"`

	Dependencies         []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	OptionalDependencies []Dependency `json:"optional_dependencies,omitempty" yaml:"optional_dependencies,omitempty"`
	Conflicts            []Dependency `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`

	BuildNumber int64 `json:"build_number,omitempty" yaml:"build_number,omitempty"`

	// dataStart is absolute offset of payload region in the archive this component was read from.
	dataStart int64
	// offset is component position inside the source payload region.
	offset int64
	// dataSize is payload region size declared by the source component header.
	dataSize int64
	// hasSource reports whether dataStart was set by the archive reader.
	hasSource bool
}

// sourceDataStart resolves absolute source payload offset following provenance links.
func (c *Component) sourceDataStart() (int64, bool) {
	for cur := c; cur != nil; cur = cur.Origin {
		if cur.hasSource {
			return cur.dataStart, true
		}
	}

	return 0, false
}

// cloneScalars copies metadata and relation lists, leaving Files and provenance unset.
func (c *Component) cloneScalars() *Component {
	return &Component{
		Name:                 c.Name,
		LongName:             c.LongName,
		Version:              c.Version,
		BuildNumber:          c.BuildNumber,
		Description:          c.Description,
		Platform:             c.Platform,
		Architecture:         c.Architecture,
		CoreVersion:          c.CoreVersion,
		EULA:                 c.EULA,
		Dependencies:         cloneDependencies(c.Dependencies),
		OptionalDependencies: cloneDependencies(c.OptionalDependencies),
		Conflicts:            cloneDependencies(c.Conflicts),
	}
}

// cloneDependencies returns an independent copy, keeping nil as nil.
func cloneDependencies(deps []Dependency) []Dependency {
	if deps == nil {
		return nil
	}

	out := make([]Dependency, len(deps))
	copy(out, deps)
	return out
}

// FileEntry describes one file inside a component payload region.
// Entries are immutable once added to a FileSet.
type FileEntry struct {
	// Path is unique key inside the owning FileSet.
	Path string `json:"path" yaml:"path"`
	// Offset is position inside component payload region.
	Offset int64 `json:"offset" yaml:"offset"`
	// CompressedSize is stored payload size.
	CompressedSize int64 `json:"compressed_size" yaml:"compressed_size"`
	// UncompressedSize is size of raw content.
	UncompressedSize int64 `json:"uncompressed_size" yaml:"uncompressed_size"`

	// data holds replacement bytes for patched entries.
	data []byte
	// sourceOffset is offset inside source payload region for original entries.
	sourceOffset int64
	// patched reports whether payload comes from data instead of source archive.
	patched bool
}

// NewFileEntry creates an original entry backed by source archive bytes at offset.
func NewFileEntry(path string, offset, compressedSize, uncompressedSize int64) *FileEntry {
	return &FileEntry{
		Path:             path,
		Offset:           offset,
		CompressedSize:   compressedSize,
		UncompressedSize: uncompressedSize,
		sourceOffset:     offset,
	}
}

// NewPatchedEntry creates an entry holding already compressed replacement bytes.
// Offset is assigned by the planner or writer layout, not by the caller.
func NewPatchedEntry(path string, compressed []byte, uncompressedSize int64) *FileEntry {
	return &FileEntry{
		Path:             path,
		CompressedSize:   int64(len(compressed)),
		UncompressedSize: uncompressedSize,
		data:             compressed,
		patched:          true,
	}
}

// IsPatched reports whether entry carries its own payload bytes.
func (e *FileEntry) IsPatched() bool {
	return e.patched
}

// SourceOffset returns offset inside source payload region for original entries.
func (e *FileEntry) SourceOffset() int64 {
	return e.sourceOffset
}

// movedTo returns a copy placed at offset, sharing payload bytes.
func (e *FileEntry) movedTo(offset int64) *FileEntry {
	moved := *e
	moved.Offset = offset
	return &moved
}

// FileSet maps unique paths to entries of one component.
// Paths are unique as written; normalized forms only serve lookups.
type FileSet struct {
	entries map[string]*FileEntry
	// aliases maps normalized path to every exact path sharing it.
	aliases map[string][]string
}

// NewFileSet builds a set from entries and fails on duplicate or empty paths.
func NewFileSet(entries ...*FileEntry) (*FileSet, error) {
	fs := &FileSet{
		entries: make(map[string]*FileEntry, len(entries)),
		aliases: make(map[string][]string, len(entries)),
	}
	for _, e := range entries {
		if err := fs.add(e); err != nil {
			return nil, err
		}
	}

	return fs, nil
}

// add inserts one entry keyed by its exact path.
func (fs *FileSet) add(e *FileEntry) error {
	normalized := NormalizePath(e.Path)
	if normalized == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEntryPath, e.Path)
	}

	if _, ok := fs.entries[e.Path]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntryPath, e.Path)
	}

	fs.entries[e.Path] = e
	fs.aliases[normalized] = append(fs.aliases[normalized], e.Path)
	return nil
}

// Len returns number of entries.
func (fs *FileSet) Len() int {
	if fs == nil {
		return 0
	}

	return len(fs.entries)
}

// Lookup resolves entry by exact path, falling back to the normalized form
// when it names exactly one entry.
func (fs *FileSet) Lookup(path string) (*FileEntry, bool) {
	if fs == nil {
		return nil, false
	}

	if e, ok := fs.entries[path]; ok {
		return e, true
	}

	paths := fs.aliases[NormalizePath(path)]
	if len(paths) != 1 {
		return nil, false
	}

	return fs.entries[paths[0]], true
}

// Entries returns entries in payload layout order.
func (fs *FileSet) Entries() []*FileEntry {
	if fs == nil {
		return nil
	}

	out := make([]*FileEntry, 0, len(fs.entries))
	for _, e := range fs.entries {
		out = append(out, e)
	}

	sortByLayout(out)
	return out
}

// TotalSize returns sum of compressed sizes.
func (fs *FileSet) TotalSize() int64 {
	var total int64
	if fs == nil {
		return total
	}

	for _, e := range fs.entries {
		total += e.CompressedSize
	}

	return total
}

// CheckTiling reports ErrLayoutGap unless entries tile [0, TotalSize) without gaps or overlaps.
func (fs *FileSet) CheckTiling() error {
	var next int64
	for _, e := range fs.Entries() {
		if e.Offset != next {
			return fmt.Errorf("%w: entry %q at offset %d, expected %d", ErrLayoutGap, e.Path, e.Offset, next)
		}

		next += e.CompressedSize
	}

	return nil
}

// sortByLayout orders entries by offset, then size, then path.
// Zero-size entries sharing an offset with a sized entry come first, so the
// order always tiles when the offsets do.
func sortByLayout(entries []*FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Offset != entries[j].Offset {
			return entries[i].Offset < entries[j].Offset
		}
		if entries[i].CompressedSize != entries[j].CompressedSize {
			return entries[i].CompressedSize < entries[j].CompressedSize
		}

		return entries[i].Path < entries[j].Path
	})
}

// PatchRequest asks to replace one file inside one component.
type PatchRequest struct {
	// Open returns raw replacement content.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Component is target component name.
	Component string `json:"component" yaml:"component"`
	// Path is target entry path inside component fileset.
	Path string `json:"path" yaml:"path"`
}

// Replacement is a prepared patch request carrying compressed content.
type Replacement struct {
	Component string `json:"component" yaml:"component"`
	Path      string `json:"path" yaml:"path"`
	// Data is compressed replacement payload.
	Data []byte `json:"-" yaml:"-"`
	// UncompressedSize is raw content size before compression.
	UncompressedSize int64 `json:"uncompressed_size" yaml:"uncompressed_size"`
}

// EntryProgress describes one entry payload written to destination.
type EntryProgress struct {
	Component      string `json:"component" yaml:"component"`
	Path           string `json:"path" yaml:"path"`
	Offset         int64  `json:"offset" yaml:"offset"`
	CompressedSize int64  `json:"compressed_size" yaml:"compressed_size"`
	Patched        bool   `json:"patched,omitempty" yaml:"patched,omitempty"`
}

// WriteOptions configures container writer behavior.
type WriteOptions struct {
	// OnEntryDone is called after one entry payload is fully streamed.
	OnEntryDone func(entry EntryProgress) `json:"-" yaml:"-"`
	// CopyBufferSize bounds the transfer buffer used for source payload copies.
	CopyBufferSize int `json:"copy_buffer_size,omitempty" yaml:"copy_buffer_size,omitempty"`
}

// PatchOptions configures ApplyPatches and PlanPatches.
type PatchOptions struct {
	// Logger receives progress records; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Codec names the compressor for replacement content.
	Codec string `json:"codec,omitempty" yaml:"codec,omitempty"`
	// WriteOptions are passed to the container writer.
	WriteOptions WriteOptions `json:"write_options,omitzero" yaml:"write_options,omitzero"`
	// MaxReplacementSize limits raw replacement content size in bytes.
	MaxReplacementSize int64 `json:"max_replacement_size,omitempty" yaml:"max_replacement_size,omitempty"`
	// MaxWorkers bounds parallel replacement preparation (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// WriterBufferSize is buffered destination writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
}

// applyDefaults fills zero-valued write options with defaults.
func (opts *WriteOptions) applyDefaults() {
	if opts.CopyBufferSize < 512 {
		opts.CopyBufferSize = DefaultCopyBufferSize
	}
}

// applyDefaults fills zero-valued patch options with defaults.
func (opts *PatchOptions) applyDefaults() {
	opts.WriteOptions.applyDefaults()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if opts.Codec == "" {
		opts.Codec = DefaultCodec
	}

	if opts.MaxReplacementSize <= 0 {
		opts.MaxReplacementSize = DefaultMaxReplacementSize
	}

	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}

	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriterBufferSize
	}
}
