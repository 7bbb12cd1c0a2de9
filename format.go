// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Binary layout of the bundle container. All integers are little-endian.
const (
	// ComponentMagic opens every component header ("COMP").
	ComponentMagic uint32 = 0x504d4f43
	// ComponentFormatVersion is the only component header version this package reads and writes.
	ComponentFormatVersion uint32 = 1
	// ComponentHeaderSize is fixed component header size in bytes.
	ComponentHeaderSize = 44

	// FooterMagic closes the bundle footer ("BNDL").
	FooterMagic uint32 = 0x4c444e42
	// FooterVersion is written by Pack for archives created from scratch.
	FooterVersion uint32 = 2
	// FooterSize is fixed footer size in bytes.
	FooterSize = 68
)

// Component header field offsets.
const (
	hdrMagic          = 0
	hdrVersion        = 4
	hdrChecksum       = 8
	hdrManifestOffset = 12
	hdrManifestSize   = 20
	hdrDataOffset     = 28
	hdrDataSize       = 36
)

// Footer field offsets.
const (
	ftrVersion        = 0
	ftrLauncherSize   = 4
	ftrLegacySize     = 12
	ftrLegacyOffset   = 20
	ftrPayloadOffset  = 28
	ftrPayloadSize    = 36
	ftrManifestOffset = 44
	ftrManifestSize   = 52
	ftrChecksum       = 60
	ftrMagic          = 64
)

// Footer is the fixed trailer of a bundle archive.
type Footer struct {
	// Version is copied verbatim from the source archive.
	Version uint32 `json:"version" yaml:"version"`
	// LauncherSize is opaque and copied verbatim from the source archive.
	LauncherSize uint64 `json:"launcher_size" yaml:"launcher_size"`
	// LegacySize is opaque and copied verbatim from the source archive.
	LegacySize uint64 `json:"legacy_size" yaml:"legacy_size"`
	// LegacyOffset is opaque and copied verbatim from the source archive.
	LegacyOffset uint64 `json:"legacy_offset" yaml:"legacy_offset"`
	// PayloadOffset is absolute offset of the first component.
	PayloadOffset uint64 `json:"payload_offset" yaml:"payload_offset"`
	// PayloadSize is total size of all components.
	PayloadSize uint64 `json:"payload_size" yaml:"payload_size"`
	// ManifestOffset is absolute offset of the bundle manifest.
	ManifestOffset uint64 `json:"manifest_offset" yaml:"manifest_offset"`
	// ManifestSize is bundle manifest length in bytes.
	ManifestSize uint64 `json:"manifest_size" yaml:"manifest_size"`
	// Checksum is CRC32 over preceding footer fields, filled by decode.
	Checksum uint32 `json:"checksum" yaml:"checksum"`
}

// componentHeader is the fixed block opening every component.
type componentHeader struct {
	Version        uint32
	Checksum       uint32
	ManifestOffset uint64
	ManifestSize   uint64
	DataOffset     uint64
	DataSize       uint64
}

// newComponentHeader lays out manifest right after the header and payload right after manifest.
// Both lengths are non-negative.
func newComponentHeader(manifestSize, dataSize int64) componentHeader {
	return componentHeader{
		Version:        ComponentFormatVersion,
		ManifestOffset: ComponentHeaderSize,
		ManifestSize:   uint64(manifestSize),
		DataOffset:     uint64(ComponentHeaderSize + manifestSize),
		DataSize:       uint64(dataSize),
	}
}

// encode serializes header and fills the checksum slot.
func (h componentHeader) encode() []byte {
	buf := make([]byte, ComponentHeaderSize)
	binary.LittleEndian.PutUint32(buf[hdrMagic:], ComponentMagic)
	binary.LittleEndian.PutUint32(buf[hdrVersion:], h.Version)
	binary.LittleEndian.PutUint64(buf[hdrManifestOffset:], h.ManifestOffset)
	binary.LittleEndian.PutUint64(buf[hdrManifestSize:], h.ManifestSize)
	binary.LittleEndian.PutUint64(buf[hdrDataOffset:], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[hdrDataSize:], h.DataSize)
	binary.LittleEndian.PutUint32(buf[hdrChecksum:], headerChecksum(buf))

	return buf
}

// decodeComponentHeader parses and validates a header block.
func decodeComponentHeader(buf []byte) (componentHeader, error) {
	var h componentHeader
	if len(buf) < ComponentHeaderSize {
		return h, fmt.Errorf("%w: short header (%d bytes)", ErrInvalidHeader, len(buf))
	}

	if magic := binary.LittleEndian.Uint32(buf[hdrMagic:]); magic != ComponentMagic {
		return h, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidHeader, magic)
	}

	h.Version = binary.LittleEndian.Uint32(buf[hdrVersion:])
	if h.Version != ComponentFormatVersion {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	h.Checksum = binary.LittleEndian.Uint32(buf[hdrChecksum:])
	if sum := headerChecksum(buf); sum != h.Checksum {
		return h, fmt.Errorf("%w: component header stored 0x%08x, computed 0x%08x", ErrChecksumMismatch, h.Checksum, sum)
	}

	h.ManifestOffset = binary.LittleEndian.Uint64(buf[hdrManifestOffset:])
	h.ManifestSize = binary.LittleEndian.Uint64(buf[hdrManifestSize:])
	h.DataOffset = binary.LittleEndian.Uint64(buf[hdrDataOffset:])
	h.DataSize = binary.LittleEndian.Uint64(buf[hdrDataSize:])

	return h, nil
}

// headerChecksum computes CRC32 over header fields except magic and checksum slots.
func headerChecksum(buf []byte) uint32 {
	sum := crc32.ChecksumIEEE(buf[hdrVersion:hdrChecksum])
	return crc32.Update(sum, crc32.IEEETable, buf[hdrManifestOffset:ComponentHeaderSize])
}

// encode serializes footer, computing checksum over all preceding fields.
func (f Footer) encode() []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(buf[ftrVersion:], f.Version)
	binary.LittleEndian.PutUint64(buf[ftrLauncherSize:], f.LauncherSize)
	binary.LittleEndian.PutUint64(buf[ftrLegacySize:], f.LegacySize)
	binary.LittleEndian.PutUint64(buf[ftrLegacyOffset:], f.LegacyOffset)
	binary.LittleEndian.PutUint64(buf[ftrPayloadOffset:], f.PayloadOffset)
	binary.LittleEndian.PutUint64(buf[ftrPayloadSize:], f.PayloadSize)
	binary.LittleEndian.PutUint64(buf[ftrManifestOffset:], f.ManifestOffset)
	binary.LittleEndian.PutUint64(buf[ftrManifestSize:], f.ManifestSize)
	binary.LittleEndian.PutUint32(buf[ftrChecksum:], crc32.ChecksumIEEE(buf[:ftrChecksum]))
	binary.LittleEndian.PutUint32(buf[ftrMagic:], FooterMagic)

	return buf
}

// decodeFooter parses and validates footer bytes.
func decodeFooter(buf []byte) (Footer, error) {
	var f Footer
	if len(buf) != FooterSize {
		return f, fmt.Errorf("%w: footer must be %d bytes, got %d", ErrInvalidFooter, FooterSize, len(buf))
	}

	if magic := binary.LittleEndian.Uint32(buf[ftrMagic:]); magic != FooterMagic {
		return f, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidFooter, magic)
	}

	f.Checksum = binary.LittleEndian.Uint32(buf[ftrChecksum:])
	if sum := crc32.ChecksumIEEE(buf[:ftrChecksum]); sum != f.Checksum {
		return f, fmt.Errorf("%w: footer stored 0x%08x, computed 0x%08x", ErrChecksumMismatch, f.Checksum, sum)
	}

	f.Version = binary.LittleEndian.Uint32(buf[ftrVersion:])
	f.LauncherSize = binary.LittleEndian.Uint64(buf[ftrLauncherSize:])
	f.LegacySize = binary.LittleEndian.Uint64(buf[ftrLegacySize:])
	f.LegacyOffset = binary.LittleEndian.Uint64(buf[ftrLegacyOffset:])
	f.PayloadOffset = binary.LittleEndian.Uint64(buf[ftrPayloadOffset:])
	f.PayloadSize = binary.LittleEndian.Uint64(buf[ftrPayloadSize:])
	f.ManifestOffset = binary.LittleEndian.Uint64(buf[ftrManifestOffset:])
	f.ManifestSize = binary.LittleEndian.Uint64(buf[ftrManifestSize:])

	return f, nil
}
