// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/woozymasta/lzss"
)

// Registered codec names.
const (
	CodecZlib  = "zlib"
	CodecZstd  = "zstd"
	CodecLZ4   = "lz4"
	CodecLZSS  = "lzss"
	CodecStore = "store"
)

// Compressor produces a deterministic compressed representation of raw bytes.
type Compressor interface {
	Compress(raw []byte) ([]byte, error)
}

// Decompressor restores raw bytes of known size.
type Decompressor interface {
	Decompress(data []byte, size int64) ([]byte, error)
}

// Codec is a named compressor and decompressor pair.
type Codec interface {
	Compressor
	Decompressor
	Name() string
}

var codecs = map[string]Codec{
	CodecZlib:  zlibCodec{},
	CodecZstd:  zstdCodec{},
	CodecLZ4:   lz4Codec{},
	CodecLZSS:  lzssCodec{},
	CodecStore: storeCodec{},
}

// CodecByName resolves a registered codec.
func CodecByName(name string) (Codec, error) {
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}

	return c, nil
}

// CodecNames returns registered codec names in sorted order.
func CodecNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// checkDecompressedSize verifies decoded length against declared size.
func checkDecompressedSize(codec string, out []byte, size int64) ([]byte, error) {
	if int64(len(out)) != size {
		return nil, fmt.Errorf("%w: %s decoded %d bytes, declared %d", ErrSizeMismatch, codec, len(out), size)
	}

	return out, nil
}

// zlibCodec matches the installer's native entry compression.
type zlibCodec struct{}

func (zlibCodec) Name() string { return CodecZlib }

func (zlibCodec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}

	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}

	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(data []byte, size int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer func() { _ = zr.Close() }()

	out, err := io.ReadAll(io.LimitReader(zr, size+1))
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}

	return checkDecompressedSize(CodecZlib, out, size)
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return CodecZstd }

func (zstdCodec) Compress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer func() { _ = enc.Close() }()

	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2+64)), nil
}

func (zstdCodec) Decompress(data []byte, size int64) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}

	return checkDecompressedSize(CodecZstd, out, size)
}

// lz4Codec uses the framed LZ4 format so payloads are self-delimiting.
type lz4Codec struct{}

func (lz4Codec) Name() string { return CodecLZ4 }

func (lz4Codec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}

	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(data []byte, size int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), size+1))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}

	return checkDecompressedSize(CodecLZ4, out, size)
}

type lzssCodec struct{}

func (lzssCodec) Name() string { return CodecLZSS }

func (lzssCodec) Compress(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return []byte{}, nil
	}

	return lzss.Compress(raw, lzss.DefaultCompressOptions())
}

func (lzssCodec) Decompress(data []byte, size int64) ([]byte, error) {
	outLen, err := checkedInt64ToInt(size)
	if err != nil {
		return nil, err
	}
	if outLen == 0 && len(data) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	buf.Grow(outLen)
	if _, err := lzss.DecompressToWriter(&buf, bytes.NewReader(data), outLen, nil); err != nil {
		return nil, fmt.Errorf("lzss decompress: %w", err)
	}

	return checkDecompressedSize(CodecLZSS, buf.Bytes(), size)
}

// storeCodec keeps content as is.
type storeCodec struct{}

func (storeCodec) Name() string { return CodecStore }

func (storeCodec) Compress(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (storeCodec) Decompress(data []byte, size int64) ([]byte, error) {
	return checkDecompressedSize(CodecStore, data, size)
}

// checkedInt64ToInt converts size to int with platform-safe overflow check.
func checkedInt64ToInt(v int64) (int, error) {
	if v < 0 || v != int64(int(v)) {
		return 0, fmt.Errorf("%w: size %d out of int range", ErrReplacementTooLarge, v)
	}

	return int(v), nil
}
