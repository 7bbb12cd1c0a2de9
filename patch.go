// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// ReplacementResult describes one applied replacement.
type ReplacementResult struct {
	Component        string `json:"component" yaml:"component"`
	Path             string `json:"path" yaml:"path"`
	Offset           int64  `json:"offset" yaml:"offset"`
	PreviousSize     int64  `json:"previous_size" yaml:"previous_size"`
	CompressedSize   int64  `json:"compressed_size" yaml:"compressed_size"`
	UncompressedSize int64  `json:"uncompressed_size" yaml:"uncompressed_size"`
}

// PatchResult contains orchestrated patch output.
type PatchResult struct {
	Write        *WriteResult        `json:"write" yaml:"write"`
	Codec        string              `json:"codec" yaml:"codec"`
	Replacements []ReplacementResult `json:"replacements" yaml:"replacements"`
}

// FileRequest builds a patch request reading replacement content from a local file.
func FileRequest(component, entryPath, fsPath string) PatchRequest {
	return PatchRequest{
		Component: component,
		Path:      entryPath,
		Open: func() (io.ReadCloser, error) {
			return os.Open(fsPath)
		},
	}
}

// ApplyPatches writes a patched copy of the archive at sourcePath to destinationPath.
//
// Request targets are validated before destination is created. On a write failure the
// partially written destination is left in place and must be discarded by the caller.
// The source file is never modified.
func ApplyPatches(
	ctx context.Context,
	sourcePath string,
	reqs []PatchRequest,
	destinationPath string,
	opts PatchOptions,
) (*PatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	log := opts.Logger

	if err := checkDistinctPaths(sourcePath, destinationPath); err != nil {
		return nil, err
	}

	a, err := Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	planned, reps, err := planPatches(ctx, a, reqs, opts)
	if err != nil {
		return nil, err
	}

	mode := os.FileMode(0o644)
	if a.file != nil {
		if fi, err := a.file.Stat(); err == nil {
			mode = fi.Mode().Perm()
		}
	}

	dst, err := os.OpenFile(destinationPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: create destination: %w", ErrDestinationWrite, err)
	}
	defer func() {
		if dst != nil {
			_ = dst.Close()
		}
	}()

	bw := bufio.NewWriterSize(dst, opts.WriterBufferSize)
	res, err := WriteBundle(bw, a.ReaderAt(), planned, opts.WriteOptions)
	if err != nil {
		log.Error("bundle write failed", "destination", destinationPath, "error", err)
		return nil, err
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flush destination: %w", ErrDestinationWrite, err)
	}
	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("%w: sync destination: %w", ErrDestinationWrite, err)
	}
	if err := dst.Close(); err != nil {
		return nil, fmt.Errorf("%w: close destination: %w", ErrDestinationWrite, err)
	}
	dst = nil

	log.Info("bundle written",
		"source", sourcePath,
		"destination", destinationPath,
		"size", res.Size,
		"digest", res.Digest.String(),
		"patched", res.PatchedEntries,
		"copied", res.CopiedEntries,
		"duration", res.Duration,
	)

	return &PatchResult{
		Write:        res,
		Codec:        opts.Codec,
		Replacements: replacementResults(a.Bundle(), planned, reps),
	}, nil
}

// PlanPatches validates requests against the archive, compresses replacement content
// and returns the planned bundle ready for WriteBundle with a.ReaderAt() as source.
func PlanPatches(ctx context.Context, a *Archive, reqs []PatchRequest, opts PatchOptions) (*Bundle, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()

	planned, _, err := planPatches(ctx, a, reqs, opts)
	return planned, err
}

// planPatches runs validation, preparation and planning with defaults applied.
func planPatches(ctx context.Context, a *Archive, reqs []PatchRequest, opts PatchOptions) (*Bundle, []Replacement, error) {
	if a == nil || a.bundle == nil {
		return nil, nil, ErrNilReader
	}

	if err := validateRequests(a.bundle, reqs); err != nil {
		return nil, nil, err
	}

	reps, err := PrepareReplacements(ctx, reqs, opts)
	if err != nil {
		return nil, nil, err
	}

	planned, err := Plan(a.bundle, reps)
	if err != nil {
		return nil, nil, err
	}

	opts.Logger.Info("bundle planned", "components", len(planned.Components), "replacements", len(reps), "codec", opts.Codec)
	return planned, reps, nil
}

// PrepareReplacements reads and compresses request content with bounded parallelism.
// Result order matches request order.
func PrepareReplacements(ctx context.Context, reqs []PatchRequest, opts PatchOptions) ([]Replacement, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()

	codec, err := CodecByName(opts.Codec)
	if err != nil {
		return nil, err
	}

	out := make([]Replacement, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)

	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rep, err := prepareReplacement(reqs[i], codec, opts.MaxReplacementSize)
			if err != nil {
				return err
			}

			opts.Logger.Debug("replacement prepared",
				"component", rep.Component,
				"path", rep.Path,
				"raw", rep.UncompressedSize,
				"compressed", len(rep.Data),
			)

			out[i] = rep
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// prepareReplacement reads one request content within limit and compresses it.
func prepareReplacement(req PatchRequest, codec Compressor, limit int64) (Replacement, error) {
	if req.Open == nil {
		return Replacement{}, fmt.Errorf("request %s:%s: Open is nil", req.Component, req.Path)
	}

	rc, err := req.Open()
	if err != nil {
		return Replacement{}, fmt.Errorf("open replacement %s:%s: %w", req.Component, req.Path, err)
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return Replacement{}, fmt.Errorf("read replacement %s:%s: %w", req.Component, req.Path, err)
	}
	if int64(len(raw)) > limit {
		return Replacement{}, fmt.Errorf("%w: %s:%s exceeds %d bytes", ErrReplacementTooLarge, req.Component, req.Path, limit)
	}

	compressed, err := codec.Compress(raw)
	if err != nil {
		return Replacement{}, fmt.Errorf("compress replacement %s:%s: %w", req.Component, req.Path, err)
	}

	return Replacement{
		Component:        req.Component,
		Path:             req.Path,
		Data:             compressed,
		UncompressedSize: int64(len(raw)),
	}, nil
}

// validateRequests checks targets exist before any content is read.
func validateRequests(b *Bundle, reqs []PatchRequest) error {
	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		c := b.Component(req.Component)
		if c == nil {
			return fmt.Errorf("%w: %q", ErrUnknownComponent, req.Component)
		}

		e, ok := c.Files.Lookup(req.Path)
		if !ok {
			return fmt.Errorf("%w: component %s has no entry %q", ErrUnknownFile, req.Component, req.Path)
		}

		key := replacementKey(req.Component, e.Path)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: component %s entry %q", ErrDuplicateReplacement, req.Component, req.Path)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// replacementResults pairs applied replacements with their old and new entries.
func replacementResults(original, planned *Bundle, reps []Replacement) []ReplacementResult {
	out := make([]ReplacementResult, 0, len(reps))
	for _, rep := range reps {
		before, _ := original.Component(rep.Component).Files.Lookup(rep.Path)
		after, _ := planned.Component(rep.Component).Files.Lookup(rep.Path)

		out = append(out, ReplacementResult{
			Component:        rep.Component,
			Path:             after.Path,
			Offset:           after.Offset,
			PreviousSize:     before.CompressedSize,
			CompressedSize:   after.CompressedSize,
			UncompressedSize: after.UncompressedSize,
		})
	}

	return out
}

// checkDistinctPaths rejects destination resolving to the source file.
func checkDistinctPaths(sourcePath, destinationPath string) error {
	srcAbs, err := filepath.Abs(sourcePath)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}

	dstAbs, err := filepath.Abs(destinationPath)
	if err != nil {
		return fmt.Errorf("resolve destination path: %w", err)
	}

	if srcAbs == dstAbs {
		return fmt.Errorf("%w: %s", ErrSamePath, srcAbs)
	}

	srcInfo, srcErr := os.Stat(sourcePath)
	dstInfo, dstErr := os.Stat(destinationPath)
	if srcErr == nil && dstErr == nil && os.SameFile(srcInfo, dstInfo) {
		return fmt.Errorf("%w: %s and %s", ErrSamePath, sourcePath, destinationPath)
	}

	return nil
}
