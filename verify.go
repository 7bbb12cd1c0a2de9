// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// VerifyReport summarizes structural checks of one archive.
type VerifyReport struct {
	Digest     digest.Digest     `json:"digest" yaml:"digest"`
	Components []ComponentResult `json:"components" yaml:"components"`
	Size       int64             `json:"size" yaml:"size"`
	Entries    int               `json:"entries" yaml:"entries"`
}

// Verify checks that every component fileset tiles its payload region exactly
// and computes archive digest. Footer and header checksums are checked by the reader.
func Verify(a *Archive) (*VerifyReport, error) {
	if a == nil || a.bundle == nil {
		return nil, ErrNilReader
	}

	report := &VerifyReport{
		Size:       a.size,
		Components: make([]ComponentResult, 0, len(a.bundle.Components)),
	}

	for _, c := range a.bundle.Components {
		if err := c.Files.CheckTiling(); err != nil {
			return nil, fmt.Errorf("component %s: %w", c.Name, err)
		}

		if total := c.Files.TotalSize(); total != c.dataSize {
			return nil, fmt.Errorf("%w: component %s entries cover %d bytes, payload is %d", ErrLayoutGap, c.Name, total, c.dataSize)
		}

		// Component start is payload offset plus component location; range checked by reader.
		start := int64(a.bundle.Footer.PayloadOffset) + c.offset //nolint:gosec // see above
		report.Entries += c.Files.Len()
		report.Components = append(report.Components, ComponentResult{
			Name:         c.Name,
			Offset:       c.offset,
			Size:         c.dataStart - start + c.dataSize,
			ManifestSize: c.dataStart - start - ComponentHeaderSize,
			DataSize:     c.dataSize,
			Entries:      c.Files.Len(),
		})
	}

	dgst, err := digest.Canonical.FromReader(io.NewSectionReader(a.ra, 0, a.size))
	if err != nil {
		return nil, fmt.Errorf("%w: digest: %w", ErrSourceRead, err)
	}
	report.Digest = dgst

	return report, nil
}
