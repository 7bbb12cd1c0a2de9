// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import "fmt"

// Plan builds a new bundle where requested entries carry replacement payloads
// and every entry offset is recomputed from cumulative sizes in layout order.
//
// The input bundle is never mutated. Unmodified entries keep their source location
// and the new components link back to the input components through Origin.
func Plan(b *Bundle, reps []Replacement) (*Bundle, error) {
	if b == nil {
		return nil, ErrNilBundle
	}

	byComponent, err := indexReplacements(b, reps)
	if err != nil {
		return nil, err
	}

	out := &Bundle{
		CoreVersion:       b.CoreVersion,
		ProductComponents: append([]string(nil), b.ProductComponents...),
		Footer:            b.Footer,
		Components:        make([]*Component, 0, len(b.Components)),
	}

	for _, c := range b.Components {
		planned := c.cloneScalars()
		planned.Origin = c

		if c.Files != nil {
			fs, err := planFileSet(c, byComponent[c.Name])
			if err != nil {
				return nil, err
			}
			planned.Files = fs
		}

		out.Components = append(out.Components, planned)
	}

	return out, nil
}

// indexReplacements validates targets and groups replacements by component and resolved entry path.
func indexReplacements(b *Bundle, reps []Replacement) (map[string]map[string]Replacement, error) {
	byComponent := make(map[string]map[string]Replacement)
	for _, rep := range reps {
		c := b.Component(rep.Component)
		if c == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, rep.Component)
		}

		e, ok := c.Files.Lookup(rep.Path)
		if !ok {
			return nil, fmt.Errorf("%w: component %s has no entry %q", ErrUnknownFile, rep.Component, rep.Path)
		}

		paths := byComponent[rep.Component]
		if paths == nil {
			paths = make(map[string]Replacement)
			byComponent[rep.Component] = paths
		}

		if _, dup := paths[e.Path]; dup {
			return nil, fmt.Errorf("%w: component %s entry %q", ErrDuplicateReplacement, rep.Component, e.Path)
		}
		paths[e.Path] = rep
	}

	return byComponent, nil
}

// planFileSet walks entries in layout order carrying a running offset shift.
func planFileSet(c *Component, reps map[string]Replacement) (*FileSet, error) {
	entries := c.Files.Entries()
	planned := make([]*FileEntry, 0, len(entries))

	var shift int64
	for _, e := range entries {
		offset := e.Offset + shift

		rep, ok := reps[e.Path]
		if !ok {
			planned = append(planned, e.movedTo(offset))
			continue
		}

		patched := NewPatchedEntry(e.Path, rep.Data, rep.UncompressedSize)
		patched.Offset = offset
		planned = append(planned, patched)

		shift += patched.CompressedSize - e.CompressedSize
	}

	fs, err := NewFileSet(planned...)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", c.Name, err)
	}

	return fs, nil
}
