// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

/*
Package vmbundle patches installer bundle archives: it replaces the content of
named files inside components and re-emits an archive whose manifests, offsets,
sizes and checksums are consistent with the new payload. Unmodified payload is
streamed from the source archive with a bounded transfer buffer, so memory use
does not depend on archive size.

Archive layout (all integers little-endian):

	[launcher prefix] [bundle manifest] [component 0] ... [component N-1] [footer]

Every component block is a fixed 44-byte header (magic, version, CRC32, manifest
and payload locations), an XML manifest listing its files, and the packed payload
region. The 68-byte footer locates bundle manifest and payload and carries
launcher and legacy fields copied verbatim from the source.

# Reading

	a, err := vmbundle.Open("installer.bundle")
	if err != nil {
	    return err
	}
	defer a.Close()
	for _, c := range a.Bundle().Components {
	    for _, e := range c.Files.Entries() {
	        // use e.Path, e.Offset, e.CompressedSize
	    }
	}

Decode one entry with the codec it was stored with:

	codec, _ := vmbundle.CodecByName(vmbundle.CodecZlib)
	data, err := a.ReadEntry("vmware-vmx", "lib/modules/source/vmmon.tar", codec)

# Patching

Replace files and write a new archive in one call:

	res, err := vmbundle.ApplyPatches(ctx, "installer.bundle", []vmbundle.PatchRequest{
	    vmbundle.FileRequest("vmware-vmx", "lib/modules/source/vmmon.tar", "build/vmmon.tar"),
	}, "patched.bundle", vmbundle.PatchOptions{
	    Codec:  vmbundle.CodecZlib,
	    Logger: slog.Default(),
	})
	_ = res.Write.Digest

Lower-level flow with explicit planning:

	reps, err := vmbundle.PrepareReplacements(ctx, reqs, vmbundle.PatchOptions{})
	planned, err := vmbundle.Plan(a.Bundle(), reps)
	res, err := vmbundle.WriteBundle(out, a.ReaderAt(), planned, vmbundle.WriteOptions{})

The planner recomputes offsets in one pass per component: entries are walked in
offset order and every entry after a replacement moves by the accumulated size
difference. Source and destination must be different files.

# Listing

Select entries with github.com/woozymasta/pathrules rules:

	selected, err := vmbundle.FilterEntries(c.Files.Entries(), []pathrules.Rule{
	    {Action: pathrules.ActionInclude, Pattern: "lib/modules/**"},
	}, pathrules.MatcherOptions{})
*/
package vmbundle
