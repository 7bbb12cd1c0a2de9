// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

var testLauncher = []byte("#!/bin/sh\n# self-extracting launcher\nexit 0\n")

// fixtureEntry is raw stored content of one component file.
type fixtureEntry struct {
	path string
	data []byte
}

// newTestComponent builds a component whose files hold stored (uncompressed) content
// laid out contiguously in argument order.
func newTestComponent(t *testing.T, name string, files ...fixtureEntry) *Component {
	t.Helper()

	entries := make([]*FileEntry, 0, len(files))
	var offset int64
	for _, f := range files {
		e := NewPatchedEntry(f.path, f.data, int64(len(f.data)))
		e.Offset = offset
		offset += e.CompressedSize
		entries = append(entries, e)
	}

	fs, err := NewFileSet(entries...)
	if err != nil {
		t.Fatalf("NewFileSet: %v", err)
	}

	return &Component{
		Name:         name,
		LongName:     "VMware " + name,
		Version:      "17.5.2",
		BuildNumber:  23775571,
		Description:  "test component " + name,
		Platform:     "linux",
		Architecture: "x86_64",
		CoreVersion:  "2.1.0",
		Files:        fs,
	}
}

// newTestBundle returns a bundle with one payload component of three files
// laid out as a.bin[10] b.bin[20] c.bin[5] and one fileless component.
func newTestBundle(t *testing.T) *Bundle {
	t.Helper()

	vmx := newTestComponent(t, "vmware-vmx",
		fixtureEntry{path: "a.bin", data: bytes.Repeat([]byte("a"), 10)},
		fixtureEntry{path: "b.bin", data: bytes.Repeat([]byte("b"), 20)},
		fixtureEntry{path: "c.bin", data: bytes.Repeat([]byte("c"), 5)},
	)
	vmx.Dependencies = []Dependency{{Name: "vmware-installer", Version: "3.1.0"}}
	vmx.OptionalDependencies = []Dependency{{Name: "vmware-tools", Version: "12.0.0", Optional: true}}
	vmx.Conflicts = []Dependency{{Name: "vmware-player", Version: "16.0.0"}}

	installer := &Component{
		Name:        "vmware-installer",
		LongName:    "VMware Installer",
		Version:     "3.1.0",
		BuildNumber: 100,
		Platform:    "linux",
		CoreVersion: "2.1.0",
		EULA:        "You agree.",
	}

	return &Bundle{
		CoreVersion:       "2.1.0",
		ProductComponents: []string{"vmware-installer", "vmware-vmx"},
		Footer:            Footer{LegacySize: 7, LegacyOffset: 3},
		Components:        []*Component{installer, vmx},
	}
}

// packTestBundle serializes b after testLauncher and returns archive bytes.
func packTestBundle(t *testing.T, b *Bundle) []byte {
	t.Helper()

	var buf bytes.Buffer
	if _, err := Pack(&buf, testLauncher, b, WriteOptions{}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	return buf.Bytes()
}

// openTestArchive parses archive bytes held in memory.
func openTestArchive(t *testing.T, data []byte) *Archive {
	t.Helper()

	a, err := NewArchive(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}

	return a
}

// writeTestFile stores data under dir and returns the path.
func writeTestFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}

	return path
}

// layoutOf returns path -> offset of component entries.
func layoutOf(c *Component) map[string]int64 {
	out := make(map[string]int64, c.Files.Len())
	for _, e := range c.Files.Entries() {
		out[e.Path] = e.Offset
	}

	return out
}

// newReversedTestArchive packs a component laid out against path order:
// z.bin[10] y.bin[6] a.bin[5].
func newReversedTestArchive(t *testing.T) *Archive {
	t.Helper()

	vmx := newTestComponent(t, "vmx",
		fixtureEntry{path: "z.bin", data: bytes.Repeat([]byte("z"), 10)},
		fixtureEntry{path: "y.bin", data: bytes.Repeat([]byte("y"), 6)},
		fixtureEntry{path: "a.bin", data: bytes.Repeat([]byte("a"), 5)},
	)

	return openTestArchive(t, packTestBundle(t, &Bundle{Components: []*Component{vmx}}))
}
