// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/vmbundle"
)

func TestParseReplaceSpec(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		component string
		path      string
		wantErr   bool
	}{
		{name: "simple", spec: "vmware-vmx:lib/a.tar=./a.tar", component: "vmware-vmx", path: "lib/a.tar"},
		{name: "equals in file", spec: "c:p=dir/x=y", component: "c", path: "p"},
		{name: "colon in file", spec: "c:p=C:/x", component: "c", path: "p"},
		{name: "spaces trimmed", spec: " c : p = f ", component: "c", path: "p"},
		{name: "no colon", spec: "c-p=f", wantErr: true},
		{name: "no equals", spec: "c:p", wantErr: true},
		{name: "empty file", spec: "c:p=", wantErr: true},
		{name: "empty component", spec: ":p=f", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseReplaceSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.component, req.Component)
			assert.Equal(t, tt.path, req.Path)
			assert.NotNil(t, req.Open)
		})
	}
}

func TestPatchCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeTestBundle(t, dir)
	repl := filepath.Join(dir, "vmmon.tar")
	require.NoError(t, os.WriteFile(repl, []byte("vmmon-rebuilt-for-6.18"), 0o600))
	dst := filepath.Join(dir, "out.bundle")

	out, err := runCmd(t, "patch", src, "-o", dst, "--codec", "store", "--json",
		"-r", "vmware-vmx:lib/modules/source/vmmon.tar="+repl)
	require.NoError(t, err)

	var res vmbundle.PatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "store", res.Codec)
	require.Len(t, res.Replacements, 1)
	assert.Equal(t, int64(14), res.Replacements[0].PreviousSize)
	assert.Equal(t, int64(22), res.Replacements[0].CompressedSize)
	assert.Equal(t, 1, res.Write.PatchedEntries)
	assert.Equal(t, 2, res.Write.CopiedEntries)

	a, err := vmbundle.Open(dst)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	got, err := a.ReadEntryRaw("vmware-vmx", "lib/modules/source/vmmon.tar")
	require.NoError(t, err)
	assert.Equal(t, "vmmon-rebuilt-for-6.18", string(got))
}

func TestPatchCommandErrors(t *testing.T) {
	dir := t.TempDir()
	src := writeTestBundle(t, dir)
	dst := filepath.Join(dir, "out.bundle")

	_, err := runCmd(t, "patch", src, "-o", dst)
	assert.Error(t, err)

	_, err = runCmd(t, "patch", src, "-o", dst, "-r", "vmware-vmx:missing=/dev/null")
	assert.ErrorIs(t, err, vmbundle.ErrUnknownFile)
	assert.NoFileExists(t, dst)

	_, err = runCmd(t, "patch", src, "-o", src, "-r", "vmware-vmx:bin/vmware=/dev/null")
	assert.ErrorIs(t, err, vmbundle.ErrSamePath)
}

func TestManifestCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeTestBundle(t, dir)
	repl := filepath.Join(dir, "vmware")
	require.NoError(t, os.WriteFile(repl, []byte("ELF-new-binary"), 0o600))

	out, err := runCmd(t, "manifest", src)
	require.NoError(t, err)
	assert.Contains(t, out, `<bundle>`)
	assert.Contains(t, out, `<component name="vmware-vmx" offset=`)

	out, err = runCmd(t, "manifest", src, "--component", "vmware-vmx", "--codec", "store",
		"-r", "vmware-vmx:bin/vmware="+repl)
	require.NoError(t, err)
	assert.Contains(t, out, `<file path="bin/vmware" compressedSize="14" uncompressedSize="14" offset="0"></file>`)
	assert.Contains(t, out, `<file path="lib/modules/source/vmmon.tar" compressedSize="14" uncompressedSize="14" offset="14"></file>`)
	assert.Contains(t, out, `optional="false"`)

	_, err = runCmd(t, "manifest", src, "--component", "vmware-nope")
	assert.ErrorIs(t, err, vmbundle.ErrUnknownComponent)
}

func TestLsCommand(t *testing.T) {
	src := writeTestBundle(t, t.TempDir())

	out, err := runCmd(t, "ls", src)
	require.NoError(t, err)
	assert.Contains(t, out, "COMPONENT")
	assert.Contains(t, out, "bin/vmware")
	assert.Contains(t, out, "lib/modules/source/vmnet.tar")

	out, err = runCmd(t, "ls", src, "--json", "--include", "*.tar", "--exclude", "vmnet.tar")
	require.NoError(t, err)

	var rows []listedEntry
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "lib/modules/source/vmmon.tar", rows[0].Path)
	assert.Equal(t, "vmware-vmx", rows[0].Component)

	_, err = runCmd(t, "ls", src, "--component", "vmware-nope")
	assert.ErrorIs(t, err, vmbundle.ErrUnknownComponent)
}

func TestVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeTestBundle(t, dir)

	out, err := runCmd(t, "verify", src)
	require.NoError(t, err)
	assert.Contains(t, out, "OK ")
	assert.Contains(t, out, "vmware-vmx")

	out, err = runCmd(t, "verify", src, "--json")
	require.NoError(t, err)

	var report vmbundle.VerifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Entries)
	assert.Len(t, report.Components, 2)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	data[len(data)-10] ^= 0xff
	corrupt := filepath.Join(dir, "corrupt.bundle")
	require.NoError(t, os.WriteFile(corrupt, data, 0o600))

	_, err = runCmd(t, "verify", corrupt)
	assert.ErrorIs(t, err, vmbundle.ErrChecksumMismatch)
}
