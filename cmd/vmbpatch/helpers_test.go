// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/vmbundle"
)

// writeTestBundle packs a small bundle into dir and returns its path.
func writeTestBundle(t *testing.T, dir string) string {
	t.Helper()

	entries := []*vmbundle.FileEntry{
		vmbundle.NewPatchedEntry("bin/vmware", []byte("ELF"), 3),
		vmbundle.NewPatchedEntry("lib/modules/source/vmmon.tar", []byte("vmmon-original"), 14),
		vmbundle.NewPatchedEntry("lib/modules/source/vmnet.tar", []byte("vmnet-original"), 14),
	}
	var offset int64
	for _, e := range entries {
		e.Offset = offset
		offset += e.CompressedSize
	}

	fs, err := vmbundle.NewFileSet(entries...)
	require.NoError(t, err)

	b := &vmbundle.Bundle{
		CoreVersion:       "2.1.0",
		ProductComponents: []string{"vmware-vmx"},
		Components: []*vmbundle.Component{
			{Name: "vmware-installer", Version: "3.1.0", EULA: "terms"},
			{
				Name:         "vmware-vmx",
				Version:      "17.5.2",
				Dependencies: []vmbundle.Dependency{{Name: "vmware-installer", Version: "3.1.0"}},
				Files:        fs,
			},
		},
	}

	var buf bytes.Buffer
	_, err = vmbundle.Pack(&buf, []byte("#!/bin/sh\nexit 0\n"), b, vmbundle.WriteOptions{})
	require.NoError(t, err)

	path := filepath.Join(dir, "in.bundle")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return path
}

// runCmd executes the root command with args and returns captured stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}
