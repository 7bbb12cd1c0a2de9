// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"github.com/spf13/cobra"
	"github.com/woozymasta/vmbundle"
)

func newVerifyCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <bundle>",
		Short: "Check footer, header checksums and fileset layout",
		Long: `The verify command parses a bundle, validating footer and component header
checksums, and checks that every component fileset tiles its payload region.

Example:
  vmbpatch verify patched.bundle --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, g, args[0])
		},
	}
}

func runVerify(cmd *cobra.Command, g *globalOptions, source string) error {
	a, err := vmbundle.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report, err := vmbundle.Verify(a)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if g.jsonOut {
		return printJSON(out, report)
	}

	g.printInfo(out, "OK %s\n", source)
	g.printInfo(out, "  Size: %d bytes\n", report.Size)
	g.printInfo(out, "  Digest: %s\n", report.Digest)
	g.printInfo(out, "  Components: %d, entries: %d\n", len(report.Components), report.Entries)
	for _, c := range report.Components {
		g.printInfo(out, "    %s: offset %d, size %d, %d entries\n", c.Name, c.Offset, c.Size, c.Entries)
	}

	return nil
}
