// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/woozymasta/pathrules"
	"github.com/woozymasta/vmbundle"
)

// listedEntry is one ls output row.
type listedEntry struct {
	Component        string `json:"component"`
	Path             string `json:"path"`
	Offset           int64  `json:"offset"`
	CompressedSize   int64  `json:"compressed_size"`
	UncompressedSize int64  `json:"uncompressed_size"`
}

func newLsCmd(g *globalOptions) *cobra.Command {
	var (
		component string
		include   []string
		exclude   []string
	)

	cmd := &cobra.Command{
		Use:   "ls <bundle>",
		Short: "List component files",
		Long: `The ls command lists files of every component, or of one component.
Include and exclude patterns follow gitignore-like path rules; excludes win.

Example:
  vmbpatch ls installer.bundle --component vmware-vmx --include 'lib/modules/**'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd, g, args[0], component, buildRules(include, exclude))
		},
	}

	cmd.Flags().StringVar(&component, "component", "", "List only this component")
	cmd.Flags().StringArrayVar(&include, "include", nil, "Include path pattern (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Exclude path pattern (repeatable)")

	return cmd
}

// buildRules orders includes before excludes so excludes take precedence.
func buildRules(include, exclude []string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(include)+len(exclude))
	for _, p := range include {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}
	for _, p := range exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: p})
	}

	return rules
}

func runLs(cmd *cobra.Command, g *globalOptions, source, component string, rules []pathrules.Rule) error {
	a, err := vmbundle.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	components := a.Bundle().Components
	if component != "" {
		c := a.Bundle().Component(component)
		if c == nil {
			return fmt.Errorf("%w: %q", vmbundle.ErrUnknownComponent, component)
		}
		components = []*vmbundle.Component{c}
	}

	rows := make([]listedEntry, 0)
	for _, c := range components {
		selected, err := vmbundle.FilterEntries(c.Files.Entries(), rules, pathrules.MatcherOptions{})
		if err != nil {
			return err
		}

		for _, e := range selected {
			rows = append(rows, listedEntry{
				Component:        c.Name,
				Path:             e.Path,
				Offset:           e.Offset,
				CompressedSize:   e.CompressedSize,
				UncompressedSize: e.UncompressedSize,
			})
		}
	}

	out := cmd.OutOrStdout()
	if g.jsonOut {
		return printJSON(out, rows)
	}
	if g.quiet {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tOFFSET\tCOMPRESSED\tSIZE\tPATH")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", r.Component, r.Offset, r.CompressedSize, r.UncompressedSize, r.Path)
	}

	return tw.Flush()
}
