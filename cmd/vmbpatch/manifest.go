// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/woozymasta/vmbundle"
)

func newManifestCmd(g *globalOptions) *cobra.Command {
	var (
		flags     codecFlags
		component string
	)

	cmd := &cobra.Command{
		Use:   "manifest <bundle>",
		Short: "Print the bundle or component manifest, optionally after replacements",
		Long: `The manifest command prints the manifest that a patched bundle would carry.
Without --replace it renders the manifest of the bundle as is.

Example:
  vmbpatch manifest installer.bundle
  vmbpatch manifest installer.bundle --component vmware-vmx \
    -r vmware-vmx:lib/modules/source/vmmon.tar=build/vmmon.tar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(cmd, g, &flags, args[0], component)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&component, "component", "", "Render manifest of one component")

	return cmd
}

func runManifest(cmd *cobra.Command, g *globalOptions, flags *codecFlags, source, component string) error {
	reqs, err := parseReplaceSpecs(flags.replace)
	if err != nil {
		return err
	}

	a, err := vmbundle.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	planned, err := vmbundle.PlanPatches(ctx, a, reqs, flags.patchOptions(g, cmd))
	if err != nil {
		return fmt.Errorf("plan %s: %w", source, err)
	}

	var doc []byte
	if component == "" {
		doc, err = vmbundle.RenderBundleManifest(planned)
	} else {
		c := planned.Component(component)
		if c == nil {
			return fmt.Errorf("%w: %q", vmbundle.ErrUnknownComponent, component)
		}
		doc, err = vmbundle.RenderComponentManifest(c)
	}
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(doc)
	return err
}
