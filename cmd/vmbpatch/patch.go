// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/woozymasta/vmbundle"
)

// codecFlags are shared by commands that compress replacement content.
type codecFlags struct {
	codec              string
	replace            []string
	workers            int
	maxReplacementSize int64
}

func (f *codecFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.replace, "replace", "r", nil, "Replacement as COMPONENT:PATH=FILE (repeatable)")
	cmd.Flags().StringVar(&f.codec, "codec", vmbundle.DefaultCodec,
		"Replacement compression codec ("+strings.Join(vmbundle.CodecNames(), ", ")+")")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Parallel replacement preparation workers (0 = GOMAXPROCS)")
	cmd.Flags().Int64Var(&f.maxReplacementSize, "max-replacement-size", vmbundle.DefaultMaxReplacementSize,
		"Maximum raw replacement size in bytes")
}

func (f *codecFlags) patchOptions(g *globalOptions, cmd *cobra.Command) vmbundle.PatchOptions {
	return vmbundle.PatchOptions{
		Logger:             g.logger(cmd.ErrOrStderr()),
		Codec:              f.codec,
		MaxWorkers:         f.workers,
		MaxReplacementSize: f.maxReplacementSize,
	}
}

func newPatchCmd(g *globalOptions) *cobra.Command {
	var (
		flags  codecFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "patch <bundle> -o <output> -r COMPONENT:PATH=FILE...",
		Short: "Write a patched copy of a bundle",
		Long: `The patch command replaces one or more component files and writes a new bundle.
The source bundle is never modified. A failed run may leave a partial output file
that must be discarded.

Example:
  vmbpatch patch installer.bundle -o patched.bundle \
    -r vmware-vmx:lib/modules/source/vmmon.tar=build/vmmon.tar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(cmd, g, &flags, args[0], output)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output bundle path")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runPatch(cmd *cobra.Command, g *globalOptions, flags *codecFlags, source, output string) error {
	if len(flags.replace) == 0 {
		return errors.New("at least one --replace is required")
	}

	reqs, err := parseReplaceSpecs(flags.replace)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := vmbundle.ApplyPatches(ctx, source, reqs, output, flags.patchOptions(g, cmd))
	if err != nil {
		return fmt.Errorf("patch %s: %w", source, err)
	}

	out := cmd.OutOrStdout()
	if g.jsonOut {
		return printJSON(out, res)
	}

	g.printInfo(out, "Patched %d file(s) with %s:\n", len(res.Replacements), res.Codec)
	for _, r := range res.Replacements {
		g.printInfo(out, "  %s:%s  %d -> %d bytes at offset %d\n",
			r.Component, r.Path, r.PreviousSize, r.CompressedSize, r.Offset)
	}
	g.printInfo(out, "Wrote %s (%d bytes, %s)\n", output, res.Write.Size, res.Write.Digest)

	return nil
}
