// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// globalOptions are persistent flags shared by all subcommands.
type globalOptions struct {
	verbose bool
	quiet   bool
	jsonOut bool
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "vmbpatch",
		Short: "Replace files inside installer bundle archives",
		Long: `vmbpatch rewrites installer bundle archives with replaced component files.
Offsets, sizes, manifests and checksums of the output are recomputed so that the
result reads as an ordinary, unpatched bundle.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&g.quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		newPatchCmd(g),
		newManifestCmd(g),
		newLsCmd(g),
		newVerifyCmd(g),
	)

	return rootCmd
}

// logger returns stderr text logger honoring verbosity flags.
func (g *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	if g.quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// printInfo prints an info message if not in quiet mode
func (g *globalOptions) printInfo(w io.Writer, format string, args ...any) {
	if !g.quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
