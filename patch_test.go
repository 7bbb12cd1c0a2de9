// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyPatches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeTestFile(t, dir, "in.bundle", packTestBundle(t, newTestBundle(t)))
	newB := bytes.Repeat([]byte("obj-m += vmmon.o\n"), 64)
	repl := writeTestFile(t, dir, "b.new", newB)
	dst := filepath.Join(dir, "out.bundle")

	for _, codec := range CodecNames() {
		t.Run(codec, func(t *testing.T) {
			out := dst + "." + codec
			res, err := ApplyPatches(context.Background(), src, []PatchRequest{
				FileRequest("vmware-vmx", "b.bin", repl),
			}, out, PatchOptions{Codec: codec, MaxWorkers: 2})
			if err != nil {
				t.Fatalf("ApplyPatches: %v", err)
			}

			if res.Codec != codec || len(res.Replacements) != 1 {
				t.Fatalf("result=%+v", res)
			}
			r := res.Replacements[0]
			if r.Offset != 10 || r.PreviousSize != 20 || r.UncompressedSize != int64(len(newB)) {
				t.Fatalf("replacement=%+v", r)
			}

			a, err := Open(out)
			if err != nil {
				t.Fatalf("Open patched: %v", err)
			}
			defer func() { _ = a.Close() }()

			c, _ := CodecByName(codec)
			got, err := a.ReadEntry("vmware-vmx", "b.bin", c)
			if err != nil {
				t.Fatalf("ReadEntry: %v", err)
			}
			if !bytes.Equal(got, newB) {
				t.Fatal("patched content mismatch")
			}

			tail, err := a.ReadEntry("vmware-vmx", "c.bin", storeCodec{})
			if err != nil {
				t.Fatalf("ReadEntry c.bin: %v", err)
			}
			if string(tail) != "ccccc" {
				t.Fatalf("c.bin=%q", tail)
			}

			e, _ := a.Bundle().Component("vmware-vmx").Files.Lookup("c.bin")
			if e.Offset != 10+r.CompressedSize {
				t.Fatalf("c.bin offset=%d, want %d", e.Offset, 10+r.CompressedSize)
			}

			if _, err := Verify(a); err != nil {
				t.Fatalf("Verify: %v", err)
			}
		})
	}
}

func TestApplyPatchesLeavesSourceUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	original := packTestBundle(t, newTestBundle(t))
	src := writeTestFile(t, dir, "in.bundle", original)
	repl := writeTestFile(t, dir, "a.new", []byte("tiny"))

	if _, err := ApplyPatches(context.Background(), src, []PatchRequest{
		FileRequest("vmware-vmx", "a.bin", repl),
	}, filepath.Join(dir, "out.bundle"), PatchOptions{}); err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}

	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(after, original) {
		t.Fatal("source archive modified")
	}
}

func TestApplyPatchesValidatesBeforeCreatingDestination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeTestFile(t, dir, "in.bundle", packTestBundle(t, newTestBundle(t)))
	repl := writeTestFile(t, dir, "x.new", []byte("x"))

	testCases := []struct {
		name string
		req  PatchRequest
		want error
	}{
		{name: "unknown component", req: FileRequest("vmware-nope", "a.bin", repl), want: ErrUnknownComponent},
		{name: "unknown file", req: FileRequest("vmware-vmx", "nope.bin", repl), want: ErrUnknownFile},
		{name: "fileless component", req: FileRequest("vmware-installer", "a.bin", repl), want: ErrUnknownFile},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dst := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "-")+".bundle")
			_, err := ApplyPatches(context.Background(), src, []PatchRequest{tc.req}, dst, PatchOptions{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("ApplyPatches err=%v, want %v", err, tc.want)
			}

			if _, err := os.Stat(dst); !os.IsNotExist(err) {
				t.Fatalf("destination exists after validation failure: %v", err)
			}
		})
	}
}

func TestApplyPatchesRejectsDuplicates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeTestFile(t, dir, "in.bundle", packTestBundle(t, newTestBundle(t)))
	repl := writeTestFile(t, dir, "x.new", []byte("x"))

	_, err := ApplyPatches(context.Background(), src, []PatchRequest{
		FileRequest("vmware-vmx", "a.bin", repl),
		FileRequest("vmware-vmx", "/a.bin", repl),
	}, filepath.Join(dir, "out.bundle"), PatchOptions{})
	if !errors.Is(err, ErrDuplicateReplacement) {
		t.Fatalf("ApplyPatches err=%v, want ErrDuplicateReplacement", err)
	}
}

func TestApplyPatchesSamePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeTestFile(t, dir, "in.bundle", packTestBundle(t, newTestBundle(t)))
	repl := writeTestFile(t, dir, "x.new", []byte("x"))

	alias := filepath.Join(dir, ".", "in.bundle")
	_, err := ApplyPatches(context.Background(), src, []PatchRequest{
		FileRequest("vmware-vmx", "a.bin", repl),
	}, alias, PatchOptions{})
	if !errors.Is(err, ErrSamePath) {
		t.Fatalf("ApplyPatches err=%v, want ErrSamePath", err)
	}
}

func TestPrepareReplacementsLimits(t *testing.T) {
	t.Parallel()

	big := PatchRequest{
		Component: "vmware-vmx",
		Path:      "a.bin",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(make([]byte, 1025))), nil
		},
	}

	_, err := PrepareReplacements(context.Background(), []PatchRequest{big}, PatchOptions{MaxReplacementSize: 1024})
	if !errors.Is(err, ErrReplacementTooLarge) {
		t.Fatalf("PrepareReplacements err=%v, want ErrReplacementTooLarge", err)
	}

	_, err = PrepareReplacements(context.Background(), []PatchRequest{big}, PatchOptions{Codec: "rar"})
	if !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("PrepareReplacements err=%v, want ErrUnknownCodec", err)
	}

	_, err = PrepareReplacements(context.Background(), []PatchRequest{{Component: "c", Path: "p"}}, PatchOptions{})
	if err == nil {
		t.Fatal("PrepareReplacements with nil Open succeeded")
	}
}

func TestPrepareReplacementsKeepsOrder(t *testing.T) {
	t.Parallel()

	reqs := make([]PatchRequest, 0, 16)
	for i := range 16 {
		payload := bytes.Repeat([]byte{byte('a' + i)}, i+1)
		reqs = append(reqs, PatchRequest{
			Component: "c",
			Path:      string(rune('a' + i)),
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(payload)), nil
			},
		})
	}

	reps, err := PrepareReplacements(context.Background(), reqs, PatchOptions{Codec: CodecStore, MaxWorkers: 4})
	if err != nil {
		t.Fatalf("PrepareReplacements: %v", err)
	}

	for i, rep := range reps {
		if rep.Path != reqs[i].Path || rep.UncompressedSize != int64(i+1) || len(rep.Data) != i+1 {
			t.Fatalf("reps[%d]=%s size=%d", i, rep.Path, rep.UncompressedSize)
		}
	}
}

func TestPlanPatchesRendersPlannedManifest(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, packTestBundle(t, newTestBundle(t)))
	planned, err := PlanPatches(context.Background(), a, []PatchRequest{{
		Component: "vmware-vmx",
		Path:      "c.bin",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("replacement")), nil
		},
	}}, PatchOptions{Codec: CodecStore})
	if err != nil {
		t.Fatalf("PlanPatches: %v", err)
	}

	out, err := RenderComponentManifest(planned.Component("vmware-vmx"))
	if err != nil {
		t.Fatalf("RenderComponentManifest: %v", err)
	}
	if !strings.Contains(string(out), `<file path="c.bin" compressedSize="11" uncompressedSize="11" offset="30"></file>`) {
		t.Fatalf("planned manifest:\n%s", out)
	}
}
