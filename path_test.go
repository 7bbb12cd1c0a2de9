// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import "testing"

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "slash", in: "/", want: ""},
		{name: "clean", in: "lib/modules/source/vmmon.tar", want: "lib/modules/source/vmmon.tar"},
		{name: "windows", in: `.\lib\modules\source\`, want: "lib/modules/source"},
		{name: "dot segments", in: "./a/../b//c.txt", want: "b/c.txt"},
		{name: "spaces", in: "  bin/vmware  ", want: "bin/vmware"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizePath(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizePath(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
