// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package main

import (
	"fmt"
	"strings"

	"github.com/woozymasta/vmbundle"
)

// parseReplaceSpecs converts COMPONENT:PATH=FILE flags into patch requests.
func parseReplaceSpecs(specs []string) ([]vmbundle.PatchRequest, error) {
	reqs := make([]vmbundle.PatchRequest, 0, len(specs))
	for _, spec := range specs {
		req, err := parseReplaceSpec(spec)
		if err != nil {
			return nil, err
		}

		reqs = append(reqs, req)
	}

	return reqs, nil
}

func parseReplaceSpec(spec string) (vmbundle.PatchRequest, error) {
	component, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return vmbundle.PatchRequest{}, fmt.Errorf("invalid replace %q: want COMPONENT:PATH=FILE", spec)
	}

	entryPath, file, ok := strings.Cut(rest, "=")
	if !ok {
		return vmbundle.PatchRequest{}, fmt.Errorf("invalid replace %q: want COMPONENT:PATH=FILE", spec)
	}

	component = strings.TrimSpace(component)
	entryPath = strings.TrimSpace(entryPath)
	file = strings.TrimSpace(file)
	if component == "" || entryPath == "" || file == "" {
		return vmbundle.PatchRequest{}, fmt.Errorf("invalid replace %q: empty component, path or file", spec)
	}

	return vmbundle.FileRequest(component, entryPath, file), nil
}
