// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// entryMatcher holds compiled path rules for entry selection.
type entryMatcher struct {
	matcher *pathrules.Matcher
}

// newEntryMatcher compiles selection rules. Nil matcher selects everything.
func newEntryMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*entryMatcher, error) {
	rules = normalizeFilterRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = defaultFilterAction(rules)
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidFilterRules, err)
	}

	return &entryMatcher{matcher: matcher}, nil
}

// defaultFilterAction excludes unmatched paths when at least one include rule is present.
func defaultFilterAction(rules []pathrules.Rule) pathrules.Action {
	for _, rule := range rules {
		if rule.Action == pathrules.ActionInclude {
			return pathrules.ActionExclude
		}
	}

	return pathrules.ActionInclude
}

// normalizeFilterRules normalizes rule patterns and drops empty patterns.
func normalizeFilterRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether path is selected.
func (m *entryMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// FilterEntries returns entries selected by ordered rules, keeping input order.
// An empty rule set selects all entries. With zero DefaultAction, unmatched paths are
// excluded when any include rule exists and included otherwise.
func FilterEntries(entries []*FileEntry, rules []pathrules.Rule, opts pathrules.MatcherOptions) ([]*FileEntry, error) {
	m, err := newEntryMatcher(rules, opts)
	if err != nil {
		return nil, err
	}

	out := make([]*FileEntry, 0, len(entries))
	for _, e := range entries {
		if m.Match(e.Path) {
			out = append(out, e)
		}
	}

	return out, nil
}
