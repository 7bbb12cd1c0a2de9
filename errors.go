// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import "errors"

// Sentinel errors for bundle operations. Use errors.Is in callers.
var (
	// ErrUnknownComponent means a patch request names a component absent from the bundle.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrUnknownFile means a patch request names a path absent from the component fileset.
	ErrUnknownFile = errors.New("unknown file")
	// ErrDuplicateReplacement means two patch requests target the same component path.
	ErrDuplicateReplacement = errors.New("duplicate replacement")
	// ErrSizeMismatch means streamed entry bytes differ from declared compressed size.
	ErrSizeMismatch = errors.New("entry size mismatch")
	// ErrSourceRead means reading the source archive failed.
	ErrSourceRead = errors.New("source read failure")
	// ErrDestinationWrite means writing the destination archive failed.
	ErrDestinationWrite = errors.New("destination write failure")
	// ErrMissingSource means an original entry has no resolvable source payload.
	ErrMissingSource = errors.New("original entry has no source payload")
	// ErrSamePath means source and destination resolve to the same file.
	ErrSamePath = errors.New("source and destination are the same file")
	// ErrInvalidFooter means the bundle footer is missing or malformed.
	ErrInvalidFooter = errors.New("invalid bundle footer")
	// ErrInvalidHeader means a component header is missing or malformed.
	ErrInvalidHeader = errors.New("invalid component header")
	// ErrChecksumMismatch means a stored CRC32 does not match recomputed value.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrUnsupportedVersion means a component header carries an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported component format version")
	// ErrInvalidManifest means a manifest document cannot be decoded or contradicts the layout.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrDuplicateComponent means two components share one name.
	ErrDuplicateComponent = errors.New("duplicate component name")
	// ErrDuplicateEntryPath means two fileset entries share one path.
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrInvalidEntryPath means an entry or request path is empty after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrEntryOutOfBounds means an entry range exceeds its component payload region.
	ErrEntryOutOfBounds = errors.New("entry exceeds component payload")
	// ErrLayoutGap means fileset entries do not tile the payload region contiguously.
	ErrLayoutGap = errors.New("fileset entries do not tile payload region")
	// ErrReplacementTooLarge means replacement content exceeds configured limit.
	ErrReplacementTooLarge = errors.New("replacement exceeds size limit")
	// ErrUnknownCodec means the requested codec name is not registered.
	ErrUnknownCodec = errors.New("unknown codec")
	// ErrInvalidFilterRules means one or more listing filter rules are invalid.
	ErrInvalidFilterRules = errors.New("invalid filter rules")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrNilBundle means the bundle is nil.
	ErrNilBundle = errors.New("bundle is nil")
	// ErrClosed means the archive is already closed.
	ErrClosed = errors.New("archive already closed")
)
