// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/vmbundle

package vmbundle

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// xmlBundle is the bundle-level manifest document.
type xmlBundle struct {
	XMLName    xml.Name         `xml:"bundle"`
	Product    xmlProduct       `xml:"product"`
	Components xmlComponentRefs `xml:"components"`
}

type xmlProduct struct {
	CoreVersion string              `xml:"coreVersion"`
	Components  xmlProductComponents `xml:"components"`
}

type xmlProductComponents struct {
	Items []xmlProductComponent `xml:"component"`
}

type xmlProductComponent struct {
	Name string `xml:"name,attr"`
}

type xmlComponentRefs struct {
	Items []xmlComponentRef `xml:"component"`
}

// xmlComponentRef locates one component inside the payload region.
type xmlComponentRef struct {
	Name   string `xml:"name,attr"`
	Offset int64  `xml:"offset,attr"`
	Size   int64  `xml:"size,attr"`
}

// xmlComponent is the per-component manifest embedded after each component header.
type xmlComponent struct {
	XMLName      xml.Name        `xml:"component"`
	Name         string          `xml:"name"`
	LongName     string          `xml:"longName"`
	Version      string          `xml:"version"`
	BuildNumber  int64           `xml:"buildNumber"`
	Description  string          `xml:"description"`
	Platform     string          `xml:"platform"`
	Architecture string          `xml:"architecture"`
	CoreVersion  string          `xml:"coreVersion"`
	EULA         string          `xml:"eula,omitempty"`
	Dependencies xmlDependencies `xml:"dependencies"`
	Conflicts    xmlConflicts    `xml:"conflicts"`
	Files        *xmlFileSet     `xml:"fileset"`
}

type xmlDependencies struct {
	Items []xmlDependency `xml:"dependency"`
}

type xmlDependency struct {
	Name     string `xml:"name,attr"`
	Version  string `xml:"version,attr"`
	Optional bool   `xml:"optional,attr"`
}

type xmlConflicts struct {
	Items []xmlConflict `xml:"conflict"`
}

type xmlConflict struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

type xmlFileSet struct {
	Items []xmlFile `xml:"file"`
}

type xmlFile struct {
	Path             string `xml:"path,attr"`
	CompressedSize   int64  `xml:"compressedSize,attr"`
	UncompressedSize int64  `xml:"uncompressedSize,attr"`
	Offset           int64  `xml:"offset,attr"`
}

// componentLayout is one component block laid out for writing.
type componentLayout struct {
	component *Component
	manifest  []byte
	entries   []*FileEntry
	offset    int64
	dataSize  int64
}

// size is total bytes occupied by header, manifest and payload.
func (l componentLayout) size() int64 {
	return ComponentHeaderSize + int64(len(l.manifest)) + l.dataSize
}

// RenderComponentManifest renders the manifest embedded in one component block.
// Output is deterministic for equal component values.
func RenderComponentManifest(c *Component) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil component", ErrInvalidManifest)
	}

	doc := xmlComponent{
		Name:         c.Name,
		LongName:     c.LongName,
		Version:      c.Version,
		BuildNumber:  c.BuildNumber,
		Description:  c.Description,
		Platform:     c.Platform,
		Architecture: c.Architecture,
		CoreVersion:  c.CoreVersion,
		EULA:         c.EULA,
	}

	// Relation lists decide the rendered optional flag; the in-memory flag is ignored.
	for _, d := range c.Dependencies {
		doc.Dependencies.Items = append(doc.Dependencies.Items, xmlDependency{Name: d.Name, Version: d.Version, Optional: false})
	}
	for _, d := range c.OptionalDependencies {
		doc.Dependencies.Items = append(doc.Dependencies.Items, xmlDependency{Name: d.Name, Version: d.Version, Optional: true})
	}
	for _, d := range c.Conflicts {
		doc.Conflicts.Items = append(doc.Conflicts.Items, xmlConflict{Name: d.Name, Version: d.Version})
	}

	if c.Files != nil {
		entries := c.Files.Entries()
		doc.Files = &xmlFileSet{Items: make([]xmlFile, 0, len(entries))}
		for _, e := range entries {
			doc.Files.Items = append(doc.Files.Items, xmlFile{
				Path:             e.Path,
				CompressedSize:   e.CompressedSize,
				UncompressedSize: e.UncompressedSize,
				Offset:           e.Offset,
			})
		}
	}

	return marshalManifest(doc)
}

// RenderBundleManifest renders the bundle-level manifest with component locations and sizes.
func RenderBundleManifest(b *Bundle) ([]byte, error) {
	manifest, _, err := layoutBundle(b)
	return manifest, err
}

// layoutBundle renders every component manifest, assigns sequential component offsets
// and renders the bundle manifest describing them.
func layoutBundle(b *Bundle) ([]byte, []componentLayout, error) {
	if b == nil {
		return nil, nil, ErrNilBundle
	}

	doc := xmlBundle{Product: xmlProduct{CoreVersion: b.CoreVersion}}
	for _, ref := range b.ProductComponents {
		doc.Product.Components.Items = append(doc.Product.Components.Items, xmlProductComponent{Name: ref})
	}

	seen := make(map[string]struct{}, len(b.Components))
	layouts := make([]componentLayout, 0, len(b.Components))
	var offset int64
	for _, c := range b.Components {
		if _, dup := seen[c.Name]; dup {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateComponent, c.Name)
		}
		seen[c.Name] = struct{}{}

		manifest, err := RenderComponentManifest(c)
		if err != nil {
			return nil, nil, fmt.Errorf("render component %s manifest: %w", c.Name, err)
		}

		l := componentLayout{
			component: c,
			manifest:  manifest,
			entries:   c.Files.Entries(),
			offset:    offset,
			dataSize:  c.Files.TotalSize(),
		}
		layouts = append(layouts, l)

		doc.Components.Items = append(doc.Components.Items, xmlComponentRef{
			Name:   c.Name,
			Offset: l.offset,
			Size:   l.size(),
		})
		offset += l.size()
	}

	manifest, err := marshalManifest(doc)
	if err != nil {
		return nil, nil, err
	}

	return manifest, layouts, nil
}

// marshalManifest renders document with XML declaration and two-space indentation.
func marshalManifest(doc any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrInvalidManifest, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrInvalidManifest, err)
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ComponentRef locates one component block inside the payload region.
type ComponentRef struct {
	Name   string `json:"name" yaml:"name"`
	Offset int64  `json:"offset" yaml:"offset"`
	Size   int64  `json:"size" yaml:"size"`
}

// BundleManifest is decoded bundle-level manifest content.
type BundleManifest struct {
	CoreVersion       string         `json:"core_version" yaml:"core_version"`
	ProductComponents []string       `json:"product_components,omitempty" yaml:"product_components,omitempty"`
	Components        []ComponentRef `json:"components" yaml:"components"`
}

// ParseBundleManifest decodes a bundle-level manifest document.
func ParseBundleManifest(data []byte) (*BundleManifest, error) {
	var doc xmlBundle
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: bundle: %w", ErrInvalidManifest, err)
	}

	out := &BundleManifest{
		CoreVersion: doc.Product.CoreVersion,
		Components:  make([]ComponentRef, 0, len(doc.Components.Items)),
	}
	for _, ref := range doc.Product.Components.Items {
		out.ProductComponents = append(out.ProductComponents, ref.Name)
	}
	for _, ref := range doc.Components.Items {
		out.Components = append(out.Components, ComponentRef(ref))
	}

	return out, nil
}

// ParseComponentManifest decodes one component manifest into a model component.
// Entries are created as original entries at their declared offsets.
func ParseComponentManifest(data []byte) (*Component, error) {
	var doc xmlComponent
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: component: %w", ErrInvalidManifest, err)
	}

	c := &Component{
		Name:         doc.Name,
		LongName:     doc.LongName,
		Version:      doc.Version,
		BuildNumber:  doc.BuildNumber,
		Description:  doc.Description,
		Platform:     doc.Platform,
		Architecture: doc.Architecture,
		CoreVersion:  doc.CoreVersion,
		EULA:         doc.EULA,
	}

	for _, d := range doc.Dependencies.Items {
		dep := Dependency{Name: d.Name, Version: d.Version, Optional: d.Optional}
		if d.Optional {
			c.OptionalDependencies = append(c.OptionalDependencies, dep)
		} else {
			c.Dependencies = append(c.Dependencies, dep)
		}
	}
	for _, d := range doc.Conflicts.Items {
		c.Conflicts = append(c.Conflicts, Dependency{Name: d.Name, Version: d.Version})
	}

	if doc.Files != nil {
		entries := make([]*FileEntry, 0, len(doc.Files.Items))
		for _, f := range doc.Files.Items {
			if f.Offset < 0 || f.CompressedSize < 0 || f.UncompressedSize < 0 {
				return nil, fmt.Errorf("%w: component %s entry %q has negative offset or size", ErrInvalidManifest, doc.Name, f.Path)
			}

			entries = append(entries, NewFileEntry(f.Path, f.Offset, f.CompressedSize, f.UncompressedSize))
		}

		fs, err := NewFileSet(entries...)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", doc.Name, err)
		}
		c.Files = fs
	}

	return c, nil
}
