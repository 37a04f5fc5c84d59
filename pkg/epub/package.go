package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

const (
	opfNamespace = "http://www.idpf.org/2007/opf"
	dcNamespace  = "http://purl.org/dc/elements/1.1/"
	xmlNamespace = "http://www.w3.org/XML/1998/namespace"
)

// PackageDocument is the root parsed model of an EPUB package. It is
// constructed once per container by Container.PackageDocument and is
// immutable after construction except for the lazily populated resource
// cache.
type PackageDocument struct {
	container *Container
	base      *url.URL

	// Package-level attributes.
	Version    string
	UniqueID   string // value of the unique-identifier attribute
	Identifier string // text of the dc:identifier it resolves to
	Dir        string
	Lang       string
	Prefix     string

	Metadata  Metadata
	Manifest  Manifest
	Spine     Spine
	Rendition Rendition

	// Derived document-level pointers (manifest item ids; empty if absent).
	NavItemID   string
	CoverItemID string
	TOCItemID   string // legacy NCX pointer from the spine toc attribute

	// Legacy guide references, pass-through for cover detection.
	Guide []GuideReference

	cache   resourceCache
	handles handleRegistry
}

// GuideReference is one EPUB 2 guide reference.
type GuideReference struct {
	Type  string
	Title string
	Href  string
}

// Raw OPF section structures. Leaf elements are decoded with encoding/xml;
// section selection and package-level attributes are handled by the token
// walk in parsePackageDocument so that first-occurrence and attribute
// presence semantics are exact.

type opfMetadata struct {
	Identifiers  []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Titles       []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Languages    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Creators     []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Contributors []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ contributor"`
	Publishers   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Descriptions []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ description"`
	Rights       []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ rights"`
	Subjects     []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Dates        []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ date"`
	Sources      []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ source"`
	Metas        []opfMeta      `xml:"meta"`
}

type opfDCElement struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
	Dir   string `xml:"dir,attr"`
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"` // EPUB 2: attribute value
	Value    string `xml:",chardata"`    // EPUB 3: element text
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

// opfItem records attribute presence, not just values: a missing href and
// an empty href are distinct failures.
type opfItem struct {
	ID, Href, MediaType          string
	HasID, HasHref, HasMediaType bool
	Properties                   string
	Fallback                     string
	MediaOverlay                 string
}

func (it *opfItem) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "id":
			it.ID, it.HasID = a.Value, true
		case "href":
			it.Href, it.HasHref = a.Value, true
		case "media-type":
			it.MediaType, it.HasMediaType = a.Value, true
		case "properties":
			it.Properties = a.Value
		case "fallback":
			it.Fallback = a.Value
		case "media-overlay":
			it.MediaOverlay = a.Value
		}
	}
	return d.Skip()
}

type opfSpine struct {
	TOC             string       `xml:"toc,attr"`
	PageProgression string       `xml:"page-progression-direction,attr"`
	ItemRefs        []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef      string `xml:"idref,attr"`
	Linear     string `xml:"linear,attr"`
	Properties string `xml:"properties,attr"`
}

type opfGuide struct {
	References []struct {
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
		Href  string `xml:"href,attr"`
	} `xml:"reference"`
}

// parsePackageDocument constructs a PackageDocument from raw package XML.
// base is the absolute address of the package document under the owning
// container's origin. Validation is fail-fast in a fixed order: root tag,
// unique-identifier, primary identifier, version, globals, then the
// metadata/manifest/spine sections, with rendition hints last.
func parsePackageDocument(data []byte, c *Container, base *url.URL) (*PackageDocument, error) {
	root, sections, err := scanPackageSections(data)
	if err != nil {
		return nil, err
	}

	if root.Name.Local != "package" {
		return nil, fmt.Errorf("%w: root element is <%s>, want <package>", ErrStructure, root.Name.Local)
	}

	p := &PackageDocument{
		container: c,
		base:      base,
	}
	p.cache.init()
	p.handles.init(c.origin.token)

	var hasUniqueID, hasVersion bool
	for _, a := range root.Attr {
		switch {
		case a.Name.Local == "unique-identifier":
			p.UniqueID, hasUniqueID = a.Value, true
		case a.Name.Local == "version":
			p.Version, hasVersion = a.Value, true
		case a.Name.Local == "dir":
			p.Dir = a.Value
		case a.Name.Local == "prefix":
			p.Prefix = a.Value
		case a.Name.Local == "lang" && a.Name.Space == xmlNamespace:
			p.Lang = a.Value
		}
	}
	if !hasUniqueID {
		return nil, fmt.Errorf("%w: package element missing unique-identifier attribute", ErrStructure)
	}
	if sections.metadata == nil {
		return nil, fmt.Errorf("%w: package has no metadata element", ErrStructure)
	}

	p.Identifier, err = primaryIdentifier(sections.metadata, p.UniqueID)
	if err != nil {
		return nil, err
	}
	if !hasVersion {
		return nil, fmt.Errorf("%w: package element missing version attribute", ErrStructure)
	}

	p.Metadata, err = buildMetadata(sections.metadata, p.Lang, p.Dir)
	if err != nil {
		return nil, err
	}

	if sections.manifest == nil {
		return nil, fmt.Errorf("%w: package has no manifest element", ErrStructure)
	}
	if err := p.buildManifest(sections.manifest); err != nil {
		return nil, err
	}

	if sections.spine == nil {
		return nil, fmt.Errorf("%w: package has no spine element", ErrStructure)
	}
	if err := p.buildSpine(sections.spine); err != nil {
		return nil, err
	}

	if sections.guide != nil {
		for _, ref := range sections.guide.References {
			p.Guide = append(p.Guide, GuideReference(ref))
		}
	}

	// Rendition hints read already validated metadata and spine.
	p.Rendition = buildRendition(sections.metadata, &p.Spine)

	return p, nil
}

// packageSections holds the first occurrence of each top-level package
// section. Duplicate sections are tolerated and ignored.
type packageSections struct {
	metadata *opfMetadata
	manifest *opfManifest
	spine    *opfSpine
	guide    *opfGuide
}

func scanPackageSections(data []byte) (xml.StartElement, *packageSections, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false

	var root xml.StartElement
	var foundRoot bool
	sections := &packageSections{}

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return root, nil, fmt.Errorf("%w: malformed package document: %v", ErrStructure, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !foundRoot {
			root = start.Copy()
			foundRoot = true
			continue
		}

		// Depth 1: the package sections. First occurrence wins.
		var dst any
		switch start.Name.Local {
		case "metadata":
			if sections.metadata == nil {
				sections.metadata = &opfMetadata{}
				dst = sections.metadata
			}
		case "manifest":
			if sections.manifest == nil {
				sections.manifest = &opfManifest{}
				dst = sections.manifest
			}
		case "spine":
			if sections.spine == nil {
				sections.spine = &opfSpine{}
				dst = sections.spine
			}
		case "guide":
			if sections.guide == nil {
				sections.guide = &opfGuide{}
				dst = sections.guide
			}
		}

		if dst != nil {
			if err := d.DecodeElement(dst, &start); err != nil {
				return root, nil, fmt.Errorf("%w: malformed %s section: %v", ErrStructure, start.Name.Local, err)
			}
			continue
		}
		if err := d.Skip(); err != nil && !errors.Is(err, io.EOF) {
			return root, nil, fmt.Errorf("%w: malformed package document: %v", ErrStructure, err)
		}
	}

	if !foundRoot {
		return root, nil, fmt.Errorf("%w: package document has no root element", ErrStructure)
	}
	return root, sections, nil
}

// primaryIdentifier resolves the unique-identifier reference to the text of
// the dc:identifier element carrying that id.
func primaryIdentifier(md *opfMetadata, uniqueID string) (string, error) {
	for _, id := range md.Identifiers {
		if id.ID == uniqueID {
			value := strings.TrimSpace(id.Value)
			if value == "" {
				return "", fmt.Errorf("%w: dc:identifier %q is empty", ErrStructure, uniqueID)
			}
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: unique-identifier %q does not resolve to a dc:identifier element", ErrStructure, uniqueID)
}

// Base returns a copy of the package's absolute base address.
func (p *PackageDocument) Base() *url.URL {
	u := *p.base
	return &u
}

// Container returns the container that owns this package document.
func (p *PackageDocument) Container() *Container {
	return p.container
}
