package epub

import (
	"fmt"
	"strings"
)

// contentDocumentTypes is the closed set of media types a spine fallback
// chain must terminate in.
var contentDocumentTypes = map[string]bool{
	"application/xhtml+xml": true,
	"application/xhtml":     true,
	"text/html":             true,
	"image/svg+xml":         true,
}

// SpineEntry is one itemref in the default reading order.
type SpineEntry struct {
	IDRef      string
	Linear     bool
	Properties []string
}

// Spine is the validated default reading order. It always contains at
// least one entry and at least one linear entry.
type Spine struct {
	Entries         []SpineEntry
	PageProgression string // "ltr", "rtl", or "default"
}

func (p *PackageDocument) buildSpine(raw *opfSpine) error {
	s := Spine{PageProgression: "default"}

	switch raw.PageProgression {
	case "":
		// default retained
	case "ltr", "rtl", "default":
		s.PageProgression = raw.PageProgression
	default:
		return fmt.Errorf("%w: spine page-progression-direction %q", ErrStructure, raw.PageProgression)
	}

	if raw.TOC != "" {
		if _, ok := p.Manifest.Item(raw.TOC); !ok {
			return fmt.Errorf("%w: spine toc attribute references unknown manifest id %q", ErrStructure, raw.TOC)
		}
		p.TOCItemID = raw.TOC
	}

	if len(raw.ItemRefs) == 0 {
		return fmt.Errorf("%w: spine has no itemref", ErrStructure)
	}

	hasLinear := false
	for _, ref := range raw.ItemRefs {
		item, ok := p.Manifest.Item(ref.IDRef)
		if !ok {
			return fmt.Errorf("%w: spine idref %q", ErrNotFound, ref.IDRef)
		}
		if err := p.checkContentDocument(item); err != nil {
			return err
		}

		// linear is false only for the literal "no".
		linear := ref.Linear != "no"
		if linear {
			hasLinear = true
		}

		s.Entries = append(s.Entries, SpineEntry{
			IDRef:      ref.IDRef,
			Linear:     linear,
			Properties: strings.Fields(ref.Properties),
		})
	}

	if !hasLinear {
		return fmt.Errorf("%w: spine has no linear itemref", ErrStructure)
	}

	p.Spine = s
	return nil
}

// checkContentDocument walks the fallback chain starting at item until it
// reaches a content-document media type. The walk is bounded by a visited
// set so a circular chain fails instead of spinning.
func (p *PackageDocument) checkContentDocument(item *ManifestItem) error {
	visited := make(map[string]bool)
	current := item
	for {
		if contentDocumentTypes[normalizeMediaType(current.MediaType)] {
			return nil
		}
		if visited[current.ID] {
			return fmt.Errorf("%w: manifest item %q", ErrFallbackCycle, item.ID)
		}
		visited[current.ID] = true

		if current.Fallback == "" {
			return fmt.Errorf("%w: spine item %q: no reference to content document in fallback chain", ErrStructure, item.ID)
		}
		next, ok := p.Manifest.Item(current.Fallback)
		if !ok {
			return fmt.Errorf("%w: manifest item %q fallback %q", ErrNotFound, current.ID, current.Fallback)
		}
		current = next
	}
}

// normalizeMediaType lowercases a media type and strips its parameters.
func normalizeMediaType(mt string) string {
	mt, _, _ = strings.Cut(mt, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
