package epub

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ManifestItem is one declared publication resource. Its href is resolved
// against the package base at construction time and must stay inside the
// package origin.
type ManifestItem struct {
	ID           string
	Href         string // as written in the package document
	MediaType    string
	Properties   []string
	Fallback     string // manifest id, empty if none
	MediaOverlay string // manifest id, unvalidated pass-through

	abs       *url.URL
	container *Container
}

// URL returns a copy of the item's absolute address under the container
// origin.
func (it *ManifestItem) URL() *url.URL {
	u := *it.abs
	return &u
}

// Path returns the item's normalized container path.
func (it *ManifestItem) Path() string {
	return it.container.origin.containerPath(it.abs)
}

// ReadBytes reads the item's raw content from the container.
func (it *ManifestItem) ReadBytes() ([]byte, error) {
	return it.container.ReadFile(it.Path())
}

// Open opens the item's content for streaming reads.
func (it *ManifestItem) Open() (io.ReadCloser, error) {
	return it.container.OpenFile(it.Path())
}

// HasProperty reports whether the item declares the given property token.
func (it *ManifestItem) HasProperty(name string) bool {
	for _, p := range it.Properties {
		if p == name {
			return true
		}
	}
	return false
}

// Manifest is the ordered set of manifest items plus the id index.
type Manifest struct {
	Items []ManifestItem

	byID   map[string]int
	byPath map[string]int
}

// Item returns the manifest item with the given id.
func (m *Manifest) Item(id string) (*ManifestItem, bool) {
	i, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return &m.Items[i], true
}

// ItemByURL returns the manifest item whose resolved address matches u
// exactly, ignoring any fragment.
func (m *Manifest) ItemByURL(u *url.URL) (*ManifestItem, bool) {
	i, ok := m.byPath[u.Path]
	if !ok {
		return nil, false
	}
	return &m.Items[i], true
}

func (p *PackageDocument) buildManifest(raw *opfManifest) error {
	m := Manifest{
		byID:   make(map[string]int, len(raw.Items)),
		byPath: make(map[string]int, len(raw.Items)),
	}

	for _, it := range raw.Items {
		if !it.HasID {
			return fmt.Errorf("%w: manifest item missing id attribute", ErrStructure)
		}
		if !it.HasHref {
			return fmt.Errorf("%w: manifest item %q missing href attribute", ErrStructure, it.ID)
		}
		if !it.HasMediaType {
			return fmt.Errorf("%w: manifest item %q missing media-type attribute", ErrStructure, it.ID)
		}
		if _, dup := m.byID[it.ID]; dup {
			return fmt.Errorf("%w: duplicate manifest item id %q", ErrStructure, it.ID)
		}

		abs, err := resolve(p.base, it.Href)
		if err != nil {
			return fmt.Errorf("%w: manifest item %q: %v", ErrStructure, it.ID, err)
		}
		abs.Fragment = ""
		if !p.container.origin.contains(abs) {
			return fmt.Errorf("%w: manifest item %q href %q", ErrOriginMismatch, it.ID, it.Href)
		}

		item := ManifestItem{
			ID:           it.ID,
			Href:         it.Href,
			MediaType:    it.MediaType,
			Properties:   strings.Fields(it.Properties),
			Fallback:     it.Fallback,
			MediaOverlay: it.MediaOverlay,
			abs:          abs,
			container:    p.container,
		}

		m.Items = append(m.Items, item)
		i := len(m.Items) - 1
		m.byID[it.ID] = i
		m.byPath[abs.Path] = i

		// Document-level pointers; last-seen-wins on duplicates.
		if item.HasProperty("nav") {
			p.NavItemID = item.ID
		}
		if item.HasProperty("cover-image") {
			p.CoverItemID = item.ID
		}
	}

	p.Manifest = m
	return nil
}
