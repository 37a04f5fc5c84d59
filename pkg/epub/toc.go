package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TOCEntry is one resolved table-of-contents entry. Href is a container
// path, optionally with a fragment.
type TOCEntry struct {
	Label    string
	Href     string
	Children []TOCEntry
}

// ncx structures for the legacy navigation control file.
type ncxDocument struct {
	XMLName xml.Name  `xml:"ncx"`
	NavMap  ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	Label struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// TOC returns the publication's table of contents. The EPUB 3 navigation
// document takes precedence; the legacy NCX referenced by the spine toc
// attribute is the fallback. A publication declaring neither yields an
// empty TOC, not an error.
func (p *PackageDocument) TOC() ([]TOCEntry, error) {
	if p.NavItemID != "" {
		item, ok := p.Manifest.Item(p.NavItemID)
		if ok {
			return p.navTOC(item)
		}
	}
	if p.TOCItemID != "" {
		item, ok := p.Manifest.Item(p.TOCItemID)
		if ok {
			return p.ncxTOC(item)
		}
	}
	return nil, nil
}

// navTOC parses the nav element carrying epub:type="toc" out of the EPUB 3
// navigation document.
func (p *PackageDocument) navTOC(item *ManifestItem) ([]TOCEntry, error) {
	data, err := item.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("epub: reading navigation document: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("epub: parsing navigation document: %w", err)
	}

	var tocNav *goquery.Selection
	doc.Find("nav").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ, ok := s.Attr("epub:type")
		if !ok {
			return true
		}
		for _, token := range strings.Fields(typ) {
			if token == "toc" {
				tocNav = s
				return false
			}
		}
		return true
	})
	if tocNav == nil {
		// Fall back to the first nav element; some publications omit the
		// epub:type attribute on their only nav.
		tocNav = doc.Find("nav").First()
		if tocNav.Length() == 0 {
			return nil, fmt.Errorf("%w: navigation document %s has no nav element", ErrStructure, item.Path())
		}
	}

	return p.navEntries(tocNav.ChildrenFiltered("ol"), item), nil
}

func (p *PackageDocument) navEntries(ol *goquery.Selection, navItem *ManifestItem) []TOCEntry {
	var entries []TOCEntry
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		entry := TOCEntry{}
		a := li.ChildrenFiltered("a").First()
		if a.Length() > 0 {
			entry.Label = strings.TrimSpace(a.Text())
			if href, ok := a.Attr("href"); ok {
				entry.Href = p.tocHref(href, navItem)
			}
		} else {
			span := li.ChildrenFiltered("span").First()
			entry.Label = strings.TrimSpace(span.Text())
		}
		entry.Children = p.navEntries(li.ChildrenFiltered("ol"), navItem)
		if entry.Label != "" || entry.Href != "" || len(entry.Children) > 0 {
			entries = append(entries, entry)
		}
	})
	return entries
}

// ncxTOC parses the legacy navMap structure.
func (p *PackageDocument) ncxTOC(item *ManifestItem) ([]TOCEntry, error) {
	data, err := item.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("epub: reading NCX: %w", err)
	}

	var ncx ncxDocument
	if err := xml.Unmarshal(data, &ncx); err != nil {
		return nil, fmt.Errorf("%w: malformed NCX %s: %v", ErrStructure, item.Path(), err)
	}

	return p.ncxEntries(ncx.NavMap.NavPoints, item), nil
}

func (p *PackageDocument) ncxEntries(points []ncxNavPoint, ncxItem *ManifestItem) []TOCEntry {
	var entries []TOCEntry
	for _, np := range points {
		entries = append(entries, TOCEntry{
			Label:    strings.TrimSpace(np.Label.Text),
			Href:     p.tocHref(np.Content.Src, ncxItem),
			Children: p.ncxEntries(np.Children, ncxItem),
		})
	}
	return entries
}

// tocHref resolves a TOC reference against its declaring document and
// converts it back to a container path, keeping the fragment.
func (p *PackageDocument) tocHref(href string, from *ManifestItem) string {
	if strings.TrimSpace(href) == "" {
		return ""
	}
	abs, err := resolve(from.URL(), href)
	if err != nil || !p.container.origin.contains(abs) {
		return href
	}
	out := p.container.origin.containerPath(abs)
	if abs.Fragment != "" {
		out += "#" + abs.Fragment
	}
	return out
}
