// Package cover detects a publication's cover image and renders
// thumbnails of it.
package cover

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/epubres/pkg/epub"
)

// ErrNoCover indicates no cover image could be detected with any of the
// supported strategies.
var ErrNoCover = errors.New("cover: no cover image found")

// Info describes the detected cover image.
type Info struct {
	ManifestID      string
	Path            string
	MediaType       string
	DetectionMethod string
}

// Detect finds the cover image of a publication using prioritized
// strategies: the EPUB 3 cover-image manifest property, the EPUB 2
// meta name="cover" pointer, the legacy guide cover reference (a direct
// image, or the first img of a cover XHTML page), and finally a filename
// pattern match.
func Detect(doc *epub.PackageDocument) (*Info, error) {
	if info := detectByProperty(doc); info != nil {
		return info, nil
	}
	if info := detectByMetadata(doc); info != nil {
		return info, nil
	}
	if info := detectByGuide(doc); info != nil {
		return info, nil
	}
	if info := detectByFilename(doc); info != nil {
		return info, nil
	}
	return nil, ErrNoCover
}

func detectByProperty(doc *epub.PackageDocument) *Info {
	if doc.CoverItemID == "" {
		return nil
	}
	item, ok := doc.Manifest.Item(doc.CoverItemID)
	if !ok || !isImage(item.MediaType) {
		return nil
	}
	return infoFor(item, "manifest-property")
}

func detectByMetadata(doc *epub.PackageDocument) *Info {
	if doc.Metadata.CoverID == "" {
		return nil
	}
	item, ok := doc.Manifest.Item(doc.Metadata.CoverID)
	if !ok || !isImage(item.MediaType) {
		return nil
	}
	return infoFor(item, "metadata-cover")
}

func detectByGuide(doc *epub.PackageDocument) *Info {
	for _, ref := range doc.Guide {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}

		item, ok := manifestItemByHref(doc, ref.Href)
		if !ok {
			continue
		}
		if isImage(item.MediaType) {
			return infoFor(item, "guide-reference")
		}
		if !isMarkup(item.MediaType) {
			continue
		}

		// A cover XHTML page: its first image is the cover.
		data, err := item.ReadBytes()
		if err != nil {
			continue
		}
		gq, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			continue
		}
		src, exists := gq.Find("img").First().Attr("src")
		if !exists || strings.TrimSpace(src) == "" {
			continue
		}

		imgItem, ok := manifestItemByRelativeHref(doc, item, src)
		if ok && isImage(imgItem.MediaType) {
			return infoFor(imgItem, "guide-xhtml-first-img")
		}
	}
	return nil
}

func detectByFilename(doc *epub.PackageDocument) *Info {
	for i := range doc.Manifest.Items {
		item := &doc.Manifest.Items[i]
		if !isImage(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Path())), "cover") {
			return infoFor(item, "filename-pattern")
		}
	}
	return nil
}

func infoFor(item *epub.ManifestItem, method string) *Info {
	return &Info{
		ManifestID:      item.ID,
		Path:            item.Path(),
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// manifestItemByHref looks a guide href (relative to the package base) up
// in the manifest, ignoring any fragment.
func manifestItemByHref(doc *epub.PackageDocument, href string) (*epub.ManifestItem, bool) {
	href, _, _ = strings.Cut(href, "#")
	if strings.TrimSpace(href) == "" {
		return nil, false
	}
	target := path.Clean(href)
	for i := range doc.Manifest.Items {
		item := &doc.Manifest.Items[i]
		if path.Clean(item.Href) == target {
			return item, true
		}
	}
	return nil, false
}

// manifestItemByRelativeHref resolves href against the directory of from
// and looks the result up by container path.
func manifestItemByRelativeHref(doc *epub.PackageDocument, from *epub.ManifestItem, href string) (*epub.ManifestItem, bool) {
	href, _, _ = strings.Cut(href, "#")
	target := path.Clean(path.Join(path.Dir(from.Path()), href))
	for i := range doc.Manifest.Items {
		item := &doc.Manifest.Items[i]
		if item.Path() == target {
			return item, true
		}
	}
	return nil, false
}

func isImage(mediaType string) bool {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

func isMarkup(mediaType string) bool {
	switch strings.ToLower(mediaType) {
	case "application/xhtml+xml", "application/xhtml", "text/html":
		return true
	}
	return false
}

// ReadBytes returns the detected cover's raw image data.
func (info *Info) ReadBytes(doc *epub.PackageDocument) ([]byte, error) {
	item, ok := doc.Manifest.Item(info.ManifestID)
	if !ok {
		return nil, fmt.Errorf("cover: manifest item %q: %w", info.ManifestID, epub.ErrNotFound)
	}
	return item.ReadBytes()
}
