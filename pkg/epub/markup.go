package epub

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// linkRelValues is the closed set of link relation tokens that make a
// link[href] an external-resource reference worth resolving.
var linkRelValues = map[string]bool{
	"stylesheet":       true,
	"icon":             true,
	"shortcut":         true,
	"apple-touch-icon": true,
	"manifest":         true,
	"preload":          true,
	"prefetch":         true,
}

// metaNameValues, metaPropertyValues, and metaItempropValues are the closed
// sets for which a meta[content] value is a resource reference.
var metaNameValues = map[string]bool{
	"msapplication-tileimage": true,
	"twitter:image":           true,
}

var metaPropertyValues = map[string]bool{
	"og:image": true,
	"og:audio": true,
	"og:video": true,
}

var metaItempropValues = map[string]bool{
	"image": true,
}

// scanRule is one entry of the declarative attribute-matching table. Rules
// are applied in table order and elements within a rule in document order,
// so rewrites are deterministic for identical input bytes.
type scanRule struct {
	tag    string
	attr   string
	srcset bool
	filter func(s *goquery.Selection) bool
}

var markupScanRules = []scanRule{
	{tag: "link", attr: "href", filter: linkRelFilter},
	{tag: "img", attr: "src"},
	{tag: "source", attr: "src"},
	{tag: "audio", attr: "src"},
	{tag: "video", attr: "src"},
	{tag: "track", attr: "src"},
	{tag: "script", attr: "src"},
	{tag: "iframe", attr: "src"},
	{tag: "embed", attr: "src"},
	{tag: "input", attr: "src"},
	{tag: "img", attr: "srcset", srcset: true},
	{tag: "source", attr: "srcset", srcset: true},
	{tag: "link", attr: "imagesrcset", srcset: true},
	{tag: "video", attr: "poster"},
	{tag: "object", attr: "data"},
	{tag: "meta", attr: "content", filter: metaFilter},
}

func linkRelFilter(s *goquery.Selection) bool {
	rel, ok := s.Attr("rel")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if linkRelValues[token] {
			return true
		}
	}
	return false
}

func metaFilter(s *goquery.Selection) bool {
	if name, ok := s.Attr("name"); ok && metaNameValues[strings.ToLower(name)] {
		return true
	}
	if prop, ok := s.Attr("property"); ok && metaPropertyValues[strings.ToLower(prop)] {
		return true
	}
	if item, ok := s.Attr("itemprop"); ok && metaItempropValues[strings.ToLower(item)] {
		return true
	}
	return false
}

// depCollector accumulates discovered dependencies in order, one entry per
// canonical path.
type depCollector struct {
	seen map[string]bool
	list []Resource
}

func (d *depCollector) add(res Resource) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[res.Path()] {
		return
	}
	d.seen[res.Path()] = true
	d.list = append(d.list, res)
}

// buildMarkupResource decodes and parses markup bytes, then walks the scan
// table resolving and rewriting every same-origin reference in place.
func (p *PackageDocument) buildMarkupResource(base *resourceBase, data []byte, docURL *url.URL, chain map[string]bool) (*MarkupResource, error) {
	r, err := charset.NewReader(bytes.NewReader(data), base.mediaType)
	if err != nil {
		return nil, fmt.Errorf("epub: decoding %s: %w", base.path, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("epub: parsing %s: %w", base.path, err)
	}

	var deps depCollector

	for _, rule := range markupScanRules {
		var scanErr error
		doc.Find(rule.tag).Each(func(_ int, s *goquery.Selection) {
			if scanErr != nil {
				return
			}
			val, ok := s.Attr(rule.attr)
			if !ok || strings.TrimSpace(val) == "" {
				return
			}
			if rule.filter != nil && !rule.filter(s) {
				return
			}

			var rewritten string
			var err error
			if rule.srcset {
				rewritten, err = p.rewriteSrcset(val, docURL, chain, &deps)
			} else {
				rewritten, err = p.rewriteReference(val, docURL, chain, &deps)
			}
			if err != nil {
				scanErr = err
				return
			}
			if rewritten != val {
				s.SetAttr(rule.attr, rewritten)
			}
		})
		if scanErr != nil {
			return nil, scanErr
		}
	}

	// SVG image/use carry their reference in a namespaced href.
	if err := p.rewriteNamespacedHrefs(doc, docURL, chain, &deps); err != nil {
		return nil, err
	}

	return &MarkupResource{
		resourceBase: base,
		document:     doc,
		deps:         deps.list,
	}, nil
}

// rewriteReference resolves one attribute value. Cross-origin and
// in-chain references come back unchanged; a resolved same-origin
// reference comes back as the resource's handle URL, keeping the original
// fragment.
func (p *PackageDocument) rewriteReference(val string, docURL *url.URL, chain map[string]bool, deps *depCollector) (string, error) {
	abs, err := resolve(docURL, val)
	if err != nil {
		// Unparseable references are treated as external.
		return val, nil
	}

	res, ok, err := p.resolveDependency(abs, chain)
	if err != nil {
		return "", err
	}
	if !ok {
		return val, nil
	}
	deps.add(res)

	handle, err := res.URL()
	if err != nil {
		return "", err
	}
	if abs.Fragment != "" {
		handle += "#" + abs.Fragment
	}
	return handle, nil
}

// rewriteSrcset rewrites each candidate URL of a srcset value, preserving
// the width and density descriptors.
func (p *PackageDocument) rewriteSrcset(val string, docURL *url.URL, chain map[string]bool, deps *depCollector) (string, error) {
	candidates := strings.Split(val, ",")
	out := make([]string, 0, len(candidates))

	for _, cand := range candidates {
		fields := strings.Fields(cand)
		if len(fields) == 0 {
			continue
		}
		rewritten, err := p.rewriteReference(fields[0], docURL, chain, deps)
		if err != nil {
			return "", err
		}
		fields[0] = rewritten
		out = append(out, strings.Join(fields, " "))
	}

	return strings.Join(out, ", "), nil
}

// rewriteNamespacedHrefs handles the SVG image/use variant where the
// reference lives in an xlink:href attribute. goquery's attribute lookup
// does not see namespaces, so this works at the node level.
func (p *PackageDocument) rewriteNamespacedHrefs(doc *goquery.Document, docURL *url.URL, chain map[string]bool, deps *depCollector) error {
	var scanErr error
	doc.Find("image, use").Each(func(_ int, s *goquery.Selection) {
		if scanErr != nil || len(s.Nodes) == 0 {
			return
		}
		n := s.Nodes[0]
		i, val := findNamespacedAttr(n, "xlink", "href")
		if i < 0 || strings.TrimSpace(val) == "" {
			return
		}
		rewritten, err := p.rewriteReference(val, docURL, chain, deps)
		if err != nil {
			scanErr = err
			return
		}
		if rewritten != val {
			n.Attr[i].Val = rewritten
		}
	})
	return scanErr
}

// findNamespacedAttr locates an attribute either parsed with a namespace
// or carrying the prefixed form as its literal key.
func findNamespacedAttr(n *html.Node, space, local string) (int, string) {
	prefixed := space + ":" + local
	for i, a := range n.Attr {
		if (a.Namespace == space && a.Key == local) || a.Key == prefixed {
			return i, a.Val
		}
	}
	return -1, ""
}
