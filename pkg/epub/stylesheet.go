package epub

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

// cssImportRe matches quoted @import targets. The url(...) spelling is
// deliberately excluded here; cssURLRe catches it in the second pass.
var cssImportRe = regexp.MustCompile(`@import\s+(?:"([^"]*)"|'([^']*)')`)

// cssURLRe matches url(...) references with optional quoting.
var cssURLRe = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^'")][^)]*?))\s*\)`)

// buildStylesheetResource decodes stylesheet bytes and rewrites every
// same-origin @import and url() reference to its resolved handle.
// Rewriting is span-based: each match is replaced at its own source
// offset, so a reference string occurring at several positions is
// rewritten at every one of them.
func (p *PackageDocument) buildStylesheetResource(base *resourceBase, data []byte, docURL *url.URL, chain map[string]bool) (*StylesheetResource, error) {
	r, err := charset.NewReader(bytes.NewReader(data), base.mediaType)
	if err != nil {
		return nil, fmt.Errorf("epub: decoding %s: %w", base.path, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("epub: decoding %s: %w", base.path, err)
	}
	text := string(decoded)

	var deps depCollector

	text, err = p.rewriteCSSPass(text, cssImportRe, docURL, chain, &deps)
	if err != nil {
		return nil, err
	}
	text, err = p.rewriteCSSPass(text, cssURLRe, docURL, chain, &deps)
	if err != nil {
		return nil, err
	}

	return &StylesheetResource{
		resourceBase: base,
		text:         text,
		deps:         deps.list,
	}, nil
}

// rewriteCSSPass runs one extraction pattern over the text and splices the
// resolved handle into the span of whichever capture group matched.
func (p *PackageDocument) rewriteCSSPass(text string, re *regexp.Regexp, docURL *url.URL, chain map[string]bool, deps *depCollector) (string, error) {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var out strings.Builder
	last := 0

	for _, m := range matches {
		start, end := cssTargetSpan(m)
		if start < 0 {
			continue
		}
		ref := strings.TrimSpace(text[start:end])
		if ref == "" {
			continue
		}
		abs, err := resolve(docURL, ref)
		if err != nil {
			// Unparseable references are treated as external.
			continue
		}

		res, ok, err := p.resolveDependency(abs, chain)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		deps.add(res)

		handle, err := res.URL()
		if err != nil {
			return "", err
		}

		out.WriteString(text[last:start])
		out.WriteString(handle)
		last = end
	}

	out.WriteString(text[last:])
	return out.String(), nil
}

// cssTargetSpan picks the capture group that matched. Group spans never
// overlap across matches, so splicing in match order is safe.
func cssTargetSpan(m []int) (int, int) {
	for i := 2; i < len(m); i += 2 {
		if m[i] >= 0 {
			return m[i], m[i+1]
		}
	}
	return -1, -1
}
