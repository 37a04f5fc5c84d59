package epub

import (
	"fmt"
	"net/url"
	"sync"
)

// resourceCache is the per-document memoized resource cache. Top-level
// resolutions are serialized under mu, held across the whole dependency
// scan: two callers whose resources reference each other therefore never
// wait on each other's unfinished work, and a later caller for an already
// resolved path gets the memoized cell. Cells, including failed ones, live
// for the document's lifetime: at most one resolution ever runs per path.
type resourceCache struct {
	mu    sync.Mutex
	cells map[string]*resolveCell
}

type resolveCell struct {
	res Resource
	err error
}

func (c *resourceCache) init() {
	c.cells = make(map[string]*resolveCell)
}

// Resource resolves href against the package base and returns the resource
// it addresses. It is the sole entry point for turning an internal
// reference into an addressable Resource.
func (p *PackageDocument) Resource(href string) (Resource, error) {
	return p.ResourceFrom(href, p.base)
}

// ResourceFrom resolves href against an explicit base address, which must
// itself be inside the package origin.
func (p *PackageDocument) ResourceFrom(href string, base *url.URL) (Resource, error) {
	abs, err := resolve(base, href)
	if err != nil {
		return nil, err
	}
	if !p.container.origin.contains(abs) {
		return nil, fmt.Errorf("%w: %s", ErrOriginMismatch, href)
	}
	return p.resource(abs, nil)
}

// resource returns the cached or freshly resolved resource for an absolute
// same-origin address. chain carries the canonical paths currently being
// resolved on this call stack; it is how dependency scans detect and break
// reference cycles (see resolveDependency). A nil chain marks a top-level
// call, which takes the resolution lock for the whole scan; recursive
// calls run under the lock their top-level ancestor holds, and any path
// still unfinished at that point is by construction on the chain and was
// skipped before reaching here.
func (p *PackageDocument) resource(abs *url.URL, chain map[string]bool) (Resource, error) {
	if chain == nil {
		p.cache.mu.Lock()
		defer p.cache.mu.Unlock()
	}

	key := abs.Path
	if cell, ok := p.cache.cells[key]; ok {
		return cell.res, cell.err
	}

	cell := &resolveCell{}
	cell.res, cell.err = p.buildResource(abs, key, chain)
	p.cache.cells[key] = cell
	return cell.res, cell.err
}

// buildResource fetches and classifies the manifest item behind abs and
// constructs the matching resource variant.
func (p *PackageDocument) buildResource(abs *url.URL, key string, chain map[string]bool) (Resource, error) {
	item, ok := p.Manifest.ItemByURL(abs)
	if !ok {
		return nil, fmt.Errorf("%w: no manifest item for %s", ErrNotFound, key)
	}

	data, err := item.ReadBytes()
	if err != nil {
		return nil, err
	}

	// Extend the in-progress chain with this key for the dependency scan.
	sub := make(map[string]bool, len(chain)+1)
	for k := range chain {
		sub[k] = true
	}
	sub[key] = true

	base := &resourceBase{
		doc:       p,
		path:      item.Path(),
		mediaType: item.MediaType,
	}

	switch normalizeMediaType(item.MediaType) {
	case "text/html", "application/xhtml", "application/xhtml+xml":
		return p.buildMarkupResource(base, data, item.URL(), sub)
	case "text/css":
		return p.buildStylesheetResource(base, data, item.URL(), sub)
	default:
		return &BinaryResource{resourceBase: base, data: data}, nil
	}
}

// resolveDependency resolves one in-content reference discovered during a
// markup or stylesheet scan; callers parse the reference and resolve it
// against the document base before calling. Cross-origin references are
// not errors; they are left for the reference to point outside the
// package. A reference to a path already resolving on this chain is
// likewise skipped, breaking self- and mutual-reference cycles
// deterministically. Resolution failures for reachable same-origin
// references propagate to the outer call.
func (p *PackageDocument) resolveDependency(abs *url.URL, chain map[string]bool) (Resource, bool, error) {
	if !p.container.origin.contains(abs) {
		return nil, false, nil
	}
	if chain[abs.Path] {
		return nil, false, nil
	}

	res, err := p.resource(abs, chain)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}
