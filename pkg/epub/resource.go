package epub

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// ResourceType discriminates the three resource variants.
type ResourceType string

const (
	ResourceHTML   ResourceType = "html"
	ResourceCSS    ResourceType = "css"
	ResourceBinary ResourceType = "binary"
)

// Resource is the addressable-handle contract shared by all resolved
// resources. Blob returns the resource's current content; URL lazily
// creates a memoized ephemeral handle for that content, stable for the
// resource's lifetime until Close revokes it.
type Resource interface {
	Type() ResourceType
	Path() string
	MediaType() string
	Blob() ([]byte, error)
	URL() (string, error)
	Close() error
}

// handleRegistry issues ephemeral blob handles for resources. It is owned
// by one PackageDocument and keyed under the container's origin token, so
// handles never collide across instances.
type handleRegistry struct {
	mu    sync.Mutex
	token string
	next  int
	blobs map[string]blobEntry
}

type blobEntry struct {
	data      []byte
	mediaType string
}

func (h *handleRegistry) init(token string) {
	h.token = token
	h.blobs = make(map[string]blobEntry)
}

func (h *handleRegistry) register(data []byte, mediaType string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	handle := "blob:epub://" + h.token + "/" + strconv.Itoa(h.next)
	h.next++
	h.blobs[handle] = blobEntry{data: data, mediaType: mediaType}
	return handle
}

func (h *handleRegistry) revoke(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.blobs, handle)
}

// Blob returns the content and media type behind an ephemeral handle
// previously issued by a Resource's URL method.
func (p *PackageDocument) Blob(handle string) ([]byte, string, error) {
	p.handles.mu.Lock()
	defer p.handles.mu.Unlock()
	e, ok := p.handles.blobs[handle]
	if !ok {
		return nil, "", fmt.Errorf("epub: handle %s: %w", handle, ErrNotFound)
	}
	return e.data, e.mediaType, nil
}

// resourceBase carries the state shared by all three variants. Variants
// embed it by pointer; it owns a mutex and must not be copied.
type resourceBase struct {
	doc       *PackageDocument
	path      string
	mediaType string

	mu     sync.Mutex
	handle string
	closed bool
}

func (r *resourceBase) Path() string      { return r.path }
func (r *resourceBase) MediaType() string { return r.mediaType }

// lazyURL registers the blob on first use and memoizes the handle.
func (r *resourceBase) lazyURL(blob func() ([]byte, error)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("epub: resource %s is closed: %w", r.path, ErrNotFound)
	}
	if r.handle != "" {
		return r.handle, nil
	}
	data, err := blob()
	if err != nil {
		return "", err
	}
	r.handle = r.doc.handles.register(data, r.mediaType)
	return r.handle, nil
}

// Close revokes the resource's handle. The first call revokes; later calls
// are no-ops.
func (r *resourceBase) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.handle != "" {
		r.doc.handles.revoke(r.handle)
		r.handle = ""
	}
	return nil
}

// MarkupResource is a structured-markup (XHTML/HTML/SVG) resource. It owns
// the parsed, possibly rewritten document tree and the ordered list of
// same-origin resources discovered while scanning it.
type MarkupResource struct {
	*resourceBase
	document *goquery.Document
	deps     []Resource
}

func (r *MarkupResource) Type() ResourceType { return ResourceHTML }

// Document returns the parsed document tree. Mutations are visible to
// later Blob and Serialize calls.
func (r *MarkupResource) Document() *goquery.Document { return r.document }

// Dependencies returns the resources this document references, in
// discovery order.
func (r *MarkupResource) Dependencies() []Resource {
	out := make([]Resource, len(r.deps))
	copy(out, r.deps)
	return out
}

// Serialize renders the current document tree as markup text.
func (r *MarkupResource) Serialize() (string, error) {
	html, err := r.document.Html()
	if err != nil {
		return "", fmt.Errorf("epub: serializing %s: %w", r.path, err)
	}
	return html, nil
}

func (r *MarkupResource) Blob() ([]byte, error) {
	html, err := r.Serialize()
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

func (r *MarkupResource) URL() (string, error) {
	return r.lazyURL(r.Blob)
}

// StylesheetResource is a CSS resource whose text has had its same-origin
// references rewritten to resolved handles.
type StylesheetResource struct {
	*resourceBase
	text string
	deps []Resource
}

func (r *StylesheetResource) Type() ResourceType { return ResourceCSS }

// Text returns the rewritten stylesheet text.
func (r *StylesheetResource) Text() string { return r.text }

// Dependencies returns the resources this stylesheet references, in
// discovery order.
func (r *StylesheetResource) Dependencies() []Resource {
	out := make([]Resource, len(r.deps))
	copy(out, r.deps)
	return out
}

func (r *StylesheetResource) Blob() ([]byte, error) {
	return []byte(r.text), nil
}

func (r *StylesheetResource) URL() (string, error) {
	return r.lazyURL(r.Blob)
}

// BinaryResource wraps an opaque resource's raw bytes verbatim.
type BinaryResource struct {
	*resourceBase
	data []byte
}

func (r *BinaryResource) Type() ResourceType { return ResourceBinary }

func (r *BinaryResource) Blob() ([]byte, error) {
	return r.data, nil
}

func (r *BinaryResource) URL() (string, error) {
	return r.lazyURL(r.Blob)
}
