// Package epub parses EPUB publications and resolves their internal
// cross-references into an addressable resource graph.
//
// A Container indexes the entries of the OCF zip archive by normalized
// path. Container.PackageDocument locates the container descriptor,
// follows its root-file reference, and constructs the validated
// PackageDocument model: metadata, manifest, spine, and rendition hints.
// Construction is fail-fast; a structural failure anywhere aborts the
// whole document with an error wrapping ErrStructure.
//
// PackageDocument.Resource is the entry point for resolution. Given any
// internal reference it returns one of three resource variants:
//
//   - *MarkupResource for XHTML/HTML/SVG content. Its same-origin
//     references (stylesheets, images, scripts, media) are resolved
//     recursively and rewritten in the document tree to ephemeral blob
//     handles, and the resolved resources are exposed as an ordered
//     dependency list.
//   - *StylesheetResource for CSS, with @import and url() references
//     resolved and rewritten the same way.
//   - *BinaryResource for everything else, wrapping the raw bytes.
//
// Resolution is memoized per canonical path. Top-level resolutions are
// serialized, so concurrent requests for the same path share one
// underlying fetch and parse, and at most one resource instance exists
// per path for the document's lifetime. References resolving outside the
// package origin are left untouched, per EPUB containment rules.
//
// Entries that cannot be decrypted, media overlays, and accessibility
// metadata are passed through without processing.
package epub
