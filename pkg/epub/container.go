package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
)

const (
	containerDescriptorPath = "META-INF/container.xml"
	encryptionPath          = "META-INF/encryption.xml"
	mimetypePath            = "mimetype"

	epubMimetype     = "application/epub+zip"
	packageMediaType = "application/oebps-package+xml"
)

// Container indexes the entries of an EPUB OCF container by normalized path
// and provides raw byte access to them. Build one with Open or NewReader and
// release it with Close.
type Container struct {
	zr        *zip.Reader
	closer    io.Closer
	files     map[string]*zip.File
	names     []string // index order
	origin    *origin
	encrypted bool
	warnings  []string

	pkgOnce sync.Once
	pkg     *PackageDocument
	pkgErr  error

	closeOnce sync.Once
	closeErr  error
}

// container.xml structure
type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  *string `xml:"full-path,attr"`
			MediaType *string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// Open opens an EPUB container file and builds the entry index.
// The caller must call Close when done.
func Open(name string) (*Container, error) {
	zrc, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("epub: open %s: %w", name, err)
	}

	c, err := newContainer(&zrc.Reader, zrc)
	if err != nil {
		zrc.Close()
		return nil, err
	}
	return c, nil
}

// NewReader builds a Container from an io.ReaderAt with the given size.
// The caller owns the lifetime of r; Close only releases internal state.
func NewReader(r io.ReaderAt, size int64) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("epub: open zip: %w", err)
	}
	return newContainer(zr, nil)
}

func newContainer(zr *zip.Reader, closer io.Closer) (*Container, error) {
	org, err := newOrigin()
	if err != nil {
		return nil, err
	}

	c := &Container{
		zr:     zr,
		closer: closer,
		files:  make(map[string]*zip.File, len(zr.File)),
		origin: org,
	}

	// Swap in the faster DEFLATE implementation for entry reads.
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	for _, f := range zr.File {
		name := normalizeEntryPath(f.Name)
		if name == "" {
			continue
		}
		if _, ok := c.files[name]; !ok {
			c.names = append(c.names, name)
		}
		c.files[name] = f
	}

	c.checkMimetype()
	if _, ok := c.files[encryptionPath]; ok {
		c.encrypted = true
	}

	return c, nil
}

// Close releases the underlying archive reader. It is safe to call more
// than once; subsequent calls return the first result.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		if c.closer != nil {
			c.closeErr = c.closer.Close()
		}
	})
	return c.closeErr
}

// Entries returns the normalized paths of all indexed entries in archive
// order.
func (c *Container) Entries() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Warnings returns non-fatal findings recorded while indexing, such as
// mimetype deviations.
func (c *Container) Warnings() []string {
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Encrypted reports whether the container declares an encryption.xml.
// Encrypted entries are not decrypted; this is detection only.
func (c *Container) Encrypted() bool {
	return c.encrypted
}

// ReadFile reads the full contents of a non-directory entry.
func (c *Container) ReadFile(name string) ([]byte, error) {
	rc, err := c.OpenFile(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("epub: reading %s: %w", name, err)
	}
	return data, nil
}

// OpenFile opens a non-directory entry for streaming reads.
func (c *Container) OpenFile(name string) (io.ReadCloser, error) {
	name = normalizeEntryPath(name)
	f, ok := c.files[name]
	if !ok {
		return nil, fmt.Errorf("epub: entry %s: %w", name, ErrNotFound)
	}
	if f.FileInfo().IsDir() {
		return nil, fmt.Errorf("epub: entry %s: %w", name, ErrIsDirectory)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: opening %s: %w", name, err)
	}
	return rc, nil
}

// PackageDocument locates the container descriptor, resolves the first
// root-file reference, and parses the package document it addresses. The
// result is constructed once per container and memoized, since the
// PackageDocument owns the per-path resource cache.
func (c *Container) PackageDocument() (*PackageDocument, error) {
	c.pkgOnce.Do(func() {
		c.pkg, c.pkgErr = c.loadPackageDocument()
	})
	return c.pkg, c.pkgErr
}

func (c *Container) loadPackageDocument() (*PackageDocument, error) {
	data, err := c.ReadFile(containerDescriptorPath)
	if err != nil {
		return nil, fmt.Errorf("%w: container descriptor %s missing: %v", ErrStructure, containerDescriptorPath, err)
	}

	var desc containerXML
	if err := xml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: malformed container descriptor: %v", ErrStructure, err)
	}
	if len(desc.Rootfiles.Rootfile) == 0 {
		return nil, fmt.Errorf("%w: container descriptor has no rootfile", ErrStructure)
	}

	// First root-file reference wins.
	rf := desc.Rootfiles.Rootfile[0]
	if rf.FullPath == nil {
		return nil, fmt.Errorf("%w: rootfile missing full-path attribute", ErrStructure)
	}
	if rf.MediaType == nil {
		return nil, fmt.Errorf("%w: rootfile missing media-type attribute", ErrStructure)
	}
	if *rf.MediaType != packageMediaType {
		return nil, fmt.Errorf("%w: rootfile media-type %q, want %q", ErrStructure, *rf.MediaType, packageMediaType)
	}

	pkgPath := normalizeEntryPath(*rf.FullPath)
	if pkgPath == "" {
		return nil, fmt.Errorf("%w: rootfile full-path is empty", ErrStructure)
	}

	pkgData, err := c.ReadFile(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("%w: package document %s: %v", ErrStructure, pkgPath, err)
	}

	return parsePackageDocument(pkgData, c, c.origin.urlFor(pkgPath))
}

// checkMimetype records mimetype deviations as warnings. Real-world EPUBs
// get these wrong often enough that failing the load would be too strict
// for a reading system.
func (c *Container) checkMimetype() {
	f, ok := c.files[mimetypePath]
	if !ok {
		c.warnings = append(c.warnings, "mimetype entry missing")
		return
	}
	if f.Method != zip.Store {
		c.warnings = append(c.warnings, "mimetype entry is compressed, must be stored")
	}
	data, err := c.ReadFile(mimetypePath)
	if err != nil {
		c.warnings = append(c.warnings, fmt.Sprintf("mimetype entry unreadable: %v", err))
		return
	}
	if string(data) != epubMimetype {
		c.warnings = append(c.warnings, fmt.Sprintf("mimetype content %q, want %q", string(data), epubMimetype))
	}
}

// normalizeEntryPath normalizes an archive entry name: backslashes become
// slashes, ./ prefixes and leading slashes are dropped, and dot segments
// are resolved.
func normalizeEntryPath(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Clean(name)
	name = strings.TrimPrefix(name, "/")
	if name == "." {
		return ""
	}
	return name
}
