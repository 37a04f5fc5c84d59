package epub

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

// zipEntry is one archive entry of a test fixture.
type zipEntry struct {
	name   string
	data   string
	stored bool // write without compression (the mimetype rule)
}

// writeEPUB writes the given entries to a zip file in a temp dir and
// returns its path.
func writeEPUB(t *testing.T, entries []zipEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	defer w.Close()

	for _, e := range entries {
		var ew interface{ Write([]byte) (int, error) }
		if e.stored {
			ew, err = w.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Store})
		} else {
			ew, err = w.Create(e.name)
		}
		if err != nil {
			t.Fatalf("failed to create entry %s: %v", e.name, err)
		}
		if _, err := ew.Write([]byte(e.data)); err != nil {
			t.Fatalf("failed to write entry %s: %v", e.name, err)
		}
	}

	return path
}

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const minimalOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="pub-id">urn:uuid:8a2f3c1e</dc:identifier>
    <dc:title>Test Book</dc:title>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="chapter1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="chapter1"/>
  </spine>
</package>`

const minimalChapter = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter 1</title></head>
<body><h1>Chapter 1</h1><p>Hello, World!</p></body>
</html>`

// standardEntries builds the boilerplate entries around an OPF body, plus
// any extra content files.
func standardEntries(opf string, extra ...zipEntry) []zipEntry {
	entries := []zipEntry{
		{name: "mimetype", data: "application/epub+zip", stored: true},
		{name: "META-INF/container.xml", data: testContainerXML},
		{name: "OEBPS/content.opf", data: opf},
	}
	return append(entries, extra...)
}

// openFixture opens a fixture built from the given entries and returns its
// parsed package document. The container is closed on test cleanup.
func openFixture(t *testing.T, entries []zipEntry) (*Container, *PackageDocument) {
	t.Helper()

	c, err := Open(writeEPUB(t, entries))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	doc, err := c.PackageDocument()
	if err != nil {
		t.Fatalf("PackageDocument() error = %v", err)
	}
	return c, doc
}

// packageError opens a fixture and returns the PackageDocument error,
// failing the test if construction unexpectedly succeeds.
func packageError(t *testing.T, entries []zipEntry) error {
	t.Helper()

	c, err := Open(writeEPUB(t, entries))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if _, err := c.PackageDocument(); err != nil {
		return err
	}
	t.Fatal("PackageDocument() succeeded, want error")
	return nil
}
