package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/epubres/pkg/epub"
)

// writeTestEPUB writes a small publication with a chapter, a stylesheet,
// and an image.
func writeTestEPUB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	defer w.Close()

	mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("failed to create mimetype: %v", err)
	}
	mw.Write([]byte("application/epub+zip"))

	files := []struct{ name, data string }{
		{"META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`},
		{"OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="pub-id">urn:x</dc:identifier>
    <dc:title>T</dc:title>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="chapter1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="img" href="images/pic.png" media-type="image/png"/>
  </manifest>
  <spine>
    <itemref idref="chapter1"/>
  </spine>
</package>`},
		{"OEBPS/chapter1.xhtml", `<html xmlns="http://www.w3.org/1999/xhtml">
<head><link rel="stylesheet" href="style.css"/></head>
<body><img src="images/pic.png"/></body>
</html>`},
		{"OEBPS/style.css", "body { margin: 0; }"},
		{"OEBPS/images/pic.png", "png-bytes"},
	}
	for _, e := range files {
		fw, err := w.Create(e.name)
		if err != nil {
			t.Fatalf("failed to create %s: %v", e.name, err)
		}
		fw.Write([]byte(e.data))
	}

	return path
}

func TestWriteResourceTree(t *testing.T) {
	c, err := epub.Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	doc, err := c.PackageDocument()
	if err != nil {
		t.Fatalf("PackageDocument() error = %v", err)
	}
	res, err := doc.Resource("chapter1.xhtml")
	if err != nil {
		t.Fatalf("Resource() error = %v", err)
	}

	outDir := t.TempDir()
	written := make(map[string]bool)
	if err := writeResourceTree(res, outDir, written); err != nil {
		t.Fatalf("writeResourceTree() error = %v", err)
	}

	if len(written) != 3 {
		t.Errorf("wrote %d resources, want 3 (chapter, css, image)", len(written))
	}

	chapter, err := os.ReadFile(filepath.Join(outDir, "OEBPS", "chapter1.xhtml"))
	if err != nil {
		t.Fatalf("reading extracted chapter: %v", err)
	}
	if strings.Contains(string(chapter), `href="style.css"`) {
		t.Error("extracted chapter still references the original path, want the rewritten handle")
	}
	if !strings.Contains(string(chapter), "blob:epub://") {
		t.Error("extracted chapter has no rewritten handle")
	}

	img, err := os.ReadFile(filepath.Join(outDir, "OEBPS", "images", "pic.png"))
	if err != nil {
		t.Fatalf("reading extracted image: %v", err)
	}
	if string(img) != "png-bytes" {
		t.Errorf("extracted image = %q, want verbatim bytes", img)
	}
}

func TestWriteResourceTree_SharedDependencyOnce(t *testing.T) {
	c, err := epub.Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	doc, err := c.PackageDocument()
	if err != nil {
		t.Fatalf("PackageDocument() error = %v", err)
	}
	res, err := doc.Resource("chapter1.xhtml")
	if err != nil {
		t.Fatalf("Resource() error = %v", err)
	}

	outDir := t.TempDir()
	written := make(map[string]bool)
	if err := writeResourceTree(res, outDir, written); err != nil {
		t.Fatalf("first writeResourceTree() error = %v", err)
	}
	// Writing the same tree again is a no-op.
	before := len(written)
	if err := writeResourceTree(res, outDir, written); err != nil {
		t.Fatalf("second writeResourceTree() error = %v", err)
	}
	if len(written) != before {
		t.Errorf("second pass wrote %d new resources, want 0", len(written)-before)
	}
}

func TestResourceDependencies_Binary(t *testing.T) {
	c, err := epub.Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	doc, err := c.PackageDocument()
	if err != nil {
		t.Fatalf("PackageDocument() error = %v", err)
	}
	res, err := doc.Resource("images/pic.png")
	if err != nil {
		t.Fatalf("Resource() error = %v", err)
	}

	if deps := resourceDependencies(res); deps != nil {
		t.Errorf("resourceDependencies(binary) = %v, want nil", deps)
	}
}
