package cover

import (
	"archive/zip"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/yuanying/epubres/pkg/epub"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const chapterXHTML = `<html xmlns="http://www.w3.org/1999/xhtml"><body><p>x</p></body></html>`

// coverOPF builds an OPF around the given metadata extras, manifest items,
// and guide body.
func coverOPF(metaExtra, items, guide string) string {
	return `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="pub-id">urn:x</dc:identifier>
    <dc:title>T</dc:title>
    <dc:language>en</dc:language>
    ` + metaExtra + `
  </metadata>
  <manifest>
    <item id="chapter1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    ` + items + `
  </manifest>
  <spine>
    <itemref idref="chapter1"/>
  </spine>
  ` + guide + `
</package>`
}

// openTestEPUB writes a zip fixture and returns its parsed package
// document.
func openTestEPUB(t *testing.T, opf string, extra map[string]string) *epub.PackageDocument {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("failed to create mimetype: %v", err)
	}
	mw.Write([]byte("application/epub+zip"))

	files := map[string]string{
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf":      opf,
		"OEBPS/chapter1.xhtml":   chapterXHTML,
	}
	for name, data := range extra {
		files[name] = data
	}
	for name, data := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
		fw.Write([]byte(data))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}

	c, err := epub.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	doc, err := c.PackageDocument()
	if err != nil {
		t.Fatalf("PackageDocument() error = %v", err)
	}
	return doc
}

func TestDetect_ManifestPropertyWins(t *testing.T) {
	// Both the cover-image property and the legacy meta are present; the
	// property strategy has priority.
	opf := coverOPF(
		`<meta name="cover" content="legacy"/>`,
		`<item id="modern" href="images/modern.png" media-type="image/png" properties="cover-image"/>
    <item id="legacy" href="images/legacy.png" media-type="image/png"/>`,
		"")

	doc := openTestEPUB(t, opf, map[string]string{
		"OEBPS/images/modern.png": "modern",
		"OEBPS/images/legacy.png": "legacy",
	})

	info, err := Detect(doc)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.ManifestID != "modern" || info.DetectionMethod != "manifest-property" {
		t.Errorf("Detect() = %+v, want the cover-image property item", info)
	}
}

func TestDetect_LegacyMeta(t *testing.T) {
	opf := coverOPF(
		`<meta name="cover" content="legacy"/>`,
		`<item id="legacy" href="images/legacy.png" media-type="image/png"/>`,
		"")

	doc := openTestEPUB(t, opf, map[string]string{
		"OEBPS/images/legacy.png": "legacy",
	})

	info, err := Detect(doc)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.ManifestID != "legacy" || info.DetectionMethod != "metadata-cover" {
		t.Errorf("Detect() = %+v, want the meta-referenced item", info)
	}
}

func TestDetect_GuideDirectImage(t *testing.T) {
	opf := coverOPF("",
		`<item id="art" href="images/art.png" media-type="image/png"/>`,
		`<guide><reference type="cover" title="Cover" href="images/art.png"/></guide>`)

	doc := openTestEPUB(t, opf, map[string]string{
		"OEBPS/images/art.png": "art",
	})

	info, err := Detect(doc)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.ManifestID != "art" || info.DetectionMethod != "guide-reference" {
		t.Errorf("Detect() = %+v, want the guide image", info)
	}
}

func TestDetect_GuideCoverPageFirstImage(t *testing.T) {
	coverPage := `<html xmlns="http://www.w3.org/1999/xhtml">
<body><img src="images/art.png" alt="cover"/></body></html>`
	opf := coverOPF("",
		`<item id="coverpage" href="coverpage.xhtml" media-type="application/xhtml+xml"/>
    <item id="art" href="images/art.png" media-type="image/png"/>`,
		`<guide><reference type="cover" title="Cover" href="coverpage.xhtml"/></guide>`)

	doc := openTestEPUB(t, opf, map[string]string{
		"OEBPS/coverpage.xhtml": coverPage,
		"OEBPS/images/art.png":  "art",
	})

	info, err := Detect(doc)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.ManifestID != "art" || info.DetectionMethod != "guide-xhtml-first-img" {
		t.Errorf("Detect() = %+v, want the cover page's first image", info)
	}
}

func TestDetect_FilenameFallback(t *testing.T) {
	opf := coverOPF("",
		`<item id="img1" href="images/photo.png" media-type="image/png"/>
    <item id="img2" href="images/Cover-Art.png" media-type="image/png"/>`,
		"")

	doc := openTestEPUB(t, opf, map[string]string{
		"OEBPS/images/photo.png":     "photo",
		"OEBPS/images/Cover-Art.png": "cover",
	})

	info, err := Detect(doc)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.ManifestID != "img2" || info.DetectionMethod != "filename-pattern" {
		t.Errorf("Detect() = %+v, want the filename match", info)
	}
}

func TestDetect_NoCover(t *testing.T) {
	opf := coverOPF("", `<item id="img1" href="images/photo.png" media-type="image/png"/>`, "")

	doc := openTestEPUB(t, opf, map[string]string{
		"OEBPS/images/photo.png": "photo",
	})

	if _, err := Detect(doc); !errors.Is(err, ErrNoCover) {
		t.Fatalf("Detect() error = %v, want ErrNoCover", err)
	}
}

// makePNG encodes a solid-color PNG of the given size.
func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func TestThumbnail_Resizes(t *testing.T) {
	data := makePNG(t, 600, 900)

	thumb, err := Thumbnail(data, 150)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decoding thumbnail: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %q, want %q", format, "jpeg")
	}
	if cfg.Width != 150 {
		t.Errorf("width = %d, want 150", cfg.Width)
	}
	if cfg.Height != 225 {
		t.Errorf("height = %d, want aspect-preserving 225", cfg.Height)
	}
}

func TestThumbnail_SmallImageNotUpscaled(t *testing.T) {
	data := makePNG(t, 100, 100)

	thumb, err := Thumbnail(data, 300)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decoding thumbnail: %v", err)
	}
	if cfg.Width != 100 {
		t.Errorf("width = %d, want 100 (no upscaling)", cfg.Width)
	}
}

func TestThumbnail_InvalidData(t *testing.T) {
	if _, err := Thumbnail([]byte("not an image"), 100); err == nil {
		t.Fatal("Thumbnail() succeeded on junk input, want error")
	}
}
