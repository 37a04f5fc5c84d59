package cover

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

const (
	defaultThumbnailWidth = 300
	thumbnailJPEGQuality  = 90
)

// Thumbnail decodes cover image data, resizes it down to the given width
// while preserving aspect ratio, and re-encodes it as JPEG. Images already
// narrower than width are re-encoded without resizing. A width of zero or
// less uses the default.
func Thumbnail(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		width = defaultThumbnailWidth
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cover: decoding image: %w", err)
	}

	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("cover: encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
