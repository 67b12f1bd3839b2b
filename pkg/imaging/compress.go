package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
)

// CompressJPEG re-encodes an image as JPEG at the given quality (1-100).
// Engine output is PNG by default and far too large to serve directly.
func CompressJPEG(data []byte, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
