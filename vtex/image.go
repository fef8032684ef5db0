package vtex

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/Luzifer/vrf-extract/cursor"
)

// Container formats embedded into texture payloads, matched by magic.
// TGA has no magic and is used when nothing else matches.
var embeddedFormats = []struct {
	name   string
	match  func([]byte) bool
	decode func(io.Reader) (image.Image, error)
}{
	{"png", prefix("\x89PNG\r\n\x1a\n"), png.Decode},
	{"jpeg", prefix("\xff\xd8"), jpeg.Decode},
	{"gif", func(b []byte) bool { return prefix("GIF87a")(b) || prefix("GIF89a")(b) }, gif.Decode},
	{"bmp", prefix("BM"), bmp.Decode},
	{"tiff", func(b []byte) bool { return prefix("II*\x00")(b) || prefix("MM\x00*")(b) }, tiff.Decode},
	{"webp", func(b []byte) bool { return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP" }, webp.Decode},
}

func prefix(magic string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(magic)) }
}

// decodeEmbedded decodes the remaining payload as an image file
func decodeEmbedded(c *cursor.Cursor) (image.Image, error) {
	data := c.Tail()

	name, decode := "tga", tga.Decode
	for _, f := range embeddedFormats {
		if f.match(data) {
			name, decode = f.name, f.decode
			break
		}
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding embedded %s image: %w", name, err)
	}

	return img, nil
}
