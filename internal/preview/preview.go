// Package preview selects image attachments and renders bounded-size
// previews of them.
package preview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrGeneration marks decode and encode failures.
var ErrGeneration = errors.New("preview generation failed")

// DefaultJPEGQuality is used when a Renderer has no quality set.
const DefaultJPEGQuality = 90

// DefaultSize is the bounding box used when none is configured.
var DefaultSize = Size{Width: 100, Height: 100}

// File is one attachment as listed on a document.
type File struct {
	BlobID   string `json:"blob_id"`
	Filename string `json:"filename"`
}

// Candidate is a File whose extension is on the allow-list.
type Candidate struct {
	BlobID string `json:"blob_id"`
	Ext    string `json:"ext"`
}

// Size is a bounding box in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) valid() bool {
	return s.Width > 0 && s.Height > 0
}

// SelectCandidates keeps the files whose extension (lower-cased, without
// the dot) is in allowed, in input order.
func SelectCandidates(files []File, allowed []string) []Candidate {
	allow := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		ext = NormalizeExt(ext)
		if ext != "" {
			allow[ext] = struct{}{}
		}
	}

	out := []Candidate{}
	for _, f := range files {
		ext := NormalizeExt(path.Ext(f.Filename))
		if ext == "" {
			continue
		}
		if _, ok := allow[ext]; ok {
			out = append(out, Candidate{BlobID: f.BlobID, Ext: ext})
		}
	}
	return out
}

// NormalizeExt lower-cases ext and strips a leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Renderer resizes and re-encodes images.
type Renderer struct {
	Quality int
}

// Render uses a Renderer with default settings.
func Render(content []byte, ext string, size Size) (string, error) {
	return Renderer{}.Render(content, ext, size)
}

// Render decodes content, scales it down to fit inside size keeping the
// aspect ratio, encodes it in the format named by ext and returns base64
// text. Images already inside the box are re-encoded at their own size.
func (r Renderer) Render(content []byte, ext string, size Size) (string, error) {
	if !size.valid() {
		return "", fmt.Errorf("%w: invalid size %dx%d", ErrGeneration, size.Width, size.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrGeneration, err)
	}

	dst := scale(src, size)

	var buf bytes.Buffer
	if err := r.encode(&buf, dst, ext); err != nil {
		return "", err
	}
	return Encode(buf.Bytes()), nil
}

// Encode returns content as standard base64 text.
func Encode(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}

// FitWithin returns the largest w x h that fits in box with the aspect ratio
// of (width, height), never larger than the source.
func FitWithin(width, height int, box Size) (int, int) {
	if width <= box.Width && height <= box.Height {
		return width, height
	}
	w, h := box.Width, height*box.Width/width
	if h > box.Height {
		w, h = width*box.Height/height, box.Height
	}
	return max(w, 1), max(h, 1)
}

func scale(src image.Image, box Size) image.Image {
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), box)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func (r Renderer) encode(buf *bytes.Buffer, img image.Image, ext string) error {
	var err error
	switch format := EncoderName(ext); format {
	case "jpeg":
		quality := r.Quality
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	case "png":
		err = png.Encode(buf, img)
	case "gif":
		err = gif.Encode(buf, img, nil)
	case "bmp":
		err = bmp.Encode(buf, img)
	case "tiff":
		err = tiff.Encode(buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: unsupported output format %q", ErrGeneration, ext)
	}
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrGeneration, ext, err)
	}
	return nil
}

// EncoderName maps a file extension to the encoder that writes it; "jpg"
// is an alias of "jpeg". Unknown extensions are returned normalized.
func EncoderName(ext string) string {
	switch ext = NormalizeExt(ext); ext {
	case "jpg", "jpe":
		return "jpeg"
	case "tif":
		return "tiff"
	default:
		return ext
	}
}
