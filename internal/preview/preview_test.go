package preview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"reflect"
	"testing"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func decodeBase64Image(t *testing.T, data string) (image.Image, string) {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode rendered image: %v", err)
	}
	return img, format
}

func TestSelectCandidates(t *testing.T) {
	files := []File{
		{BlobID: "id1", Filename: "a.jpg"},
		{BlobID: "id2", Filename: "b.cbf"},
		{BlobID: "id3", Filename: "c.PNG"},
		{BlobID: "id4", Filename: "noext"},
	}
	got := SelectCandidates(files, []string{"jpg", "png"})
	want := []Candidate{{BlobID: "id1", Ext: "jpg"}, {BlobID: "id3", Ext: "png"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}

	if got := SelectCandidates(files, []string{".JPG"}); len(got) != 1 || got[0].BlobID != "id1" {
		t.Fatalf("expected dotted upper-case allow-list to match, got %#v", got)
	}
	if got := SelectCandidates(files, nil); len(got) != 0 {
		t.Fatalf("expected no candidates for empty allow-list, got %#v", got)
	}
}

func TestRenderFitsBox(t *testing.T) {
	data, err := Render(pngFixture(t, 200, 200), "png", Size{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, format := decodeBase64Image(t, data)
	if format != "png" {
		t.Fatalf("expected png, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("expected 100x100, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderKeepsAspectRatio(t *testing.T) {
	data, err := Render(pngFixture(t, 300, 150), "jpg", Size{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, format := decodeBase64Image(t, data)
	if format != "jpeg" {
		t.Fatalf("expected jpg alias to encode jpeg, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("expected 100x50, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderDoesNotUpscale(t *testing.T) {
	data, err := Renderer{Quality: 70}.Render(pngFixture(t, 40, 20), "jpeg", Size{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, _ := decodeBase64Image(t, data)
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("expected source size 40x20, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderFailures(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		ext     string
		size    Size
	}{
		{"corrupt", []byte("not an image"), "png", DefaultSize},
		{"unsupported output", pngFixture(t, 10, 10), "cbf", DefaultSize},
		{"zero size", pngFixture(t, 10, 10), "png", Size{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Render(tc.content, tc.ext, tc.size)
			if !errors.Is(err, ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", err)
			}
		})
	}
}

func TestRenderOtherEncoders(t *testing.T) {
	src := pngFixture(t, 64, 32)
	for _, ext := range []string{"gif", "bmp", "tif"} {
		data, err := Render(src, ext, Size{Width: 32, Height: 32})
		if err != nil {
			t.Fatalf("render %s: %v", ext, err)
		}
		img, _ := decodeBase64Image(t, data)
		if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 16 {
			t.Fatalf("%s: expected 32x16, got %dx%d", ext, b.Dx(), b.Dy())
		}
	}
}

func TestEncodeIsPlainBase64(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := Encode(buf.Bytes()); got != base64.StdEncoding.EncodeToString(buf.Bytes()) {
		t.Fatal("unexpected encoding")
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h   int
		box    Size
		ww, wh int
	}{
		{200, 200, Size{100, 100}, 100, 100},
		{300, 150, Size{100, 100}, 100, 50},
		{150, 300, Size{100, 100}, 50, 100},
		{1000, 1, Size{100, 100}, 100, 1},
		{50, 50, Size{100, 100}, 50, 50},
	}
	for _, tc := range tests {
		w, h := FitWithin(tc.w, tc.h, tc.box)
		if w != tc.ww || h != tc.wh {
			t.Fatalf("FitWithin(%d,%d,%v) = %d,%d want %d,%d", tc.w, tc.h, tc.box, w, h, tc.ww, tc.wh)
		}
	}
}

func TestRendererDefaultQuality(t *testing.T) {
	if DefaultJPEGQuality != 90 {
		t.Fatalf("expected default jpeg quality 90, got %d", DefaultJPEGQuality)
	}

	src := pngFixture(t, 40, 40)
	unset, err := Renderer{}.Render(src, "jpg", Size{Width: 40, Height: 40})
	if err != nil {
		t.Fatalf("render default: %v", err)
	}
	explicit, err := Renderer{Quality: DefaultJPEGQuality}.Render(src, "jpg", Size{Width: 40, Height: 40})
	if err != nil {
		t.Fatalf("render explicit: %v", err)
	}
	if unset != explicit {
		t.Fatal("expected an unset quality to encode like the default quality")
	}
}
