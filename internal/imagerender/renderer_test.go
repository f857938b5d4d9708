package imagerender

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestOptimizeResizesAndGrays(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1400, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 1400; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x), G: 80, B: 200, A: 255})
		}
	}

	out, err := Optimize(encodePNG(t, src), DefaultOptions())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 700 || b.Dy() != 50 {
		t.Errorf("size = %v", b)
	}
	if _, ok := img.(*image.Gray); !ok {
		t.Errorf("output model = %T, want grayscale", img)
	}
}

func TestOptimizeKeepsNarrowImages(t *testing.T) {
	out, err := Optimize(encodePNG(t, image.NewGray(image.Rect(0, 0, 320, 240))), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil || cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("config = %+v, %v", cfg, err)
	}
}

func TestOptimizeRejectsGarbage(t *testing.T) {
	if _, err := Optimize([]byte("not an image"), DefaultOptions()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEnhanceContrast(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(img.Pix, []uint8{100, 200, 0, 255})
	// mean = 138.75 rounds to 139
	enhanceContrast(img, 1.15)

	want := []uint8{94, 209, 0, 255}
	for i, v := range want {
		if img.Pix[i] != v {
			t.Errorf("pix[%d] = %d, want %d", i, img.Pix[i], v)
		}
	}
}
