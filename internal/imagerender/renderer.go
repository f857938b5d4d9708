package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Options controls upload optimization.
type Options struct {
	MaxWidth int
	Contrast float64
	Quality  int
	DPI      int // PDF render resolution
}

// DefaultOptions matches the extraction prompt's expected input.
func DefaultOptions() Options {
	return Options{MaxWidth: 700, Contrast: 1.15, Quality: 93, DPI: 150}
}

var pdfMagic = []byte("%PDF-")

// Optimize turns an upload into the JPEG sent to vision models: PDFs are
// rendered at their first page, then the image is narrowed to MaxWidth,
// converted to grayscale and contrast enhanced.
func Optimize(data []byte, opts Options) ([]byte, error) {
	var (
		src image.Image
		err error
	)
	if bytes.HasPrefix(data, pdfMagic) {
		src, err = RenderPDFPage(data, 1, opts.DPI)
	} else {
		src, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("failed to decode image: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	gray := resizeGray(src, opts.MaxWidth)
	if opts.Contrast > 0 && opts.Contrast != 1 {
		enhanceContrast(gray, opts.Contrast)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	b := gray.Bounds()
	log.Debug().
		Int("in_size", len(data)).
		Int("out_size", buf.Len()).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("quality", quality).
		Msg("optimized upload image")
	return buf.Bytes(), nil
}

// RenderPDFPage renders one page (1-based) of an in-memory PDF.
func RenderPDFPage(data []byte, pageNum, dpi int) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if pageNum < 1 || pageNum > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", pageNum, doc.NumPage())
	}
	if dpi <= 0 {
		dpi = 150
	}
	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}
	log.Debug().
		Int("page", pageNum).
		Int("pages", doc.NumPage()).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Int("dpi", dpi).
		Msg("rendered PDF page")
	return img, nil
}

// resizeGray scales src down to maxWidth keeping the aspect ratio and
// converts it to grayscale. Narrower images are only converted.
func resizeGray(src image.Image, maxWidth int) *image.Gray {
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = int(float64(h) * float64(maxWidth) / float64(w))
		w = maxWidth
		if h < 1 {
			h = 1
		}
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}

// enhanceContrast blends every pixel away from the rounded image mean by
// factor, truncating to 0..255.
func enhanceContrast(img *image.Gray, factor float64) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return
	}
	var sum int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			sum += int(row[x])
		}
	}
	mean := float64(int(float64(sum)/float64(n) + 0.5))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			v := mean + factor*(float64(row[x])-mean)
			switch {
			case v <= 0:
				row[x] = 0
			case v >= 255:
				row[x] = 255
			default:
				row[x] = uint8(v)
			}
		}
	}
}
