package skymatch

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// isFits sniffs the mandatory first FITS card.
func isFits(buf []byte) bool {
	return bytes.HasPrefix(buf, []byte("SIMPLE  ="))
}

// DecodeGray decodes any supported image format, FITS included, to 8-bit
// luminance.
func DecodeGray(buf []byte) (*image.Gray, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if isFits(buf) {
		fits, err := ReadFitsFromBytes(buf)
		if err != nil {
			return nil, err
		}
		return FitsToGray(fits)
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	return ToGray(img), nil
}

// ToGray converts any image to 8-bit luminance with the ITU-R 601 weights.
func ToGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			lum := (19595*r + 38470*g + 7471*b + 1<<15) >> 24
			out.Pix[y*out.Stride+x] = uint8(lum)
		}
	}
	return out
}

// FitsToGray stretches FITS pixels linearly between their minimum and maximum
// into 8 bits. Colour sensors with an RGGB BAYERPAT are debayered to
// luminance first.
func FitsToGray(fits *FitsImageData) (*image.Gray, error) {
	w, h := fits.Width, fits.Height
	if w <= 0 || h <= 0 || w > MaxFitsPixels/h || len(fits.Pixels) != w*h {
		return nil, fmt.Errorf("FITS image %d x %d does not match %d pixels", w, h, len(fits.Pixels))
	}
	data := fits.Pixels
	if fits.Header != nil && strings.EqualFold(fits.Header.GetString("BAYERPAT"), "RGGB") {
		data = DebayerRGGB(data, w, h)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	if hi <= lo {
		return out, nil
	}
	scale := 255 / (hi - lo)
	for i, v := range data {
		out.Pix[i] = clampByte(math.Round((v - lo) * scale))
	}
	return out, nil
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
