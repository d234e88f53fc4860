//go:build !purego && !js

package skymatch

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps an 8-bit single channel gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

// Column of the area in the ConnectedComponentsWithStats stats matrix.
const ccStatArea = 4

func NewMat() Mat           { return Mat{m: gocv.NewMat()} }
func (mat Mat) Rows() int   { return mat.m.Rows() }
func (mat Mat) Cols() int   { return mat.m.Cols() }
func (mat Mat) Empty() bool { return mat.m.Empty() }
func (mat *Mat) Close()     { mat.m.Close() }
func (mat Mat) Clone() Mat  { return Mat{m: mat.m.Clone()} }

// Backend names the pixel backend compiled in.
func Backend() string { return "opencv" }

// NewMatFromGray copies an image.Gray into a CV_8U Mat.
func NewMatFromGray(g *image.Gray) (Mat, error) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return Mat{}, fmt.Errorf("empty image")
	}
	buf := make([]byte, w*h)
	for y := 0; y < h; y++ {
		off := g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y)
		copy(buf[y*w:(y+1)*w], g.Pix[off:off+w])
	}
	m, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, buf)
	if err != nil {
		return Mat{}, fmt.Errorf("creating mat: %w", err)
	}
	return Mat{m: m}, nil
}

// ToGray copies the Mat into a new image.Gray.
func (mat Mat) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, mat.Cols(), mat.Rows()))
	copy(g.Pix, mat.m.ToBytes())
	return g
}

// decodeMat lets OpenCV decode what it can and hands everything else, FITS
// and GIF included, to the Go decoders.
func decodeMat(buf []byte) (Mat, error) {
	if len(buf) > 0 && !isFits(buf) {
		m, err := gocv.IMDecode(buf, gocv.IMReadGrayScale)
		if err == nil {
			if !m.Empty() {
				return Mat{m: m}, nil
			}
			m.Close()
		}
	}
	g, err := DecodeGray(buf)
	if err != nil {
		return Mat{}, err
	}
	return NewMatFromGray(g)
}

// --- CV operations ---

func equalizeCLAHE(src Mat, dst *Mat, clipLimit float64, tileGrid int) {
	clahe := gocv.NewCLAHEWithParams(clipLimit, image.Pt(tileGrid, tileGrid))
	defer clahe.Close()
	clahe.Apply(src.m, &dst.m)
}

// thresholdAtLeast marks pixels >= thresh with 255. OpenCV's binary
// threshold is strict, so the level is shifted down by one.
func thresholdAtLeast(src Mat, dst *Mat, thresh int) {
	gocv.Threshold(src.m, &dst.m, float32(thresh)-1, 255, gocv.ThresholdBinary)
}

func morphOpenRect(src Mat, dst *Mat, kernelSize int) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernelSize, kernelSize))
	defer kernel.Close()
	gocv.MorphologyEx(src.m, &dst.m, gocv.MorphOpen, kernel)
}

// connectedBlobs labels 8-connected foreground components. Label 0 is the
// background and is not returned.
func connectedBlobs(mask Mat) []blob {
	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(mask.m, &labels, &stats, &centroids)
	blobs := make([]blob, 0, n)
	for i := 1; i < n; i++ {
		blobs = append(blobs, blob{
			X:    centroids.GetDoubleAt(i, 0),
			Y:    centroids.GetDoubleAt(i, 1),
			Area: int(stats.GetIntAt(i, ccStatArea)),
		})
	}
	return blobs
}
