//go:build purego || js

package skymatch

import (
	"fmt"
	"image"
	"math"
)

// Mat is a pure Go 8-bit single channel matrix.
type Mat struct {
	data []uint8
	rows int
	cols int
}

func NewMat() Mat { return Mat{} }

func newMatWithSize(rows, cols int) Mat {
	return Mat{data: make([]uint8, rows*cols), rows: rows, cols: cols}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m *Mat) Close() {
	m.data = nil
	m.rows = 0
	m.cols = 0
}

func (m Mat) Clone() Mat {
	out := newMatWithSize(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

// Backend names the pixel backend compiled in.
func Backend() string { return "purego" }

// NewMatFromGray copies an image.Gray into a Mat.
func NewMatFromGray(g *image.Gray) (Mat, error) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return Mat{}, fmt.Errorf("empty image")
	}
	m := newMatWithSize(h, w)
	for y := 0; y < h; y++ {
		off := g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y)
		copy(m.data[y*w:(y+1)*w], g.Pix[off:off+w])
	}
	return m, nil
}

// ToGray copies the Mat into a new image.Gray.
func (m Mat) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.cols, m.rows))
	copy(g.Pix, m.data)
	return g
}

func decodeMat(buf []byte) (Mat, error) {
	g, err := DecodeGray(buf)
	if err != nil {
		return Mat{}, err
	}
	return NewMatFromGray(g)
}

func ensureSize(dst *Mat, rows, cols int) {
	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = newMatWithSize(rows, cols)
	}
}

// --- Pure Go CV operations ---

// equalizeCLAHE follows OpenCV's CLAHE: per tile histograms clipped at
// clipLimit times the mean bin height, the excess spread over all bins, and
// bilinear interpolation between the mappings of the four nearest tiles.
func equalizeCLAHE(src Mat, dst *Mat, clipLimit float64, tileGrid int) {
	rows, cols := src.rows, src.cols
	ensureSize(dst, rows, cols)

	tileW := (cols + tileGrid - 1) / tileGrid
	tileH := (rows + tileGrid - 1) / tileGrid
	tilesX := (cols + tileW - 1) / tileW
	tilesY := (rows + tileH - 1) / tileH

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, cols), min(y0+tileH, rows)
			luts[ty*tilesX+tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	for y := 0; y < rows; y++ {
		tyf := float64(y)/float64(tileH) - 0.5
		ty1 := int(math.Floor(tyf))
		ya := tyf - float64(ty1)
		ty2 := min(ty1+1, tilesY-1)
		ty1 = max(ty1, 0)

		for x := 0; x < cols; x++ {
			txf := float64(x)/float64(tileW) - 0.5
			tx1 := int(math.Floor(txf))
			xa := txf - float64(tx1)
			tx2 := min(tx1+1, tilesX-1)
			tx1 = max(tx1, 0)

			v := src.data[y*cols+x]
			top := float64(luts[ty1*tilesX+tx1][v])*(1-xa) + float64(luts[ty1*tilesX+tx2][v])*xa
			bottom := float64(luts[ty2*tilesX+tx1][v])*(1-xa) + float64(luts[ty2*tilesX+tx2][v])*xa
			dst.data[y*cols+x] = clampByte(math.Round(top*(1-ya) + bottom*ya))
		}
	}
}

func tileLUT(src Mat, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		row := src.data[y*src.cols : y*src.cols+src.cols]
		for x := x0; x < x1; x++ {
			hist[row[x]]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	if clipLimit > 0 {
		limit := max(int(clipLimit*float64(area)/256), 1)
		excess := 0
		for i := range hist {
			if hist[i] > limit {
				excess += hist[i] - limit
				hist[i] = limit
			}
		}
		batch := excess / 256
		residual := excess - batch*256
		for i := range hist {
			hist[i] += batch
		}
		if residual > 0 {
			step := max(256/residual, 1)
			for i := 0; i < 256 && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = clampByte(math.Round(float64(sum) * scale))
	}
	return lut
}

// thresholdAtLeast marks pixels >= thresh with 255.
func thresholdAtLeast(src Mat, dst *Mat, thresh int) {
	ensureSize(dst, src.rows, src.cols)
	for i, v := range src.data {
		if int(v) >= thresh {
			dst.data[i] = 255
		} else {
			dst.data[i] = 0
		}
	}
}

// morphOpenRect erodes then dilates with a square kernel. Pixels outside the
// image never take part, which is OpenCV's default border for morphology.
func morphOpenRect(src Mat, dst *Mat, kernelSize int) {
	eroded := newMatWithSize(src.rows, src.cols)
	rectFilter(src, &eroded, kernelSize/2, func(a, b uint8) bool { return a < b })
	ensureSize(dst, src.rows, src.cols)
	rectFilter(eroded, dst, kernelSize/2, func(a, b uint8) bool { return a > b })
}

// rectFilter replaces each pixel with the extreme of its neighbourhood, where
// better(a, b) reports whether a wins over b.
func rectFilter(src Mat, dst *Mat, half int, better func(a, b uint8) bool) {
	rows, cols := src.rows, src.cols
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			best := src.data[r*cols+c]
			for dr := -half; dr <= half; dr++ {
				rr := r + dr
				if rr < 0 || rr >= rows {
					continue
				}
				for dc := -half; dc <= half; dc++ {
					cc := c + dc
					if cc < 0 || cc >= cols {
						continue
					}
					if v := src.data[rr*cols+cc]; better(v, best) {
						best = v
					}
				}
			}
			dst.data[r*cols+c] = best
		}
	}
}

// connectedBlobs labels 8-connected foreground components in raster order of
// their first pixel.
func connectedBlobs(mask Mat) []blob {
	rows, cols := mask.rows, mask.cols
	visited := make([]bool, rows*cols)
	var blobs []blob
	var stack []int

	for start := range mask.data {
		if mask.data[start] == 0 || visited[start] {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], start)
		var sumX, sumY float64
		area := 0

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			r, c := idx/cols, idx%cols
			sumX += float64(c)
			sumY += float64(r)
			area++

			for dr := -1; dr <= 1; dr++ {
				rr := r + dr
				if rr < 0 || rr >= rows {
					continue
				}
				for dc := -1; dc <= 1; dc++ {
					cc := c + dc
					if cc < 0 || cc >= cols {
						continue
					}
					n := rr*cols + cc
					if mask.data[n] != 0 && !visited[n] {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
		blobs = append(blobs, blob{X: sumX / float64(area), Y: sumY / float64(area), Area: area})
	}
	return blobs
}
