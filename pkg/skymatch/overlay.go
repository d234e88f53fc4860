package skymatch

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"os"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	overlayWidth   = 800
	overlaySummary = 44
	overlayQuality = 90
)

var (
	edgeColor   = color.RGBA{90, 90, 110, 255}
	voteColor   = color.RGBA{80, 220, 120, 255}
	starColor   = color.RGBA{255, 210, 60, 255}
	textColor   = color.RGBA{230, 230, 230, 255}
	bannerColor = color.RGBA{0, 0, 0, 255}
)

// RenderOverlay draws the detection and match onto the equalized image and
// writes it as JPEG to outputPath. res may be nil to show extraction only.
func RenderOverlay(ext *Extraction, res *MatchResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	if err := WriteOverlay(f, ext, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RenderOverlayBytes returns the overlay as JPEG bytes.
func RenderOverlayBytes(ext *Extraction, res *MatchResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteOverlay(&buf, ext, res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteOverlay encodes the overlay as JPEG to w.
func WriteOverlay(w io.Writer, ext *Extraction, res *MatchResult) error {
	img, err := renderOverlayImage(ext, res)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: overlayQuality})
}

func renderOverlayImage(ext *Extraction, res *MatchResult) (*image.RGBA, error) {
	if ext == nil || ext.Cleaned == nil || ext.Width == 0 || ext.Height == 0 {
		return nil, fmt.Errorf("no extraction data")
	}

	// Render at 800px wide, proportional height
	scale := float64(overlayWidth) / float64(ext.Width)
	imgH := max(int(float64(ext.Height)*scale), 1)
	scaled := resize.Resize(overlayWidth, uint(imgH), ext.Cleaned, resize.Bilinear)

	img := image.NewRGBA(image.Rect(0, 0, overlayWidth, imgH+overlaySummary))
	draw.Draw(img, img.Bounds(), image.NewUniform(bannerColor), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, overlayWidth, imgH), scaled, scaled.Bounds().Min, draw.Src)

	pt := func(i int) (int, int) {
		p := ext.Points[i]
		return int(p.X*scale + scale/2), int(p.Y*scale + scale/2)
	}
	drawTriangles := func(tris []Triangle, c color.RGBA, thick bool) {
		for _, t := range tris {
			if max(t[0], t[1], t[2]) >= len(ext.Points) {
				continue
			}
			for k := 0; k < 3; k++ {
				x0, y0 := pt(t[k])
				x1, y1 := pt(t[(k+1)%3])
				drawLine(img, x0, y0, x1, y1, c, thick)
			}
		}
	}

	status := fmt.Sprintf("%d stars", len(ext.Points))
	detail := ""
	if res != nil {
		drawTriangles(res.Triangles, edgeColor, false)
		drawTriangles(res.VotingTriangles, voteColor, true)
		status = fmt.Sprintf("%s  (%d stars)", res.Status, len(ext.Points))
		if res.Matched() {
			detail = fmt.Sprintf("%d of %d triangles voted for %s", len(res.VotingTriangles), len(res.Triangles), res.Winner)
		}
	}
	for i := range ext.Points {
		x, y := pt(i)
		drawCircle(img, x, y, 6, starColor)
	}

	face := basicfont.Face7x13
	drawText(img, face, status, 10, imgH+17, textColor)
	if detail != "" {
		drawText(img, face, detail, 10, imgH+35, textColor)
	}
	return img, nil
}

// drawText draws a string with its baseline at (x, y).
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCircle draws a circle outline using the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x, y, err := radius, 0, 0
	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawLine draws a Bresenham line, two pixels wide when thick.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA, thick bool) {
	dx := intAbs(x1 - x0)
	dy := -intAbs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for {
		img.Set(x0, y0, c)
		if thick {
			img.Set(x0+1, y0, c)
			img.Set(x0, y0+1, c)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
