package skymatch

// DebayerRGGB demosaics a raw RGGB frame bilinearly and returns luminance,
// (R + G + B) / 3 per pixel. Even rows alternate R,G and odd rows G,B. Edge
// pixels reuse the nearest row or column.
func DebayerRGGB(data []float64, width, height int) []float64 {
	out := make([]float64, width*height)
	px := func(x, y int) float64 {
		x = min(max(x, 0), width-1)
		y = min(max(y, 0), height-1)
		return data[y*width+x]
	}
	cross := func(x, y int) float64 {
		return (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
	}
	diag := func(x, y int) float64 {
		return (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
	}
	horiz := func(x, y int) float64 { return (px(x-1, y) + px(x+1, y)) / 2 }
	vert := func(x, y int) float64 { return (px(x, y-1) + px(x, y+1)) / 2 }

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b float64
			switch {
			case y%2 == 0 && x%2 == 0:
				r, g, b = px(x, y), cross(x, y), diag(x, y)
			case y%2 == 0:
				r, g, b = horiz(x, y), px(x, y), vert(x, y)
			case x%2 == 0:
				r, g, b = vert(x, y), px(x, y), horiz(x, y)
			default:
				r, g, b = diag(x, y), cross(x, y), px(x, y)
			}
			out[y*width+x] = (r + g + b) / 3
		}
	}
	return out
}
