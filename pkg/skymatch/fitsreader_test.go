package skymatch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fitsFile builds a minimal 16-bit FITS image. value maps pixel coordinates
// to physical values in [0, 65535].
func fitsFile(w, h int, extra []string, value func(x, y int) int) []byte {
	cards := []string{
		fmt.Sprintf("%-8s= %20s", "SIMPLE", "T"),
		fmt.Sprintf("%-8s= %20d", "BITPIX", 16),
		fmt.Sprintf("%-8s= %20d", "NAXIS", 2),
		fmt.Sprintf("%-8s= %20d", "NAXIS1", w),
		fmt.Sprintf("%-8s= %20d", "NAXIS2", h),
		fmt.Sprintf("%-8s= %20d / unsigned offset", "BZERO", 32768),
	}
	cards = append(cards, extra...)
	cards = append(cards, "END")

	var buf bytes.Buffer
	for _, c := range cards {
		buf.WriteString(fmt.Sprintf("%-80s", c))
	}
	for buf.Len()%fitsBlockSize != 0 {
		buf.WriteByte(' ')
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			binary.Write(&buf, binary.BigEndian, int16(value(x, y)-32768))
		}
	}
	for buf.Len()%fitsBlockSize != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func TestReadFits(t *testing.T) {
	data := fitsFile(4, 3, []string{"OBJECT  = 'Orion   '           / target"}, func(x, y int) int {
		return x*1000 + y
	})

	f, err := ReadFitsFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, 16, f.BitPix)
	assert.Equal(t, "Orion", f.Header.ObjectName())
	assert.InDelta(t, 0, f.Pixels[0], 1e-9)
	assert.InDelta(t, 3002, f.Pixels[2*4+3], 1e-9)
}

func TestReadFits_Truncated(t *testing.T) {
	data := fitsFile(4, 3, nil, func(x, y int) int { return 0 })
	_, err := ReadFitsFromBytes(data[:fitsBlockSize+4])
	assert.Error(t, err)
}

// fitsHeaderOnly builds an 8-bit FITS header announcing w x h pixels with no
// data following it.
func fitsHeaderOnly(w, h int64) []byte {
	var buf bytes.Buffer
	for _, c := range []string{
		fmt.Sprintf("%-8s= %20s", "SIMPLE", "T"),
		fmt.Sprintf("%-8s= %20d", "BITPIX", 8),
		fmt.Sprintf("%-8s= %20d", "NAXIS", 2),
		fmt.Sprintf("%-8s= %20d", "NAXIS1", w),
		fmt.Sprintf("%-8s= %20d", "NAXIS2", h),
		"END",
	} {
		buf.WriteString(fmt.Sprintf("%-80s", c))
	}
	for buf.Len()%fitsBlockSize != 0 {
		buf.WriteByte(' ')
	}
	return buf.Bytes()
}

func TestReadFits_HostileDimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h int64
		want string
	}{
		{"product wraps to zero", 1 << 32, 1 << 32, "too large"},
		{"single axis huge", 1 << 40, 1, "too large"},
		{"over the pixel cap", 30000, 30000, "too large"},
		{"plausible but absent", 3000, 3000, "truncated"},
		{"one row missing", 100, 1, "truncated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := fitsHeaderOnly(tt.w, tt.h)
			_, err := ReadFitsFromBytes(data)
			assert.ErrorContains(t, err, tt.want)

			var decodeErr *ImageDecodeError
			require.NotPanics(t, func() {
				_, err = ExtractPoints(data, 128, 2)
			})
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestReadFits_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.fits")
	require.NoError(t, os.WriteFile(path, fitsFile(3, 2, nil, func(x, y int) int { return x }), 0o644))
	f, err := ReadFits(path)
	require.NoError(t, err)
	assert.Len(t, f.Pixels, 6)

	require.NoError(t, os.WriteFile(path, fitsHeaderOnly(1<<32, 1<<32), 0o644))
	_, err = ReadFits(path)
	assert.ErrorContains(t, err, "too large")
}

func TestFitsToGray_InconsistentData(t *testing.T) {
	_, err := FitsToGray(&FitsImageData{Width: 1 << 32, Height: 1 << 32})
	assert.Error(t, err)
	_, err = FitsToGray(&FitsImageData{Width: 2, Height: 2, Pixels: []float64{1, 2, 3}})
	assert.Error(t, err)

	g, err := FitsToGray(&FitsImageData{Width: 2, Height: 1, Pixels: []float64{0, 10}})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255}, g.Pix)
}

func TestReadFits_UnsupportedBitpix(t *testing.T) {
	data := fitsFile(2, 2, nil, func(x, y int) int { return 0 })
	data = bytes.Replace(data, []byte(fmt.Sprintf("%20d", 16)), []byte(fmt.Sprintf("%20d", 12)), 1)
	_, err := ReadFitsFromBytes(data)
	assert.ErrorContains(t, err, "BITPIX")
}

func TestParseFitsValue(t *testing.T) {
	assert.Equal(t, "M42", parseFitsValue(" 'M42     '  / comment"))
	assert.Equal(t, "O'Brien", parseFitsValue("'O''Brien'"))
	assert.Equal(t, "True", parseFitsValue("                   T"))
	assert.Equal(t, "2.5", parseFitsValue("  2.5 / seconds"))
}

func TestDecodeGray_FitsStretch(t *testing.T) {
	data := fitsFile(176, 128, nil, func(x, y int) int {
		if (x >= 40 && x < 45 && y >= 30 && y < 35) || (x >= 120 && x < 125 && y >= 90 && y < 95) {
			return 30000
		}
		return 1000
	})

	g, err := DecodeGray(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(42, 32).Y)

	pts, err := ExtractPoints(data, 200, 2)
	require.NoError(t, err)
	assert.Equal(t, []Point{{42, 32}, {122, 92}}, pts)
}

func TestDebayerRGGB_Uniform(t *testing.T) {
	data := make([]float64, 6*4)
	for i := range data {
		data[i] = 7
	}
	for _, v := range DebayerRGGB(data, 6, 4) {
		assert.InDelta(t, 7, v, 1e-12)
	}
}

func TestDecodeGray_BayerFits(t *testing.T) {
	data := fitsFile(8, 8, []string{"BAYERPAT= 'RGGB    '"}, func(x, y int) int {
		if x%2 == 0 && y%2 == 0 {
			return 3000
		}
		return 1000
	})
	g, err := DecodeGray(data)
	require.NoError(t, err)

	// Debayering flattens the mosaic into a nearly uniform frame.
	lo, hi := uint8(255), uint8(0)
	for y := 2; y < 6; y++ {
		for x := 2; x < 6; x++ {
			v := g.GrayAt(x, y).Y
			lo, hi = min(lo, v), max(hi, v)
		}
	}
	assert.Less(t, int(hi)-int(lo), 255)
}
