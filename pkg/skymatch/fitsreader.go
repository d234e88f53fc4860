package skymatch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	fitsCardSize  = 80
	fitsBlockSize = 2880

	// MaxFitsPixels caps the pixel count of the primary image.
	MaxFitsPixels = 1 << 26
)

// FitsHeader holds parsed FITS header cards.
type FitsHeader struct {
	Cards map[string]string
}

func (h *FitsHeader) GetString(key string) string {
	return h.Cards[strings.ToUpper(key)]
}

func (h *FitsHeader) GetInt(key string) (int, bool) {
	v, ok := h.Cards[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func (h *FitsHeader) GetDouble(key string) (float64, bool) {
	v, ok := h.Cards[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// ObjectName returns the OBJECT card, often the target constellation or star.
func (h *FitsHeader) ObjectName() string { return h.GetString("OBJECT") }

// FitsImageData is the primary HDU of a FITS file with physical pixel values
// (BZERO and BSCALE applied).
type FitsImageData struct {
	Width  int
	Height int
	BitPix int
	Pixels []float64
	Header *FitsHeader
}

// ReadFits reads the primary image of a FITS file.
func ReadFits(path string) (*FitsImageData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	return readFits(f, info.Size())
}

// ReadFitsFromBytes reads the primary image of an in-memory FITS file.
func ReadFitsFromBytes(data []byte) (*FitsImageData, error) {
	return readFits(bytes.NewReader(data), int64(len(data)))
}

// readFits reads from r, whose total length is size bytes.
func readFits(r io.Reader, size int64) (*FitsImageData, error) {
	header, headerBytes, err := readFitsHeader(r)
	if err != nil {
		return nil, err
	}

	bitpix, _ := header.GetInt("BITPIX")
	naxis, _ := header.GetInt("NAXIS")
	width, _ := header.GetInt("NAXIS1")
	height, _ := header.GetInt("NAXIS2")
	if naxis < 2 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", naxis, width, height)
	}
	if width > MaxFitsPixels || height > MaxFitsPixels/width {
		return nil, fmt.Errorf("FITS image too large: %d x %d", width, height)
	}
	bzero, ok := header.GetDouble("BZERO")
	if !ok {
		bzero = 0
	}
	bscale, ok := header.GetDouble("BSCALE")
	if !ok {
		bscale = 1
	}

	var bytesPer int
	var sample func([]byte) float64
	switch bitpix {
	case 8:
		bytesPer, sample = 1, func(b []byte) float64 { return float64(b[0]) }
	case 16:
		bytesPer, sample = 2, func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }
	case 32:
		bytesPer, sample = 4, func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) }
	case -32:
		bytesPer, sample = 4, func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) }
	case -64:
		bytesPer, sample = 8, func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) }
	default:
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}

	// Only the first plane of a data cube is read.
	n := width * height
	if need, left := int64(n)*int64(bytesPer), size-headerBytes; need > left {
		return nil, fmt.Errorf("truncated FITS: %d x %d at BITPIX %d needs %d bytes, %d remain", width, height, bitpix, need, left)
	}
	raw := make([]byte, n*bytesPer)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading %d-bit pixel data: %w", bitpix, err)
	}
	pixels := make([]float64, n)
	for i := range pixels {
		v := sample(raw[i*bytesPer:])
		if math.IsNaN(v) {
			v = 0
		}
		pixels[i] = v*bscale + bzero
	}

	return &FitsImageData{
		Width:  width,
		Height: height,
		BitPix: bitpix,
		Pixels: pixels,
		Header: header,
	}, nil
}

// readFitsHeader consumes header blocks up to and including the one holding
// the END card, and reports how many bytes that was.
func readFitsHeader(r io.Reader) (*FitsHeader, int64, error) {
	header := &FitsHeader{Cards: make(map[string]string)}
	block := make([]byte, fitsBlockSize)
	var consumed int64
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, 0, fmt.Errorf("reading FITS header: %w", err)
		}
		consumed += fitsBlockSize
		for off := 0; off < fitsBlockSize; off += fitsCardSize {
			card := string(block[off : off+fitsCardSize])
			keyword := strings.TrimSpace(card[:8])
			if keyword == "END" {
				return header, consumed, nil
			}
			if keyword == "" || card[8] != '=' {
				continue
			}
			if v := parseFitsValue(card[10:]); v != "" {
				header.Cards[strings.ToUpper(keyword)] = v
			}
		}
	}
}

// parseFitsValue strips the comment and quoting from a card value field.
func parseFitsValue(field string) string {
	field = strings.TrimSpace(field)
	if strings.HasPrefix(field, "'") {
		// '' is an escaped quote inside a string value.
		var sb strings.Builder
		for i := 1; i < len(field); i++ {
			if field[i] == '\'' {
				if i+1 < len(field) && field[i+1] == '\'' {
					sb.WriteByte('\'')
					i++
					continue
				}
				break
			}
			sb.WriteByte(field[i])
		}
		return strings.TrimRight(sb.String(), " ")
	}
	if i := strings.IndexByte(field, '/'); i >= 0 {
		field = field[:i]
	}
	field = strings.TrimSpace(field)
	switch field {
	case "T":
		return "True"
	case "F":
		return "False"
	}
	return field
}
