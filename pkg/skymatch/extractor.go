package skymatch

import (
	"fmt"
	"image"
)

// blob is one connected foreground component.
type blob struct {
	X, Y float64
	Area int
}

// Extractor turns raw images into candidate star centroids. It holds no
// per-request state and is safe for concurrent use.
type Extractor struct {
	params ExtractorParams
}

// NewExtractor validates p and creates an extractor. A nil p selects the
// defaults.
func NewExtractor(p *ExtractorParams) (*Extractor, error) {
	if p == nil {
		p = NewExtractorParams()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{params: *p}, nil
}

// Params returns a copy of the extractor parameters.
func (e *Extractor) Params() ExtractorParams { return e.params }

// Extract decodes data and detects candidate stars. Undecodable input yields
// an *ImageDecodeError.
func (e *Extractor) Extract(data []byte) (*Extraction, error) {
	src, err := decodeMat(data)
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}
	defer src.Close()
	return e.extract(src), nil
}

// ExtractGray detects candidate stars in an already decoded image.
func (e *Extractor) ExtractGray(img *image.Gray) (*Extraction, error) {
	src, err := NewMatFromGray(img)
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}
	defer src.Close()
	return e.extract(src), nil
}

func (e *Extractor) extract(src Mat) *Extraction {
	p := e.params

	// Step 1: local contrast normalisation
	equalized := NewMat()
	defer equalized.Close()
	equalizeCLAHE(src, &equalized, p.ClaheClipLimit, p.ClaheTileGrid)

	// Step 2: binarize
	binary := NewMat()
	defer binary.Close()
	thresholdAtLeast(equalized, &binary, p.Threshold)

	// Step 3: opening removes speckles narrower than the kernel
	opened := NewMat()
	defer opened.Close()
	morphOpenRect(binary, &opened, p.OpenKernelSize)

	// Step 4: label and filter by area
	result := &Extraction{
		Width:   src.Cols(),
		Height:  src.Rows(),
		Points:  []Point{},
		Areas:   []int{},
		Cleaned: equalized.ToGray(),
		Mask:    opened.ToGray(),
	}
	for _, b := range connectedBlobs(opened) {
		if b.Area <= p.MinArea || b.Area >= p.MaxArea {
			continue
		}
		result.Points = append(result.Points, Point{X: b.X, Y: b.Y})
		result.Areas = append(result.Areas, b.Area)
	}
	return result
}

// ExtractPoints runs the extractor with default parameters apart from the
// sensitivity threshold and the minimum blob area.
func ExtractPoints(data []byte, threshold, minArea int) ([]Point, error) {
	p := NewExtractorParams()
	p.Threshold = threshold
	p.MinArea = minArea
	e, err := NewExtractor(p)
	if err != nil {
		return nil, fmt.Errorf("invalid extractor parameters: %w", err)
	}
	res, err := e.Extract(data)
	if err != nil {
		return nil, err
	}
	return res.Points, nil
}
