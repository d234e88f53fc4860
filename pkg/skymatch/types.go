package skymatch

import (
	"fmt"
	"image"
	"math"
)

// Point is a candidate star centroid in image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.2f,%.2f)", p.X, p.Y)
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Triangle is an unordered triple of point indices, stored ascending.
type Triangle [3]int

// DescriptorKind selects the shape descriptor convention.
type DescriptorKind int

const (
	// DescriptorRatio uses [shortest/longest, middle/longest].
	DescriptorRatio DescriptorKind = iota
	// DescriptorAngle uses the three sorted interior angles in degrees.
	DescriptorAngle
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorRatio:
		return "ratio"
	case DescriptorAngle:
		return "angle"
	default:
		return "unknown"
	}
}

// Len returns the number of values in a descriptor of this kind.
func (k DescriptorKind) Len() int {
	if k == DescriptorAngle {
		return 3
	}
	return 2
}

// ParseDescriptorKind parses "ratio" or "angle".
func ParseDescriptorKind(s string) (DescriptorKind, error) {
	switch s {
	case "ratio", "":
		return DescriptorRatio, nil
	case "angle":
		return DescriptorAngle, nil
	default:
		return DescriptorRatio, fmt.Errorf("unknown descriptor kind %q", s)
	}
}

// Descriptor is a scale and rotation invariant shape signature of one triangle.
type Descriptor []float64

// ExtractorParams contains all parameters for point extraction.
type ExtractorParams struct {
	// Threshold is the binarization level in [0, 255]; pixels at or above it
	// are foreground.
	Threshold int
	// MinArea is the exclusive lower bound on blob area in pixels.
	MinArea int
	// MaxArea is the exclusive upper bound on blob area in pixels.
	MaxArea        int
	ClaheClipLimit float64
	ClaheTileGrid  int
	OpenKernelSize int
}

// NewExtractorParams creates an ExtractorParams with default values.
func NewExtractorParams() *ExtractorParams {
	return &ExtractorParams{
		Threshold:      200,
		MinArea:        2,
		MaxArea:        100,
		ClaheClipLimit: 2.0,
		ClaheTileGrid:  8,
		OpenKernelSize: 3,
	}
}

// Validate checks the parameter ranges.
func (p *ExtractorParams) Validate() error {
	if p.Threshold < 0 || p.Threshold > 255 {
		return fmt.Errorf("threshold must be in [0, 255], got %d", p.Threshold)
	}
	if p.MinArea < 1 {
		return fmt.Errorf("min area must be positive, got %d", p.MinArea)
	}
	if p.MaxArea <= p.MinArea {
		return fmt.Errorf("max area %d must exceed min area %d", p.MaxArea, p.MinArea)
	}
	if p.ClaheTileGrid < 1 {
		return fmt.Errorf("CLAHE tile grid must be positive, got %d", p.ClaheTileGrid)
	}
	if p.OpenKernelSize < 1 || p.OpenKernelSize%2 == 0 {
		return fmt.Errorf("opening kernel size must be a positive odd number, got %d", p.OpenKernelSize)
	}
	return nil
}

// Extraction is the output of the point extractor.
type Extraction struct {
	Width  int
	Height int
	Points []Point
	Areas  []int
	// Cleaned is the equalized grayscale image, kept for display.
	Cleaned *image.Gray
	// Mask is the binarized image after morphological opening.
	Mask *image.Gray
}

// MatcherParams configures descriptor computation and lookup.
type MatcherParams struct {
	Descriptor DescriptorKind
	// Tolerance is the maximum elementwise absolute difference between a
	// triangle descriptor and a reference descriptor.
	Tolerance float64
	// Precision is the number of decimal places descriptors are rounded to.
	Precision int
	// MinPoints is the smallest point count worth triangulating.
	MinPoints int
	// DedupRadius merges points closer than this many pixels; 0 disables.
	DedupRadius float64
}

// NewMatcherParams returns the ratio-descriptor defaults.
func NewMatcherParams() *MatcherParams {
	return &MatcherParams{
		Descriptor:  DescriptorRatio,
		Tolerance:   0.05,
		Precision:   2,
		MinPoints:   4,
		DedupRadius: 1.5,
	}
}

// NewAngleMatcherParams returns the angle-descriptor defaults.
func NewAngleMatcherParams() *MatcherParams {
	return &MatcherParams{
		Descriptor:  DescriptorAngle,
		Tolerance:   1.5,
		Precision:   1,
		MinPoints:   4,
		DedupRadius: 1.5,
	}
}

// Validate checks the parameter ranges.
func (p *MatcherParams) Validate() error {
	if p.Descriptor != DescriptorRatio && p.Descriptor != DescriptorAngle {
		return fmt.Errorf("unknown descriptor kind %d", p.Descriptor)
	}
	if p.Tolerance < 0 || math.IsNaN(p.Tolerance) {
		return fmt.Errorf("tolerance must be non-negative, got %f", p.Tolerance)
	}
	if p.Precision < 0 || p.Precision > 6 {
		return fmt.Errorf("precision must be in [0, 6], got %d", p.Precision)
	}
	if p.MinPoints < 3 {
		return fmt.Errorf("min points must be at least 3, got %d", p.MinPoints)
	}
	if p.DedupRadius < 0 {
		return fmt.Errorf("dedup radius must be non-negative, got %f", p.DedupRadius)
	}
	return nil
}

// MatchState is the terminal state of one matching run.
type MatchState int

const (
	StateMatched MatchState = iota
	StateUnmatched
	StateInsufficientPoints
	StateDatabaseMissing
)

func (s MatchState) String() string {
	switch s {
	case StateMatched:
		return "matched"
	case StateUnmatched:
		return "unmatched"
	case StateInsufficientPoints:
		return "insufficient_points"
	case StateDatabaseMissing:
		return "database_missing"
	default:
		return "unknown"
	}
}

// Status strings reported in MatchResult.Status.
const (
	StatusInsufficientPoints = "insufficient points"
	StatusNoMatch            = "no pattern recognized"
	statusIdentifiedPrefix   = "pattern identified: "
	statusDatabasePrefix     = "reference database unavailable: "
)

// Vote is the number of triangles that matched one constellation.
type Vote struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// MatchResult is the output of one matching run.
type MatchResult struct {
	State MatchState
	// Winner is empty when nothing matched.
	Winner string
	// VotingTriangles are the triangles that voted for Winner, used for
	// overlay rendering only.
	VotingTriangles []Triangle
	// Triangles is the full triangulation.
	Triangles []Triangle
	// Votes lists every constellation that received a vote, in order of
	// first encounter.
	Votes  []Vote
	Status string
}

// Matched reports whether a constellation was identified.
func (r *MatchResult) Matched() bool {
	return r != nil && r.State == StateMatched
}

// VotesFor returns the vote count of one constellation.
func (r *MatchResult) VotesFor(name string) int {
	for _, v := range r.Votes {
		if v.Name == name {
			return v.Count
		}
	}
	return 0
}
