package skymatch

import (
	"fmt"
	"math"

	"github.com/BurntSushi/toml"
)

// CatalogStar is one star of a catalog constellation, positioned in degrees.
type CatalogStar struct {
	Name string  `toml:"name"`
	RA   float64 `toml:"ra"`
	Dec  float64 `toml:"dec"`
}

// CatalogConstellation is the canonical star pattern of one constellation.
type CatalogConstellation struct {
	Name  string        `toml:"name"`
	Stars []CatalogStar `toml:"stars"`
}

// Catalog is the source document the reference database is compiled from.
type Catalog struct {
	Constellations []CatalogConstellation `toml:"constellation"`
}

// LoadCatalog reads a TOML star catalog.
func LoadCatalog(path string) (*Catalog, error) {
	var c Catalog
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	if len(c.Constellations) == 0 {
		return nil, fmt.Errorf("catalog %s lists no constellations", path)
	}
	return &c, nil
}

// CompileReference returns the descriptors of every Delaunay triangle of a
// canonical point set, dropping exact repeats.
func CompileReference(points []Point, p *MatcherParams) ([]Descriptor, error) {
	if len(points) < 3 {
		return nil, &InsufficientPointsError{Got: len(points), Need: 3}
	}
	kept := Dedup(points, 0)
	tris, err := triangulate(points, kept)
	if err != nil {
		return nil, err
	}

	var out []Descriptor
	for _, t := range tris {
		d, ok := TriangleDescriptor(points, t, p)
		if !ok || containsDescriptor(out, d) {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("points form no usable triangle")
	}
	return out, nil
}

func containsDescriptor(list []Descriptor, d Descriptor) bool {
	for _, e := range list {
		if WithinTolerance(e, d, 0) {
			return true
		}
	}
	return false
}

// CompileCatalog builds a reference database from a star catalog. Each
// constellation is projected onto the tangent plane at its centre before its
// triangles are described.
func CompileCatalog(c *Catalog, p *MatcherParams) (*ReferenceDB, error) {
	db := NewReferenceDB(p.Descriptor)
	for _, con := range c.Constellations {
		pts, err := ProjectStars(con.Stars)
		if err != nil {
			return nil, fmt.Errorf("projecting %s: %w", con.Name, err)
		}
		descs, err := CompileReference(pts, p)
		if err != nil {
			return nil, fmt.Errorf("compiling %s: %w", con.Name, err)
		}
		if err := db.Add(con.Name, descs); err != nil {
			return nil, err
		}
	}
	return db, db.Validate()
}

// ProjectStars maps catalog stars to plane coordinates with a gnomonic
// projection about their mean direction. East is left and north is up in
// image orientation, so y grows southwards.
func ProjectStars(stars []CatalogStar) ([]Point, error) {
	if len(stars) == 0 {
		return nil, fmt.Errorf("no stars")
	}

	// Mean of unit vectors survives the RA wrap at 0/360.
	var sx, sy, sz float64
	for _, s := range stars {
		x, y, z := unitVector(s.RA, s.Dec)
		sx += x
		sy += y
		sz += z
	}
	norm := math.Sqrt(sx*sx + sy*sy + sz*sz)
	if norm == 0 {
		return nil, fmt.Errorf("stars have no mean direction")
	}
	ra0 := math.Atan2(sy, sx)
	dec0 := math.Asin(sz / norm)

	pts := make([]Point, len(stars))
	for i, s := range stars {
		ra := s.RA * math.Pi / 180
		dec := s.Dec * math.Pi / 180
		cosc := math.Sin(dec0)*math.Sin(dec) + math.Cos(dec0)*math.Cos(dec)*math.Cos(ra-ra0)
		if cosc <= 0 {
			return nil, fmt.Errorf("star %s is more than 90 degrees from the pattern centre", s.Name)
		}
		xi := math.Cos(dec) * math.Sin(ra-ra0) / cosc
		eta := (math.Cos(dec0)*math.Sin(dec) - math.Sin(dec0)*math.Cos(dec)*math.Cos(ra-ra0)) / cosc
		pts[i] = Point{X: -xi * 180 / math.Pi, Y: -eta * 180 / math.Pi}
	}
	return pts, nil
}

func unitVector(raDeg, decDeg float64) (x, y, z float64) {
	ra := raDeg * math.Pi / 180
	dec := decDeg * math.Pi / 180
	return math.Cos(dec) * math.Cos(ra), math.Cos(dec) * math.Sin(ra), math.Sin(dec)
}
