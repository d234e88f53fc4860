package skymatch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// Constellation is one named entry of the reference database.
type Constellation struct {
	Name        string
	Descriptors []Descriptor
}

func (c *Constellation) matches(d Descriptor, tol float64) bool {
	for _, ref := range c.Descriptors {
		if WithinTolerance(d, ref, tol) {
			return true
		}
	}
	return false
}

// ReferenceDB maps constellation names to reference descriptors. Entries keep
// the order of the source document, which is the tie-break order of voting.
// A ReferenceDB must not be modified once a Matcher uses it.
type ReferenceDB struct {
	Kind           DescriptorKind
	Constellations []Constellation
}

// NewReferenceDB creates an empty database for descriptors of kind.
func NewReferenceDB(kind DescriptorKind) *ReferenceDB {
	return &ReferenceDB{Kind: kind}
}

// LoadReferenceDB reads and validates a reference database file. Every
// failure is returned as a *DatabaseUnavailableError.
func LoadReferenceDB(path string) (*ReferenceDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DatabaseUnavailableError{Path: path, Err: err}
	}
	defer f.Close()

	db, err := ParseReferenceDB(bufio.NewReader(f))
	if err != nil {
		return nil, &DatabaseUnavailableError{Path: path, Err: err}
	}
	return db, nil
}

// ParseReferenceDB decodes a JSON object of the form
// {"name": [[v, v], ...], ...} and validates it. The descriptor kind is taken
// from the descriptor length: 2 for ratios, 3 for angles.
func ParseReferenceDB(r io.Reader) (*ReferenceDB, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading reference database: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("reference database must be a JSON object, got %v", tok)
	}

	db := &ReferenceDB{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading constellation name: %w", err)
		}
		name, _ := tok.(string)

		var raw [][]float64
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("reading descriptors of %q: %w", name, err)
		}
		c := Constellation{Name: name, Descriptors: make([]Descriptor, len(raw))}
		for i, d := range raw {
			c.Descriptors[i] = Descriptor(d)
		}
		db.Constellations = append(db.Constellations, c)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading reference database: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after reference database object")
	}

	db.Kind = inferKind(db)
	if err := db.Validate(); err != nil {
		return nil, err
	}
	return db, nil
}

func inferKind(db *ReferenceDB) DescriptorKind {
	for _, c := range db.Constellations {
		if len(c.Descriptors) == 0 {
			continue
		}
		if len(c.Descriptors[0]) == DescriptorAngle.Len() {
			return DescriptorAngle
		}
		return DescriptorRatio
	}
	return DescriptorRatio
}

// Validate reports every structural problem of the database at once.
func (db *ReferenceDB) Validate() error {
	var errs *multierror.Error
	want := db.Kind.Len()
	seen := make(map[string]bool, len(db.Constellations))

	for _, c := range db.Constellations {
		if c.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("constellation with empty name"))
		}
		if seen[c.Name] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate constellation %q", c.Name))
		}
		seen[c.Name] = true
		if len(c.Descriptors) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("%q has no descriptors", c.Name))
		}
		for i, d := range c.Descriptors {
			if len(d) != want {
				errs = multierror.Append(errs, fmt.Errorf("%q descriptor %d has %d values, want %d", c.Name, i, len(d), want))
				continue
			}
			if err := checkRange(d, db.Kind); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%q descriptor %d: %w", c.Name, i, err))
			}
		}
	}
	return errs.ErrorOrNil()
}

func checkRange(d Descriptor, kind DescriptorKind) error {
	upper := 1.0
	if kind == DescriptorAngle {
		upper = 180
	}
	for _, v := range d {
		if math.IsNaN(v) || v < 0 || v > upper {
			return fmt.Errorf("value %v outside [0, %v]", v, upper)
		}
	}
	return nil
}

// Names returns the constellation names in database order.
func (db *ReferenceDB) Names() []string {
	names := make([]string, len(db.Constellations))
	for i, c := range db.Constellations {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the named constellation, or nil.
func (db *ReferenceDB) Lookup(name string) *Constellation {
	for i := range db.Constellations {
		if db.Constellations[i].Name == name {
			return &db.Constellations[i]
		}
	}
	return nil
}

// DescriptorCount returns the number of reference descriptors over all
// constellations.
func (db *ReferenceDB) DescriptorCount() int {
	n := 0
	for _, c := range db.Constellations {
		n += len(c.Descriptors)
	}
	return n
}

// Add appends a constellation. It fails on a duplicate name or a descriptor
// of the wrong kind.
func (db *ReferenceDB) Add(name string, descriptors []Descriptor) error {
	if name == "" {
		return fmt.Errorf("constellation name is empty")
	}
	if db.Lookup(name) != nil {
		return fmt.Errorf("constellation %q already present", name)
	}
	for i, d := range descriptors {
		if len(d) != db.Kind.Len() {
			return fmt.Errorf("%q descriptor %d has %d values, want %d", name, i, len(d), db.Kind.Len())
		}
	}
	db.Constellations = append(db.Constellations, Constellation{Name: name, Descriptors: descriptors})
	return nil
}

// WriteJSON writes the database as an indented JSON object in database order.
func (db *ReferenceDB) WriteJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("{")
	for i, c := range db.Constellations {
		if i > 0 {
			bw.WriteString(",")
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "\n  %s: [", key)
		for j, d := range c.Descriptors {
			if j > 0 {
				bw.WriteString(",")
			}
			bw.WriteString("\n    [")
			for k, v := range d {
				if k > 0 {
					bw.WriteString(", ")
				}
				bw.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
			}
			bw.WriteString("]")
		}
		if len(c.Descriptors) > 0 {
			bw.WriteString("\n  ")
		}
		bw.WriteString("]")
	}
	if len(db.Constellations) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// Save writes the database to path, creating parent directories.
func (db *ReferenceDB) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := db.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
