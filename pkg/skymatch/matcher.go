package skymatch

import (
	"fmt"

	"skymatch/pkg/skymatch/delaunay"
)

// Matcher identifies constellations in point sets against a read-only
// reference database. A Matcher is safe for concurrent use.
type Matcher struct {
	db     *ReferenceDB
	dbErr  error
	params MatcherParams
}

// NewMatcher creates a matcher over db. A nil db is allowed; every match then
// ends in StateDatabaseMissing.
func NewMatcher(db *ReferenceDB, p *MatcherParams) *Matcher {
	if p == nil {
		p = NewMatcherParams()
	}
	m := &Matcher{db: db, params: *p}
	if db == nil {
		m.dbErr = &DatabaseUnavailableError{Err: fmt.Errorf("no reference database loaded")}
	}
	return m
}

// NewMatcherFromFile loads the reference database at path. A load failure is
// kept and reported through DatabaseErr and every MatchResult status rather
// than returned.
func NewMatcherFromFile(path string, p *MatcherParams) *Matcher {
	db, err := LoadReferenceDB(path)
	m := NewMatcher(db, p)
	if err != nil {
		m.db = nil
		m.dbErr = err
	}
	return m
}

// Database returns the reference database, or nil when none is loaded.
func (m *Matcher) Database() *ReferenceDB { return m.db }

// DatabaseErr returns the *DatabaseUnavailableError recorded at construction.
func (m *Matcher) DatabaseErr() error { return m.dbErr }

// Params returns a copy of the matcher parameters.
func (m *Matcher) Params() MatcherParams { return m.params }

// Match runs triangulation, descriptor lookup and voting over points.
//
// With fewer than MinPoints distinct points it returns a result in
// StateInsufficientPoints together with an *InsufficientPointsError. A
// missing or incompatible database is not an error: the result carries
// StateDatabaseMissing and the full triangulation so callers can still draw
// the detection.
func (m *Matcher) Match(points []Point) (*MatchResult, error) {
	kept := Dedup(points, m.params.DedupRadius)
	if len(kept) < m.params.MinPoints {
		return &MatchResult{
				State:  StateInsufficientPoints,
				Status: StatusInsufficientPoints,
			}, &InsufficientPointsError{
				Got:  len(kept),
				Need: m.params.MinPoints,
			}
	}

	tris, err := triangulate(points, kept)
	if err != nil {
		return nil, fmt.Errorf("triangulation failed: %w", err)
	}
	result := &MatchResult{Triangles: tris}

	if reason := m.databaseProblem(); reason != nil {
		result.State = StateDatabaseMissing
		result.Status = statusDatabasePrefix + reason.Error()
		return result, nil
	}

	m.vote(points, result)
	return result, nil
}

func (m *Matcher) databaseProblem() error {
	if m.db == nil {
		if m.dbErr != nil {
			return m.dbErr
		}
		return fmt.Errorf("no reference database loaded")
	}
	if len(m.db.Constellations) > 0 && m.db.Kind != m.params.Descriptor {
		return fmt.Errorf("database holds %s descriptors, matcher expects %s", m.db.Kind, m.params.Descriptor)
	}
	return nil
}

func (m *Matcher) vote(points []Point, result *MatchResult) {
	voters := make(map[string][]Triangle)
	index := make(map[string]int)

	for _, t := range result.Triangles {
		d, ok := TriangleDescriptor(points, t, &m.params)
		if !ok {
			continue
		}
		for _, c := range m.db.Constellations {
			if !c.matches(d, m.params.Tolerance) {
				continue
			}
			i, seen := index[c.Name]
			if !seen {
				i = len(result.Votes)
				index[c.Name] = i
				result.Votes = append(result.Votes, Vote{Name: c.Name})
			}
			result.Votes[i].Count++
			voters[c.Name] = append(voters[c.Name], t)
		}
	}

	// Strictly greater keeps the earliest encountered constellation on ties.
	best := -1
	for i, v := range result.Votes {
		if best < 0 || v.Count > result.Votes[best].Count {
			best = i
		}
	}
	if best < 0 {
		result.State = StateUnmatched
		result.Status = StatusNoMatch
		return
	}

	result.State = StateMatched
	result.Winner = result.Votes[best].Name
	result.VotingTriangles = voters[result.Winner]
	result.Status = statusIdentifiedPrefix + result.Winner
}

// Dedup returns the indices of points to keep, dropping every point that lies
// within radius of an earlier kept point. A radius of 0 keeps all points.
func Dedup(points []Point, radius float64) []int {
	kept := make([]int, 0, len(points))
	for i, p := range points {
		dup := false
		if radius > 0 {
			for _, j := range kept {
				if p.Dist(points[j]) < radius {
					dup = true
					break
				}
			}
		}
		if !dup {
			kept = append(kept, i)
		}
	}
	return kept
}

// triangulate runs Delaunay over the kept subset and maps the triangles back
// to indices into points. kept is ascending so the mapped triples stay sorted.
func triangulate(points []Point, kept []int) ([]Triangle, error) {
	sub := make([]delaunay.Point, len(kept))
	for i, idx := range kept {
		sub[i] = delaunay.Point{X: points[idx].X, Y: points[idx].Y}
	}
	dt, err := delaunay.Triangulate(sub)
	if err != nil {
		return nil, err
	}
	tris := make([]Triangle, len(dt))
	for i, t := range dt {
		tris[i] = Triangle{kept[t[0]], kept[t[1]], kept[t[2]]}
	}
	return tris, nil
}
