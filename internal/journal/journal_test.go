package journal

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skymatch/pkg/skymatch"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "journal", "skymatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func matched(winner string) *skymatch.Identification {
	return &skymatch.Identification{
		Extraction: &skymatch.Extraction{Points: make([]skymatch.Point, 7)},
		Result: &skymatch.MatchResult{
			State:           skymatch.StateMatched,
			Winner:          winner,
			Triangles:       make([]skymatch.Triangle, 8),
			VotingTriangles: make([]skymatch.Triangle, 5),
			Votes:           []skymatch.Vote{{Name: winner, Count: 5}, {Name: "Gemini", Count: 1}},
			Status:          "pattern identified: " + winner,
		},
		ExtractDuration: 30 * time.Millisecond,
		MatchDuration:   2 * time.Millisecond,
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("", "orion.png", matched("Orion"), nil)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "matched", rec.State)
	assert.Equal(t, "Orion", rec.Winner)
	assert.Equal(t, 7, rec.Points)
	assert.Equal(t, 8, rec.Triangles)
	assert.Equal(t, 5, rec.VotingTriangles)
	assert.Equal(t, 32*time.Millisecond, rec.Duration)
	assert.Empty(t, rec.Error)

	failed := NewRecord("req-1", "broken.png", nil, errors.New("could not read image"))
	assert.Equal(t, "req-1", failed.ID)
	assert.Equal(t, StateFailed, failed.State)
	assert.Equal(t, "could not read image", failed.Error)

	few := NewRecord("", "sparse.png", &skymatch.Identification{
		Extraction: &skymatch.Extraction{Points: make([]skymatch.Point, 2)},
		Result:     &skymatch.MatchResult{State: skymatch.StateInsufficientPoints, Status: skymatch.StatusInsufficientPoints},
		Err:        &skymatch.InsufficientPointsError{Got: 2, Need: 4},
	}, nil)
	assert.Equal(t, "insufficient_points", few.State)
	assert.Contains(t, few.Error, "need more stars")
}

func TestStore_AddAndGet(t *testing.T) {
	s := testStore(t)
	rec := NewRecord("", "orion.png", matched("Orion"), nil)
	require.NoError(t, s.Add(rec))

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "orion.png", got.Source)
	assert.Equal(t, "Orion", got.Winner)
	assert.Equal(t, rec.Votes, got.Votes)
	assert.Equal(t, 32*time.Millisecond, got.Duration)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Second)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	for i, name := range []string{"Orion", "Gemini", "Scorpius"} {
		rec := NewRecord("", name+".png", matched(name), nil)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Add(rec))
	}
	none := NewRecord("", "clouds.png", &skymatch.Identification{
		Extraction: &skymatch.Extraction{Points: make([]skymatch.Point, 9)},
		Result:     &skymatch.MatchResult{State: skymatch.StateUnmatched, Status: skymatch.StatusNoMatch},
	}, nil)
	none.CreatedAt = base.Add(time.Hour)
	require.NoError(t, s.Add(none))

	recs, err := s.Recent(3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "clouds.png", recs[0].Source)
	assert.Empty(t, recs[0].Winner)
	assert.Nil(t, recs[0].Votes)
	assert.Equal(t, "Scorpius", recs[1].Winner)
	assert.Equal(t, "Gemini", recs[2].Winner)

	counts, err := s.WinnerCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Orion": 1, "Gemini": 1, "Scorpius": 1}, counts)
}

func TestStore_DuplicateID(t *testing.T) {
	s := testStore(t)
	rec := NewRecord("fixed", "a.png", matched("Orion"), nil)
	require.NoError(t, s.Add(rec))
	assert.Error(t, s.Add(rec))
}

func TestStore_Nil(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
	assert.Error(t, s.Add(Record{}))
	_, err := s.Recent(1)
	assert.Error(t, err)
}

func TestStore_EmptyRecent(t *testing.T) {
	recs, err := testStore(t).Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs)
}
