package identify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skymatch/internal/journal"
	"skymatch/pkg/skymatch"
)

const kiteDB = `{
  "Kite": [[0.81, 0.92], [0.77, 0.87]],
  "Needle": [[0.15, 0.9]]
}`

// kitePNG renders four 5x5 stars whose Delaunay triangles match Kite.
func kitePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 176, 128))
	for _, c := range [][2]int{{20, 20}, {120, 20}, {60, 90}, {130, 100}} {
		for y := c[1] - 2; y <= c[1]+2; y++ {
			for x := c[0] - 2; x <= c[0]+2; x++ {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testService(t *testing.T) *Service {
	t.Helper()
	db, err := skymatch.ParseReferenceDB(strings.NewReader(kiteDB))
	require.NoError(t, err)
	e, err := skymatch.NewExtractor(nil)
	require.NoError(t, err)
	store, err := journal.New(filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &Service{
		Pipeline: skymatch.NewPipeline(e, skymatch.NewMatcher(db, nil)),
		Store:    store,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestService_RunRecordsAndNotifies(t *testing.T) {
	s := testService(t)
	var notified []journal.Record
	s.Notify = func(r journal.Record) { notified = append(notified, r) }

	id, rec, err := s.Run(context.Background(), Request{Source: "kite.png", Data: kitePNG(t)})
	require.NoError(t, err)
	assert.Equal(t, "Kite", id.Result.Winner)
	assert.Equal(t, "Kite", rec.Winner)
	assert.NotEmpty(t, rec.ID)
	require.Len(t, notified, 1)
	assert.Equal(t, rec.ID, notified[0].ID)

	stored, err := s.Store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "matched", stored.State)
}

func TestService_DecodeFailureIsJournaled(t *testing.T) {
	s := testService(t)
	_, rec, err := s.Run(context.Background(), Request{ID: "bad", Source: "junk.bin", Data: []byte("junk")})

	var de *skymatch.ImageDecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, journal.StateFailed, rec.State)

	stored, err := s.Store.Get("bad")
	require.NoError(t, err)
	assert.Contains(t, stored.Error, "could not read image")
}

func TestService_ExtractorOverride(t *testing.T) {
	s := testService(t)
	p := skymatch.NewExtractorParams()
	p.MinArea = 30
	e, err := skymatch.NewExtractor(p)
	require.NoError(t, err)

	id, rec, err := s.Run(context.Background(), Request{Source: "kite.png", Data: kitePNG(t), Extractor: e})
	require.NoError(t, err)
	assert.Empty(t, id.Extraction.Points)
	assert.Equal(t, "insufficient_points", rec.State)
}

func TestService_CancelledIsNotJournaled(t *testing.T) {
	s := testService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Run(ctx, Request{ID: "gone", Source: "kite.png", Data: kitePNG(t)})
	assert.ErrorIs(t, err, context.Canceled)
	recs, err := s.Store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
