package identify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"skymatch/internal/journal"
	"skymatch/internal/logging"
	"skymatch/pkg/skymatch"
)

// Request is one image to identify.
type Request struct {
	// ID defaults to a fresh UUID.
	ID     string
	Source string
	Data   []byte
	// Extractor overrides the pipeline's extractor for this request only.
	Extractor *skymatch.Extractor
}

// Service runs identifications and records their outcome. Store and Notify
// are optional.
type Service struct {
	Pipeline *skymatch.Pipeline
	Store    *journal.Store
	Log      *slog.Logger
	Notify   func(journal.Record)
}

// Run identifies req.Data. The returned record is filled even when err is
// non-nil so that callers can report failures uniformly.
func (s *Service) Run(ctx context.Context, req Request) (*skymatch.Identification, journal.Record, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	pipe := s.Pipeline
	if req.Extractor != nil {
		pipe = pipe.WithExtractor(req.Extractor)
	}

	logging.LogIdentificationStart(log, req.ID, req.Source, len(req.Data))
	start := time.Now()
	id, err := pipe.Identify(ctx, req.Data)
	if err != nil {
		logging.LogIdentificationError(log, req.ID, time.Since(start), err)
	} else {
		logging.LogIdentificationComplete(log, req.ID, id)
	}

	rec := journal.NewRecord(req.ID, req.Source, id, err)
	if err != nil {
		rec.Duration = time.Since(start)
	}
	// Cancelled requests are not journaled.
	if ctx.Err() == nil {
		if s.Store != nil {
			if jerr := s.Store.Add(rec); jerr != nil {
				log.Warn("journal write failed", "id", req.ID, "error", jerr)
			}
		}
		if s.Notify != nil {
			s.Notify(rec)
		}
	}
	return id, rec, err
}
