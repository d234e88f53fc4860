package skymatch

import (
	"context"
	"errors"
	"time"
)

// Identification is the outcome of one image passing through the pipeline.
type Identification struct {
	Extraction *Extraction
	Result     *MatchResult
	// Err holds the InsufficientPointsError behind StateInsufficientPoints.
	Err error

	ExtractDuration time.Duration
	MatchDuration   time.Duration
}

// Pipeline runs extraction followed by matching. Both stages are shared
// read-only, so one Pipeline serves any number of concurrent requests.
type Pipeline struct {
	extractor *Extractor
	matcher   *Matcher
}

// NewPipeline combines an extractor and a matcher.
func NewPipeline(e *Extractor, m *Matcher) *Pipeline {
	return &Pipeline{extractor: e, matcher: m}
}

func (p *Pipeline) Extractor() *Extractor { return p.extractor }
func (p *Pipeline) Matcher() *Matcher     { return p.matcher }

// WithExtractor returns a pipeline that shares the matcher but extracts with
// e, for per-request extraction settings.
func (p *Pipeline) WithExtractor(e *Extractor) *Pipeline {
	return &Pipeline{extractor: e, matcher: p.matcher}
}

// Identify extracts points from data and matches them. Only an
// *ImageDecodeError or a context error is returned; every other terminal
// state, too few points included, is reported in the result. ctx is checked
// between the two stages, never inside one.
func (p *Pipeline) Identify(ctx context.Context, data []byte) (*Identification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ext, err := p.extractor.Extract(data)
	if err != nil {
		return nil, err
	}
	id := &Identification{Extraction: ext, ExtractDuration: time.Since(start)}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	res, err := p.matcher.Match(ext.Points)
	id.MatchDuration = time.Since(start)
	var ipe *InsufficientPointsError
	switch {
	case err == nil:
	case errors.As(err, &ipe):
		id.Err = err
	default:
		return nil, err
	}
	id.Result = res
	return id, nil
}
