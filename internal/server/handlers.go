package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"skymatch/internal/identify"
	"skymatch/pkg/skymatch"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type errorResponse struct {
	Error string `json:"error"`
}

type constellationInfo struct {
	Name        string `json:"name"`
	Descriptors int    `json:"descriptors"`
}

type constellationsResponse struct {
	Descriptor     string              `json:"descriptor"`
	Constellations []constellationInfo `json:"constellations"`
}

type identifyResponse struct {
	ID              string              `json:"id"`
	State           string              `json:"state"`
	Winner          string              `json:"winner,omitempty"`
	Status          string              `json:"status"`
	Error           string              `json:"error,omitempty"`
	Width           int                 `json:"width"`
	Height          int                 `json:"height"`
	Points          []skymatch.Point    `json:"points"`
	Areas           []int               `json:"areas"`
	Triangles       []skymatch.Triangle `json:"triangles"`
	VotingTriangles []skymatch.Triangle `json:"voting_triangles"`
	Votes           []skymatch.Vote     `json:"votes"`
	ExtractMS       int64               `json:"extract_ms"`
	MatchMS         int64               `json:"match_ms"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleConstellations(w http.ResponseWriter, r *http.Request) {
	m := s.service.Pipeline.Matcher()
	db := m.Database()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, m.DatabaseErr())
		return
	}
	resp := constellationsResponse{Descriptor: db.Kind.String(), Constellations: []constellationInfo{}}
	for _, name := range db.Names() {
		resp.Constellations = append(resp.Constellations, constellationInfo{
			Name:        name,
			Descriptors: len(db.Lookup(name).Descriptors),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	id, reqID, ok := s.identify(w, r)
	if !ok {
		return
	}

	resp := identifyResponse{
		ID:              reqID,
		State:           id.Result.State.String(),
		Winner:          id.Result.Winner,
		Status:          id.Result.Status,
		Width:           id.Extraction.Width,
		Height:          id.Extraction.Height,
		Points:          id.Extraction.Points,
		Areas:           id.Extraction.Areas,
		Triangles:       nonNil(id.Result.Triangles),
		VotingTriangles: nonNil(id.Result.VotingTriangles),
		Votes:           id.Result.Votes,
		ExtractMS:       id.ExtractDuration.Milliseconds(),
		MatchMS:         id.MatchDuration.Milliseconds(),
	}
	if resp.Votes == nil {
		resp.Votes = []skymatch.Vote{}
	}
	if id.Err != nil {
		resp.Error = id.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.identify(w, r)
	if !ok {
		return
	}
	out, err := skymatch.RenderOverlayBytes(id.Extraction, id.Result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Skymatch-State", id.Result.State.String())
	if id.Result.Winner != "" {
		w.Header().Set("X-Skymatch-Winner", id.Result.Winner)
	}
	w.Write(out)
}

// identify runs the shared part of the identify and overlay endpoints. It
// writes the error response itself and reports ok=false when it did.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (*skymatch.Identification, string, bool) {
	reqID := r.Header.Get("X-Request-ID")

	extractor, err := s.extractorFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, reqID, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	data, source, err := readImage(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("image exceeds %d bytes", tooLarge.Limit))
			return nil, reqID, false
		}
		writeError(w, http.StatusBadRequest, err)
		return nil, reqID, false
	}

	id, _, err := s.service.Run(r.Context(), identify.Request{
		ID:        reqID,
		Source:    source,
		Data:      data,
		Extractor: extractor,
	})
	if err != nil {
		var de *skymatch.ImageDecodeError
		switch {
		case errors.As(err, &de):
			writeError(w, http.StatusBadRequest, err)
		case r.Context().Err() != nil:
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return nil, reqID, false
	}
	return id, reqID, true
}

// readImage takes the "image" field of a multipart form, or else the raw
// request body.
func readImage(r *http.Request) ([]byte, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, hdr, err := r.FormFile("image")
		if err != nil {
			return nil, "", fmt.Errorf("reading form field \"image\": %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return data, hdr.Filename, err
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return data, "upload", nil
}

// extractorFromQuery builds a per-request extractor when threshold or
// min_area is given. It returns nil to use the pipeline's own.
func (s *Server) extractorFromQuery(r *http.Request) (*skymatch.Extractor, error) {
	q := r.URL.Query()
	if !q.Has("threshold") && !q.Has("min_area") {
		return nil, nil
	}
	p := s.service.Pipeline.Extractor().Params()
	for key, dst := range map[string]*int{"threshold": &p.Threshold, "min_area": &p.MinArea} {
		if !q.Has(key) {
			continue
		}
		v, err := strconv.Atoi(q.Get(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", key, q.Get(key))
		}
		*dst = v
	}
	return skymatch.NewExtractor(&p)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.service.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("journal disabled"))
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := s.service.Store.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if s.service.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("journal disabled"))
		return
	}
	rec, err := s.service.Store.Get(mux.Vars(r)["id"])
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, errors.New("no such identification"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.service.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("journal disabled"))
		return
	}
	counts, err := s.service.Store.WinnerCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func nonNil(t []skymatch.Triangle) []skymatch.Triangle {
	if t == nil {
		return []skymatch.Triangle{}
	}
	return t
}
