//go:build js && wasm

package main

import (
	"math"
	"sort"
	"strings"
	"syscall/js"

	"skymatch/pkg/skymatch"
)

var (
	lastExtraction *skymatch.Extraction
	lastResult     *skymatch.MatchResult
)

func main() {
	js.Global().Set("identifyImage", js.FuncOf(identifyImage))
	js.Global().Set("renderOverlay", js.FuncOf(renderOverlay))
	select {} // block forever
}

// identifyImage(fileBytes, referenceJSON, options) runs extraction and
// matching. referenceJSON may be empty to extract only. Recognised options
// are threshold, minArea, descriptor and tolerance.
func identifyImage(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("usage: identifyImage(fileBytes, referenceJSON, options)")
	}

	jsBytes := args[0]
	length := jsBytes.Get("length").Int()
	fileBytes := make([]byte, length)
	js.CopyBytesToGo(fileBytes, jsBytes)
	referenceJSON := args[1].String()

	ep := skymatch.NewExtractorParams()
	mp := skymatch.NewMatcherParams()
	if len(args) >= 3 && args[2].Type() == js.TypeObject {
		opts := args[2]
		if v := opts.Get("threshold"); v.Type() == js.TypeNumber {
			ep.Threshold = v.Int()
		}
		if v := opts.Get("minArea"); v.Type() == js.TypeNumber {
			ep.MinArea = v.Int()
		}
		if v := opts.Get("descriptor"); v.Type() == js.TypeString && v.String() == "angle" {
			mp = skymatch.NewAngleMatcherParams()
		}
		if v := opts.Get("tolerance"); v.Type() == js.TypeNumber {
			mp.Tolerance = v.Float()
		}
	}

	extractor, err := skymatch.NewExtractor(ep)
	if err != nil {
		return errorResult(err.Error())
	}
	if err := mp.Validate(); err != nil {
		return errorResult(err.Error())
	}

	ext, err := extractor.Extract(fileBytes)
	if err != nil {
		return errorResult(err.Error())
	}
	lastExtraction = ext
	lastResult = nil

	medianArea, meanArea, stddevArea := computeStats(ext.Areas)
	jsResult := map[string]interface{}{
		"width":      ext.Width,
		"height":     ext.Height,
		"backend":    skymatch.Backend(),
		"medianArea": medianArea,
		"meanArea":   meanArea,
		"stddevArea": stddevArea,
	}

	jsStars := make([]interface{}, len(ext.Points))
	for i, p := range ext.Points {
		jsStars[i] = map[string]interface{}{
			"x":    p.X,
			"y":    p.Y,
			"area": ext.Areas[i],
		}
	}
	jsResult["stars"] = jsStars

	if strings.TrimSpace(referenceJSON) == "" {
		return js.ValueOf(jsResult)
	}

	var matcher *skymatch.Matcher
	db, err := skymatch.ParseReferenceDB(strings.NewReader(referenceJSON))
	if err != nil {
		matcher = skymatch.NewMatcher(nil, mp)
		jsResult["databaseError"] = err.Error()
	} else {
		matcher = skymatch.NewMatcher(db, mp)
	}

	res, err := matcher.Match(ext.Points)
	if res == nil {
		return errorResult(err.Error())
	}
	lastResult = res
	if err != nil {
		jsResult["error"] = err.Error()
	}

	jsVotes := make([]interface{}, len(res.Votes))
	for i, v := range res.Votes {
		jsVotes[i] = map[string]interface{}{"name": v.Name, "count": v.Count}
	}
	jsResult["match"] = map[string]interface{}{
		"state":           res.State.String(),
		"winner":          res.Winner,
		"status":          res.Status,
		"triangles":       triangleArray(res.Triangles),
		"votingTriangles": triangleArray(res.VotingTriangles),
		"votes":           jsVotes,
	}
	return js.ValueOf(jsResult)
}

func renderOverlay(this js.Value, args []js.Value) interface{} {
	if lastExtraction == nil {
		return js.Null()
	}

	jpegBytes, err := skymatch.RenderOverlayBytes(lastExtraction, lastResult)
	if err != nil {
		return js.Null()
	}

	// Create Uint8Array and copy bytes
	uint8Array := js.Global().Get("Uint8Array").New(len(jpegBytes))
	js.CopyBytesToJS(uint8Array, jpegBytes)
	return uint8Array
}

func triangleArray(tris []skymatch.Triangle) []interface{} {
	out := make([]interface{}, len(tris))
	for i, t := range tris {
		out[i] = []interface{}{t[0], t[1], t[2]}
	}
	return out
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}

func computeStats(values []int) (median, mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2.0
	} else {
		median = sorted[n/2]
	}

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean = sum / float64(n)

	sse := 0.0
	for _, v := range sorted {
		d := v - mean
		sse += d * d
	}
	if n > 1 {
		stddev = math.Sqrt(sse / float64(n-1))
	}
	return
}
