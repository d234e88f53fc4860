package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skymatch/pkg/skymatch"
)

const kiteDB = `{
  "Kite": [[0.81, 0.92], [0.77, 0.87]],
  "Needle": [[0.15, 0.9]]
}`

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

type testEnv struct {
	dir    string
	config string
	db     string
}

// newTestEnv writes a config pointing the database and journal into a
// temporary directory.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	env := &testEnv{dir: dir, config: filepath.Join(dir, "skymatch.toml"), db: filepath.Join(dir, "db.json")}
	require.NoError(t, os.WriteFile(env.db, []byte(kiteDB), 0o644))
	cfg := fmt.Sprintf(`
[match]
database = %q

[journal]
path = %q

[logging]
level = "error"
`, env.db, filepath.Join(dir, "journal.db"))
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))
	return env
}

func (e *testEnv) file(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (e *testEnv) run(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExtract(t *testing.T) {
	env := newTestEnv(t)
	img := env.file(t, "kite.png", kitePNG(t))

	out, err := env.run("extract", img)
	require.NoError(t, err)
	assert.Contains(t, out, "Image size:  176 x 128")
	assert.Contains(t, out, "Stars found: 4")
	assert.Contains(t, out, "Area:        25.0 +/- 0.0 px")

	out, err = env.run("extract", "--json", img)
	require.NoError(t, err)
	var pts []skymatch.Point
	require.NoError(t, json.Unmarshal([]byte(out), &pts))
	assert.Equal(t, []skymatch.Point{{X: 20, Y: 20}, {X: 120, Y: 20}, {X: 60, Y: 90}, {X: 130, Y: 100}}, pts)
}

func TestExtract_InvalidOverride(t *testing.T) {
	env := newTestEnv(t)
	img := env.file(t, "kite.png", kitePNG(t))
	_, err := env.run("extract", "--threshold", "300", img)
	assert.ErrorContains(t, err, "threshold")
}

func TestIdentify_Batch(t *testing.T) {
	env := newTestEnv(t)
	a := env.file(t, "a.png", kitePNG(t))
	b := env.file(t, "b.png", kitePNG(t))
	junk := env.file(t, "junk.png", []byte("junk"))
	overlays := filepath.Join(env.dir, "overlays")

	out, err := env.run("identify", "--overlay", overlays, a, junk, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "junk.png")
	assert.Contains(t, err.Error(), "could not read image")

	assert.Contains(t, out, "a.png: pattern identified: Kite (4 stars, 2/2 triangles)\njunk.png: error:")
	assert.Contains(t, out, "b.png: pattern identified: Kite")
	assert.FileExists(t, filepath.Join(overlays, "a-overlay.jpg"))
	assert.FileExists(t, filepath.Join(overlays, "b-overlay.jpg"))

	out, err = env.run("history")
	require.NoError(t, err)
	assert.Contains(t, out, "WINNER")
	assert.Contains(t, out, "Kite")
	assert.Contains(t, out, "failed")
}

func TestIdentify_InsufficientPoints(t *testing.T) {
	env := newTestEnv(t)
	img := env.file(t, "kite.png", kitePNG(t))

	out, err := env.run("identify", "--min-area", "30", img)
	require.NoError(t, err)
	assert.Contains(t, out, "kite.png: insufficient points (0 stars)")
	assert.Contains(t, out, "need more stars")
}

func TestIdentify_MissingDatabase(t *testing.T) {
	env := newTestEnv(t)
	img := env.file(t, "kite.png", kitePNG(t))

	out, err := env.run("--db", filepath.Join(env.dir, "absent.json"), "--no-journal", "identify", img)
	require.NoError(t, err)
	assert.Contains(t, out, "reference database unavailable")
	assert.Contains(t, out, "(4 stars)")
}

func TestRefDB_CompileAndList(t *testing.T) {
	env := newTestEnv(t)
	db := filepath.Join(env.dir, "compiled", "sky.json")

	out, err := env.run("refdb", "compile", "../../catalog/constellations.toml", "-o", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 5 constellations")
	assert.Contains(t, out, "ratio descriptors")

	out, err = env.run("refdb", "list", db)
	require.NoError(t, err)
	assert.Contains(t, out, "5 constellations, ratio descriptors")
	assert.Contains(t, out, "Ursa Major")
	assert.Contains(t, out, "Scorpius")

	_, err = env.run("refdb", "compile", "--descriptor", "angle", "../../catalog/constellations.toml", "-o", db)
	require.NoError(t, err)
	loaded, err := skymatch.LoadReferenceDB(db)
	require.NoError(t, err)
	assert.Equal(t, skymatch.DescriptorAngle, loaded.Kind)
}

func TestRefDB_ListMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("refdb", "list", filepath.Join(env.dir, "nope.json"))
	assert.ErrorContains(t, err, "reference database")
}

func TestHistory_Empty(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run("history")
	require.NoError(t, err)
	assert.Contains(t, out, "No identifications recorded.")

	_, err = env.run("--no-journal", "history")
	assert.ErrorContains(t, err, "journal is disabled")
}

func TestWatch_RequiresDirectory(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("watch")
	assert.ErrorContains(t, err, "no directory")
}

func TestBadConfig(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.config, []byte("[extract]\nthreshold = \"high\"\n"), 0o644))
	_, err := env.run("extract", "x.png")
	assert.ErrorContains(t, err, "loading config")
}

func TestMedianMAD(t *testing.T) {
	med, mad := medianMAD([]int{25, 9, 25, 25})
	assert.Equal(t, 25.0, med)
	assert.Equal(t, 0.0, mad)

	med, mad = medianMAD([]int{1, 2, 3, 4, 100})
	assert.Equal(t, 3.0, med)
	assert.InDelta(t, 1.4826, mad, 1e-12)
}
