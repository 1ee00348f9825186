package summary

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunName(t *testing.T) {
	now := time.Date(2021, 3, 7, 9, 5, 42, 0, time.UTC)
	h := Hyperparameters{
		LearningRate:         0.0002,
		TargetUpdateInterval: 1000,
		UpdateFreq:           2,
		Frames:               4,
	}

	assert.Equal(t, "DQN_7_9.5.42_-lr_0.0002-upTN_1000-upF_2-frms_4",
		RunName(now, h))
	assert.Equal(t,
		filepath.Join("runs", "Pong", "DQN_7_9.5.42_-lr_0.0002-upTN_1000-upF_2-frms_4"),
		RunDir("runs", "Pong", now, h))
}

func TestSQLiteScalars(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	s, err := NewSQLite(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, s.RunID())
	assert.Equal(t, dir, s.Dir())
	assert.FileExists(t, filepath.Join(dir, DBName))

	require.NoError(t, s.Scalar("v_loss", 2, 0.5))
	require.NoError(t, s.Scalar("v_loss", 1, 1.5))
	require.NoError(t, s.Scalar("reward", 1, 21))

	loss, err := s.Scalars("v_loss")
	require.NoError(t, err)
	assert.Equal(t, []Scalar{{Step: 1, Value: 1.5}, {Step: 2, Value: 0.5}},
		loss)

	none, err := s.Scalars("missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	tags, err := s.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"reward", "v_loss"}, tags)
}

func TestSQLiteHistograms(t *testing.T) {
	s, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	values := []float64{1, 2, 3, 4, 5, 5}
	require.NoError(t, s.Histogram("Q-values", 10, values))
	require.NoError(t, s.Histogram("Q-values", 20, []float64{7}))
	assert.Error(t, s.Histogram("Q-values", 30, nil))

	hists, err := s.Histograms("Q-values")
	require.NoError(t, err)
	require.Len(t, hists, 2)

	h := hists[0]
	assert.Equal(t, 10, h.Step)
	assert.Equal(t, 6, h.Count)
	assert.Equal(t, 1.0, h.Min)
	assert.Equal(t, 5.0, h.Max)
	assert.InDelta(t, 20.0/6.0, h.Mean, 1e-9)
	assert.Len(t, h.Dividers, histogramBuckets+1)
	assert.Len(t, h.Counts, histogramBuckets)

	total := 0.0
	for _, c := range h.Counts {
		total += c
	}
	assert.Equal(t, 6.0, total)

	single := hists[1]
	assert.Equal(t, 1, single.Count)
	assert.Equal(t, 0.0, single.StdDev)
}

func TestSQLiteHistogramNonFinite(t *testing.T) {
	s, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := s.Histogram("Q-values", 1, []float64{bad, 1, 2})
		assert.ErrorContains(t, err, "in summary histogram")
	}

	hists, err := s.Histograms("Q-values")
	require.NoError(t, err)
	assert.Empty(t, hists)
}

func TestSQLiteReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLite(dir)
	require.NoError(t, err)
	require.NoError(t, s.Scalar("test_rew", 0, -21))
	require.NoError(t, s.Close())

	s2, err := NewSQLite(dir)
	require.NoError(t, err)
	defer s2.Close()
	assert.NotEqual(t, s.RunID(), s2.RunID())

	rew, err := s2.Scalars("test_rew")
	require.NoError(t, err)
	assert.Equal(t, []Scalar{{Step: 0, Value: -21}}, rew)
}

func TestOpenSQLite(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenSQLite(dir)
	assert.Error(t, err)

	s, err := NewSQLite(dir)
	require.NoError(t, err)
	require.NoError(t, s.Scalar("test_rew", 4, 1))
	require.NoError(t, s.Close())

	r, err := OpenSQLite(dir)
	require.NoError(t, err)
	defer r.Close()

	tags, err := r.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"test_rew"}, tags)
	assert.Error(t, r.Scalar("test_rew", 5, 1))
	assert.Error(t, r.Histogram("q", 5, []float64{1}))
	_, err = r.db.Exec("INSERT INTO runs (id, name, started) VALUES " +
		"('x', 'x', 'x')")
	assert.Error(t, err)
}

func TestOpenSQLiteSkipsSchema(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, DBName))
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE other (x INTEGER)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	r, err := OpenSQLite(dir)
	require.NoError(t, err)
	_, err = r.Tags()
	assert.Error(t, err)
	require.NoError(t, r.Close())

	db, err = sql.Open("sqlite", filepath.Join(dir, DBName))
	require.NoError(t, err)
	defer db.Close()
	var tables int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM sqlite_master "+
		"WHERE type = 'table'").Scan(&tables))
	assert.Equal(t, 1, tables)
}

func TestNop(t *testing.T) {
	var r Recorder = NewNop()
	assert.NoError(t, r.Scalar("a", 0, 1))
	assert.NoError(t, r.Histogram("a", 0, []float64{1}))
	assert.NoError(t, r.Close())
}
