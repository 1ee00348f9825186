package summary

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"
)

// DBName is the name of the summary database within a run directory
const DBName = "summary.db"

var errReadOnly = errors.New("summary database was opened read-only")

// histogramBuckets is the number of buckets in recorded histograms
const histogramBuckets = 30

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	started TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS scalars (
	run   TEXT NOT NULL REFERENCES runs(id),
	tag   TEXT NOT NULL,
	step  INTEGER NOT NULL,
	value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS scalars_tag ON scalars(tag, step);
CREATE TABLE IF NOT EXISTS histograms (
	run      TEXT NOT NULL REFERENCES runs(id),
	tag      TEXT NOT NULL,
	step     INTEGER NOT NULL,
	count    INTEGER NOT NULL,
	min      REAL NOT NULL,
	max      REAL NOT NULL,
	mean     REAL NOT NULL,
	stddev   REAL NOT NULL,
	dividers TEXT NOT NULL,
	counts   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS histograms_tag ON histograms(tag, step);
`

// SQLite is a Recorder which stores summaries in a SQLite database
type SQLite struct {
	db    *sql.DB
	runID string
	dir   string
}

// NewSQLite opens the summary database in dir, creating dir and the
// database if needed, and registers a new run in it.
func NewSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newSQLite: %v", err)
	}

	s, err := open(dir)
	if err != nil {
		return nil, fmt.Errorf("newSQLite: %v", err)
	}

	s.runID = uuid.NewString()
	_, err = s.db.Exec("INSERT INTO runs (id, name, started) VALUES (?, ?, ?)",
		s.runID, filepath.Base(dir), time.Now().Format(time.RFC3339))
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("newSQLite: could not register run: %v", err)
	}

	return s, nil
}

// OpenSQLite opens an existing summary database in dir read-only,
// without registering a new run. Recording to the returned SQLite
// fails.
func OpenSQLite(dir string) (*SQLite, error) {
	path := filepath.Join(dir, DBName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("openSQLite: %v", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("openSQLite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("openSQLite: %v", err)
	}
	return &SQLite{db: db, dir: dir}, nil
}

// open opens or creates the database in dir and creates its schema
func open(dir string) (*SQLite, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, DBName))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create schema: %v", err)
	}
	return &SQLite{db: db, dir: dir}, nil
}

// RunID returns the unique ID of the run recorded by s
func (s *SQLite) RunID() string {
	return s.runID
}

// Dir returns the run directory
func (s *SQLite) Dir() string {
	return s.dir
}

// Scalar records a single value
func (s *SQLite) Scalar(tag string, step int, value float64) error {
	if s.runID == "" {
		return fmt.Errorf("scalar: %v", errReadOnly)
	}
	_, err := s.db.Exec("INSERT INTO scalars (run, tag, step, value) "+
		"VALUES (?, ?, ?, ?)", s.runID, tag, step, value)
	if err != nil {
		return fmt.Errorf("scalar: %v", err)
	}
	return nil
}

// Histogram records the distribution of values
func (s *SQLite) Histogram(tag string, step int, values []float64) error {
	if s.runID == "" {
		return fmt.Errorf("histogram: %v", errReadOnly)
	}
	if len(values) == 0 {
		return fmt.Errorf("histogram: no values to record")
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("histogram: %v in summary histogram for %v",
				v, tag)
		}
	}
	h := newHistogram(step, values)

	dividers, err := json.Marshal(h.Dividers)
	if err != nil {
		return fmt.Errorf("histogram: %v", err)
	}
	counts, err := json.Marshal(h.Counts)
	if err != nil {
		return fmt.Errorf("histogram: %v", err)
	}

	_, err = s.db.Exec("INSERT INTO histograms (run, tag, step, count, min, "+
		"max, mean, stddev, dividers, counts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, "+
		"?, ?)", s.runID, tag, step, h.Count, h.Min, h.Max, h.Mean, h.StdDev,
		string(dividers), string(counts))
	if err != nil {
		return fmt.Errorf("histogram: %v", err)
	}
	return nil
}

// newHistogram computes the histogram of values
func newHistogram(step int, values []float64) Histogram {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}

	// The last divider must exceed the maximum value
	if hi == lo {
		hi = lo + 1
	}
	dividers := make([]float64, histogramBuckets+1)
	floats.Span(dividers, lo, hi)
	dividers[histogramBuckets] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)

	return Histogram{
		Step:     step,
		Count:    len(values),
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		Mean:     mean,
		StdDev:   std,
		Dividers: dividers,
		Counts:   counts,
	}
}

// Scalars returns the scalars recorded with the given tag by all runs
// in the database, ordered by step
func (s *SQLite) Scalars(tag string) ([]Scalar, error) {
	rows, err := s.db.Query("SELECT step, value FROM scalars WHERE tag = ? "+
		"ORDER BY step, rowid", tag)
	if err != nil {
		return nil, fmt.Errorf("scalars: %v", err)
	}
	defer rows.Close()

	var scalars []Scalar
	for rows.Next() {
		var sc Scalar
		if err := rows.Scan(&sc.Step, &sc.Value); err != nil {
			return nil, fmt.Errorf("scalars: %v", err)
		}
		scalars = append(scalars, sc)
	}
	return scalars, rows.Err()
}

// Histograms returns the histograms recorded with the given tag by all
// runs in the database, ordered by step
func (s *SQLite) Histograms(tag string) ([]Histogram, error) {
	rows, err := s.db.Query("SELECT step, count, min, max, mean, stddev, "+
		"dividers, counts FROM histograms WHERE tag = ? ORDER BY step, rowid",
		tag)
	if err != nil {
		return nil, fmt.Errorf("histograms: %v", err)
	}
	defer rows.Close()

	var histograms []Histogram
	for rows.Next() {
		var h Histogram
		var dividers, counts string
		if err := rows.Scan(&h.Step, &h.Count, &h.Min, &h.Max, &h.Mean,
			&h.StdDev, &dividers, &counts); err != nil {
			return nil, fmt.Errorf("histograms: %v", err)
		}
		if err := json.Unmarshal([]byte(dividers), &h.Dividers); err != nil {
			return nil, fmt.Errorf("histograms: %v", err)
		}
		if err := json.Unmarshal([]byte(counts), &h.Counts); err != nil {
			return nil, fmt.Errorf("histograms: %v", err)
		}
		histograms = append(histograms, h)
	}
	return histograms, rows.Err()
}

// Tags returns the tags of all recorded scalars and histograms
func (s *SQLite) Tags() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT tag FROM scalars UNION " +
		"SELECT DISTINCT tag FROM histograms ORDER BY tag")
	if err != nil {
		return nil, fmt.Errorf("tags: %v", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("tags: %v", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
