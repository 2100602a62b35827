package results

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"mcpconformance-go/internal/runner"
)

var runsBucket = []byte("runs")

// RunRecord is the index entry stored per run. ULID keys keep the bucket
// in chronological order.
type RunRecord struct {
	RunID          string    `json:"runId"`
	Suite          string    `json:"suite"`
	StartedAt      time.Time `json:"startedAt"`
	Passed         int       `json:"passed"`
	Failed         int       `json:"failed"`
	ExpectedFailed int       `json:"expectedFailed"`
	Errored        int       `json:"errored"`
	Dir            string    `json:"dir"`
}

// Index is the bbolt-backed run history.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens (or creates) the run index database.
func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run index %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init run index: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

// Record stores one finished run.
func (i *Index) Record(res *runner.SuiteResult, dir string) error {
	rec := RunRecord{
		RunID:          res.RunID,
		Suite:          res.Suite,
		StartedAt:      res.StartedAt,
		Passed:         res.Passed,
		Failed:         res.Failed,
		ExpectedFailed: res.ExpectedFailed,
		Errored:        res.Errored,
		Dir:            dir,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(rec.RunID), data)
	})
}

// Recent returns up to n most recent runs, newest first.
func (i *Index) Recent(n int) ([]RunRecord, error) {
	var out []RunRecord
	err := i.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt run record %s: %w", k, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Get looks up one run by ID.
func (i *Index) Get(runID string) (*RunRecord, error) {
	var rec *RunRecord
	err := i.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(runsBucket).Get([]byte(runID))
		if v == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		rec = &RunRecord{}
		return json.Unmarshal(v, rec)
	})
	return rec, err
}
