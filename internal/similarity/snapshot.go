// ABOUTME: Snapshot and restore of the similarity index
// ABOUTME: Snapshots are JSON so they can be written to disk or the SQLite store

package similarity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"
)

const snapshotVersion = 1

// ErrEngineMismatch is returned when a snapshot was built by a different engine.
var ErrEngineMismatch = errors.New("snapshot was built with a different embedding engine")

// Snapshot is the serializable state of an index.
type Snapshot struct {
	Version    int      `json:"version"`
	Engine     string   `json:"engine"`
	Dimensions int      `json:"dimensions"`
	Records    []Record `json:"records"`
}

// Snapshot copies the current index state.
func (ix *Index) Snapshot() Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	snap := Snapshot{
		Version:    snapshotVersion,
		Engine:     ix.engineName(),
		Dimensions: ix.dims,
		Records:    make([]Record, len(ix.records)),
	}
	for i, rec := range ix.records {
		snap.Records[i] = *rec
		snap.Records[i].Vector = append([]float32(nil), rec.Vector...)
		snap.Records[i].Payload = maps.Clone(rec.Payload)
	}
	return snap
}

// Restore replaces the index contents with snap.
func (ix *Index) Restore(snap Snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if name := ix.engineName(); snap.Engine != "" && name != "" && snap.Engine != name {
		return fmt.Errorf("%w: %s, index uses %s", ErrEngineMismatch, snap.Engine, name)
	}

	records := make([]*Record, len(snap.Records))
	byKey := make(map[string]int)
	for i := range snap.Records {
		rec := snap.Records[i]
		if len(rec.Vector) != snap.Dimensions {
			return fmt.Errorf("%w: record %d has %d, snapshot has %d",
				ErrDimensionMismatch, i, len(rec.Vector), snap.Dimensions)
		}
		rec.Vector = append([]float32(nil), rec.Vector...)
		rec.Payload = maps.Clone(rec.Payload)
		records[i] = &rec
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	var maxSeq uint64
	for i, rec := range records {
		if rec.Key != "" {
			byKey[rec.Key] = i
		}
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dims != 0 && snap.Dimensions != 0 && ix.dims != snap.Dimensions && len(records) > 0 {
		return fmt.Errorf("%w: snapshot has %d, index has %d", ErrDimensionMismatch, snap.Dimensions, ix.dims)
	}
	if len(records) > 0 {
		ix.dims = snap.Dimensions
	}
	ix.records = records
	ix.byKey = byKey
	ix.seq = maxSeq
	ix.logger.Info("restored similarity index", "records", len(records), "dimensions", ix.dims)
	return nil
}

// MarshalSnapshot encodes the current state as JSON.
func (ix *Index) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(ix.Snapshot())
}

// UnmarshalSnapshot decodes JSON produced by MarshalSnapshot and restores it.
func (ix *Index) UnmarshalSnapshot(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	return ix.Restore(snap)
}

// WriteTo writes the JSON snapshot to w.
func (ix *Index) WriteTo(w io.Writer) (int64, error) {
	data, err := ix.MarshalSnapshot()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFrom restores the index from a JSON snapshot read from r.
func (ix *Index) ReadFrom(r io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(r)
	if err != nil {
		return n, err
	}
	return n, ix.UnmarshalSnapshot(buf.Bytes())
}
