// Package dataset persists the pipeline artifacts: the raw record set, the
// lookup table, the merged output, the analysis checkpoint, and the pipeline
// manifest.
package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/civicsignal/docket-cli/internal/model"
)

// Artifact file names within the data directory.
const (
	RawDataFile     = "raw_data.json"
	LookupTableFile = "lookup_table.json"
	MergedDataFile  = "data.json"
	ManifestFile    = "pipeline.yaml"

	checkpointSuffix = ".checkpoint"
)

// Paths resolves artifact locations under a data directory.
type Paths struct {
	Dir string
}

func (p Paths) RawData() string     { return filepath.Join(p.Dir, RawDataFile) }
func (p Paths) LookupTable() string { return filepath.Join(p.Dir, LookupTableFile) }
func (p Paths) MergedData() string  { return filepath.Join(p.Dir, MergedDataFile) }
func (p Paths) Manifest() string    { return filepath.Join(p.Dir, ManifestFile) }

// Checkpoint is the ephemeral whole-table checkpoint path; it has the same
// shape as the lookup table file and is deleted on successful completion.
func (p Paths) Checkpoint() string {
	return filepath.Join(p.Dir, LookupTableFile+checkpointSuffix)
}

// writeAtomic writes data to path via a temp file and rename, so an
// interrupted write can never be loaded as a torn artifact on restart.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: close %s", tmpName)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: rename to %s", path)
	}
	return nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "dataset: marshal %s", path)
	}
	return writeAtomic(path, data)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "dataset: unmarshal %s", path)
	}
	return nil
}

// SaveRawRecords persists the raw record set.
func SaveRawRecords(path string, records []*model.RawRecord) error {
	return saveJSON(path, records)
}

// LoadRawRecords reads the raw record set.
func LoadRawRecords(path string) ([]*model.RawRecord, error) {
	var records []*model.RawRecord
	if err := loadJSON(path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveLookupTable persists the lookup table (or a checkpoint of it).
func SaveLookupTable(path string, table []*model.LookupEntry) error {
	return saveJSON(path, table)
}

// LoadLookupTable reads a lookup table or checkpoint.
func LoadLookupTable(path string) ([]*model.LookupEntry, error) {
	var table []*model.LookupEntry
	if err := loadJSON(path, &table); err != nil {
		return nil, err
	}
	return table, nil
}

// SaveMergedRows persists the flat merged dataset.
func SaveMergedRows(path string, rows []*model.MergedRow) error {
	return saveJSON(path, rows)
}

// LoadMergedRows reads the flat merged dataset.
func LoadMergedRows(path string) ([]*model.MergedRow, error) {
	var rows []*model.MergedRow
	if err := loadJSON(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Exists reports whether an artifact is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveCheckpoint deletes an analysis checkpoint, ignoring a missing file.
func RemoveCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "dataset: remove checkpoint %s", path)
	}
	return nil
}
