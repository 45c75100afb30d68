// Package storage keeps planning and tracking runs on disk, one directory
// per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	Mode       string             `json:"mode"`
	Model      string             `json:"model"`
	Integrator string             `json:"integrator"`
	Backend    string             `json:"backend"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Horizon    float64            `json:"horizon"`
	Weights    []float64          `json:"weights,omitempty"`
	Reference  [][]float64        `json:"reference"`
	Status     string             `json:"status"`
	Cost       float64            `json:"cost"`
	Steps      int                `json:"steps"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes metadata.json, states.csv and controls.csv under a fresh
// run id.
func (s *Store) Save(run *Run) (string, error) {
	cfg := run.Config
	runID := fmt.Sprintf("%s_%s", cfg.Mode, uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Kind:       run.Kind,
		Mode:       cfg.Mode,
		Model:      cfg.Model.Name,
		Integrator: cfg.Model.Integrator,
		Backend:    cfg.Solver.Backend,
		Timestamp:  time.Now(),
		Dt:         cfg.Dt,
		Horizon:    cfg.Horizon,
		Weights:    cfg.Weights,
		Reference:  cfg.Reference,
		Status:     run.Status,
		Cost:       run.Cost,
		Steps:      len(run.Controls),
		Metrics:    run.Metrics,
	}
	if meta.Metrics == nil {
		meta.Metrics = map[string]float64{}
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeSeries(filepath.Join(runDir, "states.csv"), "x", run.Times, run.States); err != nil {
		return "", err
	}
	if err := writeSeries(filepath.Join(runDir, "controls.csv"), "u", run.Times, run.Controls); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSeries writes one row per sample, time first.
func writeSeries(path, prefix string, times []float64, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(rows) > 0 {
		header := []string{"time"}
		for i := range rows[0] {
			header = append(header, fmt.Sprintf("%s%d", prefix, i))
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}
	for i, r := range rows {
		row := []string{strconv.FormatFloat(times[i], 'f', 6, 64)}
		for _, val := range r {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the stored runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	return readSeries(filepath.Join(s.baseDir, runID, "states.csv"))
}

func (s *Store) LoadControls(runID string) ([][]float64, []float64, error) {
	return readSeries(filepath.Join(s.baseDir, runID, "controls.csv"))
}

func readSeries(path string) ([][]float64, []float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return [][]float64{}, []float64{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	rows := make([][]float64, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		record := records[i]
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), i+1, err)
		}
		row := make([]float64, 0, len(record)-1)
		for j := 1; j < len(record); j++ {
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), i+1, err)
			}
			row = append(row, val)
		}
		times = append(times, t)
		rows = append(rows, row)
	}
	return rows, times, nil
}

type ExportData struct {
	RunMetadata
	Times    []float64   `json:"times"`
	States   [][]float64 `json:"states"`
	Controls [][]float64 `json:"controls"`
}

// Export writes a stored run as one JSON document.
func (s *Store) Export(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := s.LoadStates(runID)
	if err != nil {
		return err
	}
	controls, _, err := s.LoadControls(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{
		RunMetadata: *meta,
		Times:       times,
		States:      states,
		Controls:    controls,
	})
}
