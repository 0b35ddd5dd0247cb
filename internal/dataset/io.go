package dataset

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// LoadOptions carries format-specific load parameters.
type LoadOptions struct {
	SheetName string // excel only; default first sheet
}

// Handler loads and saves one file format.
type Handler struct {
	Load func(path string, opts LoadOptions) (*Dataset, error)
	Save func(d *Dataset, path string) error
}

// Registry dispatches load/save calls by format name. Additional formats
// can be registered at runtime.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a Registry with the built-in csv, excel/xlsx and
// json handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Handler{}}
	r.Register("csv", Handler{Load: loadCSV, Save: saveCSV})
	r.Register("excel", Handler{Load: loadXLSX, Save: saveXLSX})
	r.Register("xlsx", Handler{Load: loadXLSX, Save: saveXLSX})
	r.Register("json", Handler{Load: loadJSON, Save: saveJSON})
	return r
}

// Register adds or replaces the handler for a format.
func (r *Registry) Register(format string, h Handler) {
	r.handlers[strings.ToLower(format)] = h
}

// Formats lists the registered format names, sorted.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.handlers))
	for f := range r.handlers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Load reads a file in the given format.
func (r *Registry) Load(path, format string, opts LoadOptions) (*Dataset, error) {
	h, ok := r.handlers[strings.ToLower(format)]
	if !ok || h.Load == nil {
		return nil, eris.Errorf("dataset: unsupported format %q (supported: %s)",
			format, strings.Join(r.Formats(), ", "))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "dataset: input file %s", path)
	}
	return h.Load(path, opts)
}

// Save writes a file in the given format, creating parent directories.
func (r *Registry) Save(d *Dataset, path, format string) error {
	h, ok := r.handlers[strings.ToLower(format)]
	if !ok || h.Save == nil {
		return eris.Errorf("dataset: unsupported format %q (supported: %s)",
			format, strings.Join(r.Formats(), ", "))
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "dataset: create output dir")
		}
	}
	return h.Save(d, path)
}

func loadCSV(path string, _ LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv")
	}
	if len(records) == 0 {
		return New(), nil
	}

	d := New(records[0]...)
	for _, rec := range records[1:] {
		row := make([]Value, d.NumCols())
		for j := range row {
			if j < len(rec) {
				row[j] = StrOrNA(rec[j])
			} else {
				row[j] = NA()
			}
		}
		if err := d.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func saveCSV(d *Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "dataset: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(d.Columns()); err != nil {
		return eris.Wrap(err, "dataset: write csv header")
	}
	rec := make([]string, d.NumCols())
	for i := 0; i < d.NumRows(); i++ {
		for j := range rec {
			rec[j] = d.At(i, j).String()
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "dataset: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "dataset: flush csv")
	}
	return nil
}

func loadJSON(path string, _ LoadOptions) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read json")
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "dataset: parse json")
	}

	// Column order: first-seen across records.
	var cols []string
	seen := map[string]bool{}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}

	d := New(cols...)
	for _, rec := range records {
		row := make([]Value, len(cols))
		for j, c := range cols {
			switch v := rec[c].(type) {
			case nil:
				row[j] = NA()
			case float64:
				row[j] = Num(v)
			case string:
				row[j] = StrOrNA(v)
			case bool:
				if v {
					row[j] = Str("true")
				} else {
					row[j] = Str("false")
				}
			default:
				row[j] = NA()
			}
		}
		if err := d.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func saveJSON(d *Dataset, path string) error {
	records := make([]map[string]any, 0, d.NumRows())
	cols := d.Columns()
	for i := 0; i < d.NumRows(); i++ {
		rec := make(map[string]any, len(cols))
		for j, c := range cols {
			v := d.At(i, j)
			switch v.Kind() {
			case KindMissing:
				rec[c] = nil
			case KindNumber:
				f, _ := v.Float()
				rec[c] = f
			default:
				rec[c] = v.String()
			}
		}
		records = append(records, rec)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return eris.Wrap(err, "dataset: marshal json")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "dataset: write json")
	}
	return nil
}
