package freesurfer_values

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/vk/connectome/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the freesurfer_values runner.
type Input struct {
	LHFilename       string `cnx:"lh_filename"`
	RHFilename       string `cnx:"rh_filename"`
	SubjectID        string `cnx:"subject_id"`
	ParcellationName string `cnx:"parcellation_name"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	OutFile string `cty:"out_file"`
}

// Table is one parsed FreeSurfer stats file.
type Table struct {
	Columns []string
	Rows    [][]string
}

const headerPrefix = "# ColHeaders"

// ParseStats reads a `?h.<parcellation>.stats` table as written by
// mris_anatomical_stats. Comment lines are skipped; the column names come
// from the "# ColHeaders" line.
func ParseStats(r io.Reader) (*Table, error) {
	t := &Table{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		switch {
		case text == "":
			continue
		case strings.HasPrefix(text, headerPrefix):
			t.Columns = strings.Fields(strings.TrimPrefix(text, headerPrefix))
		case strings.HasPrefix(text, "#"):
			continue
		default:
			if t.Columns == nil {
				return nil, fmt.Errorf("line %d: data before the %q line", line, headerPrefix)
			}
			fields := strings.Fields(text)
			if len(fields) != len(t.Columns) {
				return nil, fmt.Errorf("line %d: expected %d columns, got %d", line, len(t.Columns), len(fields))
			}
			t.Rows = append(t.Rows, fields)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if t.Columns == nil {
		return nil, fmt.Errorf("no %q line found", headerPrefix)
	}
	return t, nil
}

func parseFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ParseStats(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteCSV writes both hemispheres as one table with leading subject_id and
// hemi columns.
func WriteCSV(w io.Writer, subjectID string, lh, rh *Table) error {
	if !slices.Equal(lh.Columns, rh.Columns) {
		return fmt.Errorf("hemisphere tables have different columns: %v and %v", lh.Columns, rh.Columns)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"subject_id", "hemi"}, lh.Columns...)); err != nil {
		return err
	}
	for _, part := range []struct {
		hemi  string
		table *Table
	}{{"lh", lh}, {"rh", rh}} {
		for _, row := range part.table.Rows {
			if err := cw.Write(append([]string{subjectID, part.hemi}, row...)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// OnRunFreeSurferValues merges the two hemisphere stats tables.
func OnRunFreeSurferValues(ctx context.Context, env *registry.RunEnv, input *Input) (*Output, error) {
	name := input.ParcellationName + "_FreeSurferValues.csv"
	if input.SubjectID != "" {
		name = input.SubjectID + "_" + name
	}
	out := filepath.Join(env.WorkDir, name)
	if env.DryRun {
		return &Output{OutFile: out}, nil
	}

	lh, err := parseFile(input.LHFilename)
	if err != nil {
		return nil, err
	}
	rh, err := parseFile(input.RHFilename)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(out)
	if err != nil {
		return nil, err
	}
	if err := WriteCSV(f, input.SubjectID, lh, rh); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	env.Logger.Debug("Wrote FreeSurfer values.", "file", out, "regions", len(lh.Rows)+len(rh.Rows))
	return &Output{OutFile: out}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunFreeSurferValues", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunFreeSurferValues,
	})
}
