package pipeline

import (
	"errors"
	"fmt"

	"github.com/vk/connectome/internal/layout"
)

// Options parameterize the connectome workflow.
type Options struct {
	Subjects              []string
	BaseDirectory         string
	TemplateDirectory     string
	ParcellationDirectory string
	AcquisitionParameters string
	IndexFile             string

	// Layout is the output tree; its BaseDir and SubjectsDir are baked into
	// nodes that write outside their own work directory.
	Layout *layout.Layout

	SourceSubject    string
	ParcellationName string
	Models           []string
	Thresholds       []float64
	// SplineStepLength is the step length of the track smoothing filter.
	SplineStepLength float64
}

// Defaults returns the protocol of the original study.
func Defaults() Options {
	return Options{
		SourceSubject:    "fsaverage",
		ParcellationName: "aparc",
		Models:           []string{"CSA", "CSD"},
		Thresholds:       layout.Arange(0, 20, 10),
		SplineStepLength: 0.5,
	}
}

// Validate reports options that would make the graph unbuildable.
func (o *Options) Validate() error {
	var errs []error
	if len(o.Subjects) == 0 {
		errs = append(errs, errors.New("at least one subject is required"))
	}
	if o.BaseDirectory == "" {
		errs = append(errs, errors.New("base directory is required"))
	}
	if o.Layout == nil {
		errs = append(errs, errors.New("output layout is required"))
	}
	if len(o.Models) == 0 {
		errs = append(errs, errors.New("at least one tractography model is required"))
	}
	if len(o.Thresholds) == 0 {
		errs = append(errs, errors.New("at least one matrix threshold is required"))
	}
	seen := make(map[string]bool, len(o.Subjects))
	for _, s := range o.Subjects {
		if seen[s] {
			errs = append(errs, fmt.Errorf("subject %q is listed twice", s))
		}
		seen[s] = true
	}
	return errors.Join(errs...)
}
