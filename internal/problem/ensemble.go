package problem

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
)

// ModelSpec describes one model of an ensemble file.
type ModelSpec struct {
	Name        string `yaml:"name"`
	Problem     string `yaml:"problem"`
	Form        int    `yaml:"form"`
	Levels      int    `yaml:"levels,omitempty"`
	Async       *bool  `yaml:"async,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	Latency     string `yaml:"latency,omitempty"`
}

// File is the document format of an ensemble file:
//
//	models:
//	  - name: cheap
//	    problem: forrester-lo
//	    form: 0
//	    async: true
//	    latency: 5ms
//	  - name: expensive
//	    problem: forrester-hi
//	    form: 1
type File struct {
	Models []ModelSpec `yaml:"models"`
}

// Defaults fill in the fields a ModelSpec leaves out.
type Defaults struct {
	Async       bool
	Concurrency int
	Latency     time.Duration
	Logger      logging.Logger
}

// LoadEnsembleFile reads an ensemble file from path.
func LoadEnsembleFile(path string, d Defaults) (*ensemble.Ensemble, []Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.NewConfigError("open ensemble file: %v", err)
	}
	defer f.Close()
	return LoadEnsemble(f, d)
}

// LoadEnsemble decodes an ensemble file and builds its local models, ordered
// by form. Forms must number 0 to n-1 without gaps.
//
// Returns:
//   - *ensemble.Ensemble: the ensemble.
//   - []Problem: the problem behind each form.
//   - error: a ConfigError for malformed documents.
func LoadEnsemble(r io.Reader, d Defaults) (*ensemble.Ensemble, []Problem, error) {
	var doc File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, apperrors.NewConfigError("parse ensemble file: %v", err)
	}
	if len(doc.Models) == 0 {
		return nil, nil, apperrors.NewConfigError("ensemble file declares no models")
	}
	specs := append([]ModelSpec(nil), doc.Models...)
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Form < specs[j].Form })

	models := make([]ensemble.Model, len(specs))
	problems := make([]Problem, len(specs))
	for i, spec := range specs {
		if spec.Form != i {
			return nil, nil, apperrors.NewConfigError("ensemble file: forms must be 0..%d without gaps or duplicates, found form %d at position %d", len(specs)-1, spec.Form, i)
		}
		m, p, err := buildModel(spec, d)
		if err != nil {
			return nil, nil, err
		}
		models[i], problems[i] = m, p
	}
	ens, err := ensemble.New(models...)
	if err != nil {
		return nil, nil, err
	}
	return ens, problems, nil
}

func buildModel(spec ModelSpec, d Defaults) (*ensemble.LocalModel, Problem, error) {
	p, err := Lookup(spec.Problem)
	if err != nil {
		return nil, Problem{}, fmt.Errorf("model %q: %w", spec.Name, err)
	}
	opts := ensemble.LocalOptions{
		NumFunctions: p.NumFunctions,
		Levels:       p.Levels,
		Concurrency:  d.Concurrency,
		Async:        d.Async,
		Latency:      d.Latency,
		Logger:       d.Logger,
	}
	if spec.Levels > 0 {
		opts.Levels = spec.Levels
	}
	if spec.Async != nil {
		opts.Async = *spec.Async
	}
	if spec.Concurrency > 0 {
		opts.Concurrency = spec.Concurrency
	}
	if spec.Latency != "" {
		lat, err := time.ParseDuration(spec.Latency)
		if err != nil {
			return nil, Problem{}, apperrors.NewConfigError("model %q: latency: %v", spec.Name, err)
		}
		opts.Latency = lat
	}
	name := spec.Name
	if name == "" {
		name = p.Name
	}
	return ensemble.NewLocalModel(name, p.Func, opts), p, nil
}

// BuiltinEnsemble builds the ensemble of a named study problem: "forrester"
// pairs the low and high fidelity Forrester functions, "trapezoid" is one
// multilevel quadrature model.
func BuiltinEnsemble(name string, d Defaults) (*ensemble.Ensemble, []Problem, error) {
	var forms []string
	switch name {
	case "forrester":
		forms = []string{"forrester-lo", "forrester-hi"}
	case "trapezoid":
		forms = []string{"trapezoid"}
	default:
		return nil, nil, apperrors.NewConfigError("unknown study problem %q (want forrester or trapezoid)", name)
	}
	doc := File{}
	for i, f := range forms {
		doc.Models = append(doc.Models, ModelSpec{Name: f, Problem: f, Form: i})
	}
	models := make([]ensemble.Model, len(doc.Models))
	problems := make([]Problem, len(doc.Models))
	for i, spec := range doc.Models {
		m, p, err := buildModel(spec, d)
		if err != nil {
			return nil, nil, err
		}
		models[i], problems[i] = m, p
	}
	ens, err := ensemble.New(models...)
	return ens, problems, err
}
