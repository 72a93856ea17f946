package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// job is the YAML form of a merge. Relative paths are resolved against the
// job file's directory; command line flags win over job values.
type job struct {
	Output     string   `yaml:"output"`
	Inputs     []string `yaml:"inputs"`
	Title      string   `yaml:"title"`
	XRefStream bool     `yaml:"xref_stream"`
}

func loadJob(path string) (*job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var j job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", path, err)
	}
	return &j, nil
}

func (j *job) apply(opts *options, base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	if opts.output == "" {
		opts.output = resolve(j.Output)
	}
	if len(opts.inputs) == 0 {
		for _, in := range j.Inputs {
			opts.inputs = append(opts.inputs, resolve(in))
		}
	}
	if opts.title == "" {
		opts.title = j.Title
	}
	opts.xrefStream = opts.xrefStream || j.XRefStream
}
