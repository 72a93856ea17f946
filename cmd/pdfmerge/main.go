package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/wudi/pdfcombine/merge"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/writer"
)

type options struct {
	output     string
	inputs     []string
	title      string
	xrefStream bool
	verbose    bool
	workers    int
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfmerge: %v\n", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfmerge: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("pdfmerge", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfmerge [flags] -o out.pdf in1.pdf in2.pdf ...\n       pdfmerge [flags] -job job.yaml\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.output, "o", "", "Output PDF path")
	fs.StringVar(&opts.title, "title", "", "Title for the merged document")
	fs.BoolVar(&opts.xrefStream, "xref-stream", false, "Write a compressed cross-reference stream")
	fs.BoolVar(&opts.verbose, "v", false, "Log progress to stderr")
	fs.IntVar(&opts.workers, "j", 0, "Inputs parsed concurrently (0 = number of CPUs)")
	jobPath := fs.String("job", "", "YAML job file listing output and inputs")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.inputs = fs.Args()

	if *jobPath != "" {
		j, err := loadJob(*jobPath)
		if err != nil {
			return options{}, err
		}
		j.apply(&opts, filepath.Dir(*jobPath))
	}
	if opts.output == "" {
		fs.Usage()
		return options{}, errors.New("missing output path")
	}
	if len(opts.inputs) == 0 {
		fs.Usage()
		return options{}, errors.New("no input files")
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	logger := observability.Logger(observability.NopLogger{})
	if opts.verbose {
		logger = observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	inputs := make([][]byte, len(opts.inputs))
	for i, path := range opts.inputs {
		data, release, err := mapFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		defer release()
		inputs[i] = data
	}

	mergeOpts := []merge.Option{
		merge.WithLogger(logger),
		merge.WithInfo(opts.title, ""),
		merge.WithWriterConfig(writer.Config{Version: writer.PDF17, XRefStreams: opts.xrefStream}),
	}
	if opts.workers > 0 {
		mergeOpts = append(mergeOpts, merge.WithParallelism(opts.workers))
	}
	out, err := merge.Merge(ctx, inputs, mergeOpts...)
	if err != nil {
		return err
	}
	return writeAtomic(opts.output, out)
}

// writeAtomic replaces path only once the whole file is on disk.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdfmerge-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
