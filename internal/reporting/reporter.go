// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/dojoctl/internal/orchestrator"
)

// Reporter defines the interface for writing a run summary to an output.
type Reporter interface {
	// Write serializes the summary.
	Write(summary *orchestrator.Summary) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty format means json; an empty path or "stdout" writes to stdout.
func New(format, outputPath string) (Reporter, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "yaml" {
		return nil, fmt.Errorf("unsupported summary format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create summary file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer)
}

// NewWithWriter builds a reporter around an existing writer, which it takes
// ownership of.
func NewWithWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case "json":
		return &jsonReporter{w: w}, nil
	case "yaml":
		return &yamlReporter{w: w}, nil
	default:
		w.Close()
		return nil, fmt.Errorf("unsupported summary format: %s", format)
	}
}

type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(s *orchestrator.Summary) error {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if _, err := r.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error { return r.w.Close() }

type yamlReporter struct {
	w io.WriteCloser
}

func (r *yamlReporter) Write(s *orchestrator.Summary) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return enc.Close()
}

func (r *yamlReporter) Close() error { return r.w.Close() }
