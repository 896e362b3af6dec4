// Package output writes the run result document.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/llm-ci-runner/internal/engine"
)

// Runner identifies this tool in result metadata.
const Runner = "llm-ci-runner"

// Result is the document written for a successful run. Response is a
// string for text output and an object for structured output.
type Result struct {
	Success  bool           `json:"success" yaml:"success"`
	Response any            `json:"response" yaml:"response"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
}

// Format selects the encoding of a written Result.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text" // response only
)

// FormatFor picks the format from a file extension: .yaml/.yml are YAML,
// .txt/.md hold the bare response, everything else is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".txt", ".md":
		return FormatText
	}
	return FormatJSON
}

// NewResult builds the Result for a successful outcome. runID may be empty,
// in which case a fresh one is generated.
func NewResult(out engine.Outcome, runID string) (*Result, error) {
	if !out.OK() {
		return nil, fmt.Errorf("no result for failed run: %w", out.Err())
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	meta := map[string]any{
		"runner":    Runner,
		"run_id":    runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"mode":      string(out.Kind),
	}
	if m := out.Metrics; m != nil {
		meta["provider"] = m.Provider
		meta["attempts"] = m.AttemptCount()
		meta["duration_ms"] = m.Duration.Milliseconds()
		meta["tokens"] = map[string]any{
			"input":            m.InputTokens,
			"output":           m.OutputTokens,
			"total":            m.TotalTokens(),
			"estimated_prompt": m.EstimatedPromptTokens,
		}
		if m.Model != "" {
			meta["model"] = m.Model
		}
		if m.Schema != "" {
			meta["schema"] = m.Schema
		}
	}
	return &Result{Success: true, Response: out.Response(), Metadata: meta}, nil
}

// Encode writes r to w in the given format.
func Encode(w io.Writer, r *Result, f Format) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		text, ok := r.Response.(string)
		if !ok {
			b, err := json.MarshalIndent(r.Response, "", "  ")
			if err != nil {
				return err
			}
			text = string(b)
		}
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		_, err := io.WriteString(w, text)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(r)
	}
}

// Write stores r at path, creating parent directories. The document is
// written to a temporary file in the same directory and renamed into
// place, so readers never observe a partial file.
func Write(path string, r *Result) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp output file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := Encode(tmp, r, FormatFor(path)); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting output permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming output into place: %w", err)
	}
	return nil
}
