package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Formatter writes journal entries to a writer.
type Formatter interface {
	Format(w io.Writer, entries []Entry) error
}

// FormatType identifies an output format.
type FormatType string

const (
	FormatPlain FormatType = "plain"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// FormatterOptions configures the plain formatter.
type FormatterOptions struct {
	ShowApp    bool
	ShowTime   bool
	ShowReason bool
	BodyMaxLen int // 0 = unlimited
}

// DefaultFormatterOptions returns the options used by the CLI.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowApp:    true,
		ShowTime:   true,
		ShowReason: true,
		BodyMaxLen: 120,
	}
}

// NewFormatter returns the formatter for the named format.
func NewFormatter(format FormatType, opts FormatterOptions) (Formatter, error) {
	switch FormatType(strings.ToLower(string(format))) {
	case FormatPlain, "":
		return &PlainFormatter{opts: opts}, nil
	case FormatJSON:
		return JSONFormatter{}, nil
	case FormatYAML:
		return YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want plain, json or yaml)", format)
	}
}

// PlainFormatter formats entries as human-readable text.
type PlainFormatter struct {
	opts FormatterOptions
}

// Format writes one header line per entry, with the body indented below it.
func (f *PlainFormatter) Format(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		var sb strings.Builder

		if f.opts.ShowApp && e.AppName != "" {
			fmt.Fprintf(&sb, "<%s> ", e.AppName)
		}
		sb.WriteString(e.Summary)
		if f.opts.ShowTime && !e.ClosedAt.IsZero() {
			fmt.Fprintf(&sb, " (%s)", humanize.Time(e.ClosedAt))
		}
		if f.opts.ShowReason && e.Reason != "" {
			fmt.Fprintf(&sb, " [%s]", e.Reason)
		}
		sb.WriteString("\n")

		if e.Body != "" {
			body := strings.ReplaceAll(e.Body, "\n", " ")
			if f.opts.BodyMaxLen > 3 && len(body) > f.opts.BodyMaxLen {
				body = body[:f.opts.BodyMaxLen-3] + "..."
			}
			sb.WriteString("    " + body + "\n")
		}

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// JSONFormatter formats entries as an indented JSON array.
type JSONFormatter struct{}

// Format writes entries as JSON.
func (JSONFormatter) Format(w io.Writer, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

// YAMLFormatter formats entries as a YAML sequence.
type YAMLFormatter struct{}

// Format writes entries as YAML.
func (YAMLFormatter) Format(w io.Writer, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(entries); err != nil {
		return err
	}
	return encoder.Close()
}
