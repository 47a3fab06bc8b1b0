package parse

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"fundpipe/pkg/core/fault"
)

// PopplerAdapter shells out to poppler-utils. pdftotext with -layout keeps
// the column alignment that anchor regexes depend on; pdftohtml feeds the
// structured table path.
type PopplerAdapter struct {
	Timeout time.Duration
}

func NewPopplerAdapter(timeout time.Duration) *PopplerAdapter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PopplerAdapter{Timeout: timeout}
}

// IsAvailable checks that pdftotext is on PATH.
func (p *PopplerAdapter) IsAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "pdftotext", "-v").Run() == nil
}

// Version returns the installed poppler version line.
func (p *PopplerAdapter) Version() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// pdftotext prints its version banner to stderr.
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pdftotext", "-v")
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fault.Wrap(fault.ParseError, "poppler.version", err)
	}
	lines := strings.Split(stderr.String(), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fault.New(fault.ParseError, "poppler.version", "empty version output")
}

// ExtractText runs pdftotext -layout and splits the output into pages on
// form-feed boundaries.
func (p *PopplerAdapter) ExtractText(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext",
		"-layout",
		"-enc", "UTF-8",
		path,
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fault.New(fault.Transient, "poppler.text", "pdftotext timeout after %v", p.Timeout)
		}
		return nil, fault.New(fault.ParseError, "poppler.text", "pdftotext: %v, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	raw := strings.Split(stdout.String(), "\f")
	pages := make([]string, 0, len(raw))
	for _, pg := range raw {
		if strings.TrimSpace(pg) == "" {
			continue
		}
		pages = append(pages, pg)
	}
	if len(pages) == 0 {
		return nil, fault.New(fault.ParseError, "poppler.text", "no extractable text in %s", path)
	}
	return pages, nil
}

// ExtractHTML runs pdftohtml for the table path. -i drops images, -noframes
// produces a single document goquery can walk.
func (p *PopplerAdapter) ExtractHTML(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftohtml",
		"-stdout",
		"-i",
		"-noframes",
		"-enc", "UTF-8",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fault.New(fault.Transient, "poppler.html", "pdftohtml timeout after %v", p.Timeout)
		}
		return "", fault.New(fault.ParseError, "poppler.html", "pdftohtml: %v, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
