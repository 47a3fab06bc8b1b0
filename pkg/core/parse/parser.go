// Package parse turns raw files (PDF, XLSX, CSV) into a uniform ParsedDoc:
// UTF-8 text pages plus structured tables. All encoding and format problems
// surface as fault kinds here; downstream stages never see raw bytes.
package parse

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/models"
)

// Parser dispatches by file extension.
type Parser struct {
	poppler *PopplerAdapter
	timeout time.Duration
	log     *logrus.Entry
}

// New builds a Parser using the configured stage timeout.
func New(cfg config.Config) *Parser {
	timeout := cfg.ParserTimeout.D()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Parser{
		poppler: NewPopplerAdapter(timeout),
		timeout: timeout,
		log:     logrus.WithField("component", "parser"),
	}
}

// Parse reads path and produces text pages plus tables. The stage timeout
// applies to the whole call.
func (p *Parser) Parse(ctx context.Context, path string) (*models.ParsedDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		doc *models.ParsedDoc
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc, err = p.parsePDF(ctx, path)
	case ".xlsx", ".xls":
		doc, err = parseXLSX(path)
	case ".csv":
		doc, err = parseCSV(path)
	default:
		err = fault.New(fault.ParseError, "parse", "unsupported extension %q", filepath.Ext(path))
	}

	if err != nil {
		metrics.ParseFailures.WithLabelValues(string(fault.KindOf(err))).Inc()
		return nil, err
	}

	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	doc.Metadata["filename"] = filepath.Base(path)
	return doc, nil
}

// parsePDF extracts layout-preserved text via pdftotext, then attempts the
// HTML table path. Table extraction is best-effort: a pdftohtml failure
// degrades to text-only parsing.
func (p *Parser) parsePDF(ctx context.Context, path string) (*models.ParsedDoc, error) {
	if !p.poppler.IsAvailable() {
		return nil, fault.New(fault.ParseError, "parse.pdf", "poppler-utils not installed")
	}

	pages, err := p.poppler.ExtractText(ctx, path)
	if err != nil {
		return nil, err
	}

	doc := &models.ParsedDoc{}
	for i, text := range pages {
		doc.Pages = append(doc.Pages, models.Page{No: i + 1, Text: text})
	}

	html, err := p.poppler.ExtractHTML(ctx, path)
	if err != nil {
		p.log.WithError(err).WithField("path", path).Warn("pdftohtml failed, continuing without tables")
		return doc, nil
	}
	doc.Tables = extractHTMLTables(html)
	return doc, nil
}
