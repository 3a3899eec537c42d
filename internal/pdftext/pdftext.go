// Package pdftext reads booklet text page by page from PDF files and plain
// text dumps.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/pipeline"
)

// ErrNoText is returned for documents without extractable text, such as
// scanned booklets.
var ErrNoText = errors.New("no text content found")

// Extractor implements pipeline.Extractor for .pdf and .txt files. Text
// files use form feeds as page breaks.
type Extractor struct{}

// Extract returns the pages of doc. Inline text takes precedence over Path.
func (Extractor) Extract(ctx context.Context, doc pipeline.DocumentRef) ([]exercise.RawPage, error) {
	if doc.Text != "" {
		return []exercise.RawPage{{Source: doc.Source, Year: doc.Year, Day: doc.Day, Text: doc.Text}}, nil
	}
	if doc.Path == "" {
		return nil, fmt.Errorf("document %s has no path or text", doc.Source)
	}

	var (
		texts []string
		err   error
	)
	switch strings.ToLower(filepath.Ext(doc.Path)) {
	case ".pdf":
		texts, err = readPDF(ctx, doc.Path)
	case ".txt":
		texts, err = readText(doc.Path)
	default:
		return nil, fmt.Errorf("unsupported document type %q", filepath.Ext(doc.Path))
	}
	if err != nil {
		return nil, err
	}

	var pages []exercise.RawPage
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		pages = append(pages, exercise.RawPage{
			Source: doc.Source,
			Year:   doc.Year,
			Day:    doc.Day,
			Page:   i + 1,
			Text:   t,
		})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s: %w", doc.Path, ErrNoText)
	}
	return pages, nil
}

func readText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(path, err)
	}
	return strings.Split(string(data), "\f"), nil
}

func readPDF(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdf, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read %s: %w", path, err)
	}

	texts := make([]string, 0, pdf.PageCount)
	for pageNr := 1; pageNr <= pdf.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		texts = append(texts, pageText(pdf, pageNr))
	}
	return texts, nil
}

// classify marks I/O failures other than missing or forbidden files as
// transient.
func classify(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return fmt.Errorf("opening %s: %w: %w", path, exercise.ErrTransient, err)
}

func pageText(pdf *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdf, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return textFromStream(data)
}

var (
	reYear = regexp.MustCompile(`(?:^|\D)(20\d{2})(?:\D|$)`)
	reDay  = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:d|dia)[ _-]?([12])(?:\D|$)`)
)

// RefFromPath builds a DocumentRef for path, reading the exam year and day
// from names such as "2023_PV_impresso_D2_CD7.pdf".
func RefFromPath(path string) pipeline.DocumentRef {
	name := filepath.Base(path)
	ref := pipeline.DocumentRef{Source: name, Path: path}
	if m := reYear.FindStringSubmatch(name); m != nil {
		ref.Year, _ = strconv.Atoi(m[1])
	}
	if m := reDay.FindStringSubmatch(name); m != nil {
		ref.Day, _ = strconv.Atoi(m[1])
	}
	return ref
}
