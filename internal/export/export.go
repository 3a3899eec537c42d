// Package export writes accepted exercises as schema-checked JSON or as an
// XLSX workbook.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/xuri/excelize/v2"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

// RecordSchema is the JSON schema of an exported record list.
const RecordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "year", "question_number", "statement", "alternatives", "topic", "quality_score"],
    "properties": {
      "id": {"type": "string", "pattern": "^ENEM_[0-9]{4}_Q[0-9]{3}$"},
      "year": {"type": "integer", "minimum": 1998},
      "question_number": {"type": "integer", "minimum": 1, "maximum": 180},
      "statement": {"type": "string", "minLength": 1},
      "alternatives": {
        "type": "array",
        "minItems": 1,
        "maxItems": 5,
        "items": {
          "type": "object",
          "required": ["letter", "text"],
          "properties": {
            "letter": {"type": "string", "enum": ["A", "B", "C", "D", "E"]},
            "text": {"type": "string"}
          }
        }
      },
      "topic": {
        "type": "string",
        "enum": ["Algebra", "Geometry", "Statistics/Probability", "Functions", "Trigonometry",
                 "Financial Math", "Combinatorics", "Sequences", "Analytic Geometry", "Other"]
      },
      "quality_score": {"type": "integer", "minimum": 0, "maximum": 100},
      "subject_area": {"type": "string"}
    }
  }
}`

var recordSchema = mustSchema(RecordSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("export: invalid record schema: %v", err))
	}
	return schema
}

// Records converts exercises to their export shape.
func Records(exs []exercise.Exercise) []exercise.Record {
	out := make([]exercise.Record, 0, len(exs))
	for _, ex := range exs {
		out = append(out, ex.Record())
	}
	return out
}

// Validate checks a JSON record list against RecordSchema.
func Validate(data []byte) error {
	res, err := recordSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validating records: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("records do not match schema: %s", strings.Join(msgs, "; "))
}

// WriteJSON writes exs as an indented JSON record list. Nothing is written
// when the records fail validation.
func WriteJSON(w io.Writer, exs []exercise.Exercise) error {
	data, err := json.MarshalIndent(Records(exs), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	if err := Validate(data); err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	return nil
}

// Sheet is the worksheet name used by WriteXLSX.
const Sheet = "Exercicios"

var xlsxHeaders = []string{
	"ID", "Ano", "Questão", "Área", "Tópico", "Pontuação", "Enunciado", "A", "B", "C", "D", "E",
}

// WriteXLSX writes exs as a single-sheet workbook, one exercise per row with
// alternatives in columns A to E.
func WriteXLSX(w io.Writer, exs []exercise.Exercise) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), Sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(Sheet, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, ex := range exs {
		row := i + 2
		values := []any{
			ex.ID, ex.Year, ex.QuestionNumber, string(ex.SubjectArea), string(ex.Topic), ex.QualityScore, ex.Statement,
		}
		alts := make([]any, 5)
		for _, a := range ex.Alternatives {
			if len(a.Letter) == 1 && a.Letter[0] >= 'A' && a.Letter[0] <= 'E' {
				alts[a.Letter[0]-'A'] = a.Text
			}
		}
		values = append(values, alts...)

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(Sheet, cell, &values); err != nil {
			return fmt.Errorf("writing %s: %w", ex.ID, err)
		}
	}

	_ = f.SetColWidth(Sheet, "A", "A", 18)
	_ = f.SetColWidth(Sheet, "D", "E", 26)
	_ = f.SetColWidth(Sheet, "G", "G", 80)
	_ = f.SetColWidth(Sheet, "H", "L", 30)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
