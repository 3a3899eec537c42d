package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/export"
	"github.com/atena-edu/enem-helper/internal/platform/config"
)

const booklet = "MATEMÁTICA E SUAS TECNOLOGIAS\n" +
	"QUESTÃO 136\n" +
	"Um triângulo retângulo tem catetos de 3 cm e 4 cm. Assinale a alternativa correta.\n" +
	"A) 5 cm\nB) 6 cm\nC) 7 cm\nD) 8 cm\nE) 9 cm\n" +
	"\f" +
	"QUESTÃO 137\n" +
	"Uma aplicação rende juros compostos de 1% ao mês. Qual o montante após dois meses?\n" +
	"A) R$ 102,01\nB) R$ 102,00\nC) R$ 101,00\nD) R$ 100,00\nE) R$ 99,00\n"

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(cfg)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "atena.db")},
		Topic:  config.TopicConfig{HintFrom: 136, HintTo: 180},
	}
}

func TestRunAndExport(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "2023_PV_D2.txt"), []byte(booklet), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, cfg, "run", "--workers", "1", dir)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	var sum exercise.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, out)
	}
	if sum.Documents != 1 || sum.Accepted != 2 {
		t.Errorf("summary = %+v", sum)
	}

	out, err = execute(t, cfg, "export", "--topic", "Financial Math")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	if err := export.Validate([]byte(out)); err != nil {
		t.Errorf("export output does not match schema: %v", err)
	}
	var recs []exercise.Record
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "ENEM_2023_Q137" {
		t.Errorf("records = %+v", recs)
	}

	xlsx := filepath.Join(t.TempDir(), "out.xlsx")
	if _, err := execute(t, cfg, "export", "-f", "xlsx", "-o", xlsx); err != nil {
		t.Fatalf("xlsx export error = %v", err)
	}
	if info, err := os.Stat(xlsx); err != nil || info.Size() == 0 {
		t.Errorf("xlsx file not written: %v", err)
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	noYear := filepath.Join(dir, "caderno.txt")
	if err := os.WriteFile(noYear, []byte(booklet), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no arguments", []string{"run"}, "requires at least 1 arg"},
		{"missing file", []string{"run", filepath.Join(dir, "missing.pdf")}, "no such file"},
		{"empty directory", []string{"run", t.TempDir()}, "no .pdf or .txt files"},
		{"year not inferable", []string{"run", noYear}, "--year"},
		{"unknown export format", []string{"export", "-f", "csv"}, "unknown format"},
		{"unknown topic", []string{"export", "--topic", "Astrology"}, "unknown topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, testConfig(t), tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRun_YearFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caderno.txt")
	if err := os.WriteFile(path, []byte(booklet), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, testConfig(t), "run", "--year", "2021", path)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(out, `"accepted": 2`) {
		t.Errorf("summary = %s", out)
	}
}

func TestPatterns(t *testing.T) {
	out, err := execute(t, testConfig(t), "patterns")
	if err != nil {
		t.Fatalf("patterns error = %v", err)
	}
	for _, want := range []string{"KIND", "question_number", "alternative", "command"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
