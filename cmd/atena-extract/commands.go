package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/export"
	"github.com/atena-edu/enem-helper/internal/pattern"
	"github.com/atena-edu/enem-helper/internal/pdftext"
	"github.com/atena-edu/enem-helper/internal/pipeline"
	"github.com/atena-edu/enem-helper/internal/platform/config"
	"github.com/atena-edu/enem-helper/internal/store"
	"github.com/atena-edu/enem-helper/internal/topic"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	var (
		rc       = pipeline.RunnerConfig{}
		rules    string
		year     int
		noHint   bool
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "run <file-or-dir>...",
		Short: "Extract exercises from PDF or text booklets",
		Long: `Extracts exercises from each booklet and stores the accepted ones in the
SQLite database. Directories are searched for .pdf and .txt files. The exam
year and day are read from file names such as 2023_PV_impresso_D2_CD7.pdf.
The batch summary is printed as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := collectDocuments(args)
			if err != nil {
				return err
			}
			for i := range docs {
				if docs[i].Year == 0 {
					if year == 0 {
						return fmt.Errorf("cannot infer the exam year of %s, use --year", docs[i].Path)
					}
					docs[i].Year = year
				}
			}

			classifier, err := topic.LoadClassifier(rules)
			if err != nil {
				return err
			}
			hint := topic.RangeHint{From: cfg.Topic.HintFrom, To: cfg.Topic.HintTo, Area: exercise.AreaMathematics}
			if noHint {
				hint = topic.RangeHint{}
			}

			path, err := dbPath(cmd)
			if err != nil {
				return err
			}
			st, err := store.OpenSQLite(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := []pipeline.RunnerOption{pipeline.WithStore(st)}
			if progress {
				opts = append(opts, pipeline.WithProgress(func(rep pipeline.DocumentReport) {
					if rep.Failed != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: failed (%s)\n", rep.Source, rep.Failed)
						return
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d accepted, %d rejected\n", rep.Source, rep.Accepted, rep.Rejected)
				}))
			}
			p := pipeline.New(pipeline.Config{Classifier: classifier, Hint: &hint, Logger: slog.Default()})
			runner := pipeline.NewRunner(p, pdftext.Extractor{}, rc, opts...)

			sum, err := runner.Run(cmd.Context(), docs)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(sum); encErr != nil {
				return encErr
			}
			return err
		},
	}

	f := cmd.Flags()
	f.IntVarP(&rc.Workers, "workers", "w", cfg.Extraction.Workers, "documents processed in parallel (0 = one per CPU)")
	f.DurationVar(&rc.Timeout, "timeout", cfg.Extraction.Timeout, "per-document time limit")
	f.IntVar(&rc.Retries, "retries", cfg.Extraction.Retries, "retries for transient read errors")
	f.DurationVar(&rc.Backoff, "backoff", cfg.Extraction.Backoff, "initial retry backoff")
	f.StringVar(&rules, "rules", cfg.Topic.RulesPath, "YAML topic keyword tables")
	f.IntVar(&year, "year", 0, "exam year for files whose name has none")
	f.BoolVar(&noHint, "no-hint", false, "disable the question-range area hint")
	f.BoolVar(&progress, "progress", false, "print one line per finished document to stderr")
	return cmd
}

// collectDocuments expands args into document references, walking
// directories for .pdf and .txt files.
func collectDocuments(args []string) ([]pipeline.DocumentRef, error) {
	var docs []pipeline.DocumentRef
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			docs = append(docs, pdftext.RefFromPath(arg))
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".pdf", ".txt":
				if !d.IsDir() {
					docs = append(docs, pdftext.RefFromPath(path))
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no .pdf or .txt files found")
	}
	return docs, nil
}

func newExportCmd() *cobra.Command {
	var (
		format    string
		output    string
		filter    store.Filter
		topicName string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored exercises as JSON or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if topicName != "" {
				t, err := exercise.ParseTopic(topicName)
				if err != nil {
					return err
				}
				filter.Topic = t
			}

			path, err := dbPath(cmd)
			if err != nil {
				return err
			}
			st, err := store.OpenSQLite(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer st.Close()

			exs, err := st.ListExercises(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "json":
				return export.WriteJSON(w, exs)
			case "xlsx":
				return export.WriteXLSX(w, exs)
			default:
				return fmt.Errorf("unknown format %q, want json or xlsx", format)
			}
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "json", "output format: json or xlsx")
	f.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	f.IntVar(&filter.Year, "year", 0, "only this exam year")
	f.StringVar(&topicName, "topic", "", "only this topic")
	f.IntVar(&filter.MinScore, "min-score", 0, "minimum quality score")
	return cmd
}

func newPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List the built-in pattern library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib := pattern.DefaultLibrary()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tNAME\tCONFIDENCE\tEXPRESSION")
			for _, k := range pattern.Kinds {
				for _, d := range lib.Definitions(k) {
					fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", k, d.Name, d.Confidence, d.Expr)
				}
			}
			return tw.Flush()
		},
	}
}
