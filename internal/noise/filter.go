// Package noise strips exam-booklet boilerplate from extracted page text.
package noise

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

// Rules configures a Filter. The zero value is not usable; start from DefaultRules.
type Rules struct {
	ExamToken       string   // regexp for the repeated exam identifier
	RepeatThreshold int      // minimum repetitions on one line to count as noise
	CodeRunLength   int      // contiguous [A-Z0-9] run that marks a code line
	CodeRatio       float64  // code-token share above which a line is dropped
	MinCodeLine     int      // lines shorter than this (non-space runes) are never ratio-dropped
	Headers         []string // running-header line patterns
	Artifacts       []string // export-tool artifact line patterns
}

// DefaultRules returns the rules tuned for ENEM booklets.
func DefaultRules() Rules {
	return Rules{
		ExamToken:       `ENEM\s?20\d{2}`,
		RepeatThreshold: 10,
		CodeRunLength:   45,
		CodeRatio:       0.7,
		MinCodeLine:     12,
		Headers: []string{
			`(?m)^[ \t]*\d[ \t]*[ºo°][ \t]*DIA\b.*$`,
			`(?m)^[ \t]*CADERNO[ \t]+\d+\b.*$`,
			`(?m)^[ \t]*(?:LINGUAGENS,[ \t]+CÓDIGOS|CIÊNCIAS[ \t]+HUMANAS|CIÊNCIAS[ \t]+DA[ \t]+NATUREZA|MATEMÁTICA)[ \t]+E[ \t]+SUAS[ \t]+TECNOLOGIAS\b.*$`,
			`(?m)^[ \t]*ENEM[ \t]?20\d{2}[ \t]*$`,
			`(?m)^[ \t]*EXAME[ \t]+NACIONAL[ \t]+DO[ \t]+ENSINO[ \t]+MÉDIO[ \t]*$`,
		},
		Artifacts: []string{
			`(?m)^.*\.(?:indd|indb|qxd|qxp)\b.*$`,
			// Export stamps close a line, after at most a file name and a page number.
			`(?m)^[ \t]*(?:[\w.-]*[\d._][\w.-]*[ \t]+){0,2}\d{1,2}/\d{1,2}/\d{2,4}[ \t]+\d{1,2}:\d{2}(?::\d{2})?[ \t]*$`,
			`(?m)^.*\d{8}_\d{6}.*$`,
		},
	}
}

var (
	reInternalCode = regexp.MustCompile(`\*[A-Z0-9][A-Z0-9_.-]{4,}\*|\[[A-Z0-9][A-Z0-9_.-]{4,}\]`)
	reCRLF         = regexp.MustCompile(`\r\n?`)
	reTabs         = regexp.MustCompile(`\t+`)
	reMultiSpace   = regexp.MustCompile(` {3,}`)
	reMultiBlank   = regexp.MustCompile(`\n{3,}`)

	// Lines opening with an alternative or question marker are left to the
	// splitter, which scores garbled bodies instead of dropping them.
	reMarkerLine = regexp.MustCompile(`^(?:\(?[A-E][).:]|[A-E][ \t]+[-–:]|\d{1,3}[ \t]*[.)][ \t]|\d{1,3}[ \t]+[-–][ \t]|(?i:quest[ãa]o)[ \t]+\d)`)
)

// Filter removes noise from raw page text. It is safe for concurrent use.
type Filter struct {
	rules     Rules
	repeated  *regexp.Regexp
	codeRun   *regexp.Regexp
	headers   []*regexp.Regexp
	artifacts []*regexp.Regexp
}

// New compiles rules into a Filter.
func New(rules Rules) (*Filter, error) {
	if rules.RepeatThreshold < 2 {
		return nil, fmt.Errorf("repeat threshold must be at least 2, got %d", rules.RepeatThreshold)
	}
	if rules.CodeRunLength < 1 {
		return nil, fmt.Errorf("code run length must be positive, got %d", rules.CodeRunLength)
	}

	repeated, err := regexp.Compile(fmt.Sprintf(`(?:%s[ \t*•|_.-]*){%d,}`, rules.ExamToken, rules.RepeatThreshold))
	if err != nil {
		return nil, fmt.Errorf("compile exam token: %w", err)
	}
	codeRun, err := regexp.Compile(fmt.Sprintf(`(?m)^.*[A-Z0-9]{%d,}.*$`, rules.CodeRunLength))
	if err != nil {
		return nil, fmt.Errorf("compile code run: %w", err)
	}

	f := &Filter{rules: rules, repeated: repeated, codeRun: codeRun}
	for _, h := range rules.Headers {
		re, err := regexp.Compile(h)
		if err != nil {
			return nil, fmt.Errorf("compile header %q: %w", h, err)
		}
		f.headers = append(f.headers, re)
	}
	for _, a := range rules.Artifacts {
		re, err := regexp.Compile(a)
		if err != nil {
			return nil, fmt.Errorf("compile artifact %q: %w", a, err)
		}
		f.artifacts = append(f.artifacts, re)
	}
	return f, nil
}

// Default returns a Filter built from DefaultRules.
func Default() *Filter {
	f, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return f
}

// Clean removes noise and normalises whitespace. Text without noise passes
// through with only whitespace changes.
func (f *Filter) Clean(raw string) string {
	if raw == "" {
		return raw
	}
	s := norm.NFC.String(raw)
	s = reCRLF.ReplaceAllString(s, "\n")

	s = f.repeated.ReplaceAllString(s, "")
	s = reInternalCode.ReplaceAllString(s, "")
	for _, re := range f.artifacts {
		s = re.ReplaceAllString(s, "")
	}
	for _, re := range f.headers {
		s = re.ReplaceAllString(s, "")
	}
	s = f.codeRun.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = reTabs.ReplaceAllString(line, " ")
		line = reMultiSpace.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)
		if f.isCodeLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CleanPage cleans a raw page and keeps a pointer back to it.
func (f *Filter) CleanPage(p *exercise.RawPage) exercise.CleanedText {
	return exercise.CleanedText{Text: f.Clean(p.Text), Page: p}
}

func (f *Filter) isCodeLine(line string) bool {
	if nonSpaceLen(line) < f.rules.MinCodeLine || reMarkerLine.MatchString(line) {
		return false
	}
	return hasMixedToken(line) && CodeRatio(line) > f.rules.CodeRatio
}

// CodeRatio returns the share of non-space runes in s that belong to code-like
// tokens: tokens without lowercase letters that contain a digit or are made
// only of punctuation and symbols.
func CodeRatio(s string) float64 {
	total, code := 0, 0
	for _, tok := range strings.Fields(s) {
		n := len([]rune(tok))
		total += n
		if isCodeToken(tok) {
			code += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(code) / float64(total)
}

func isCodeToken(tok string) bool {
	hasDigit, allSymbols := false, true
	for _, r := range tok {
		switch {
		case unicode.IsLower(r):
			return false
		case unicode.IsDigit(r):
			hasDigit = true
			allSymbols = false
		case unicode.IsLetter(r):
			allSymbols = false
		}
	}
	return hasDigit || allSymbols
}

func hasMixedToken(line string) bool {
	for _, tok := range strings.Fields(line) {
		var upper, digit bool
		for _, r := range tok {
			if unicode.IsUpper(r) {
				upper = true
			} else if unicode.IsDigit(r) {
				digit = true
			}
		}
		if upper && digit {
			return true
		}
	}
	return false
}

func nonSpaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
