// Package pattern holds the weighted textual patterns used to locate
// questions, alternatives and booklet boilerplate, and the matcher that
// applies them.
package pattern

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

// Kind classifies a pattern definition.
type Kind int

const (
	KindQuestionNumber Kind = iota
	KindAlternative
	KindCommand
	KindSubjectArea
	KindInstruction
)

// Kinds lists every kind in matching order.
var Kinds = []Kind{KindQuestionNumber, KindAlternative, KindCommand, KindSubjectArea, KindInstruction}

func (k Kind) String() string {
	switch k {
	case KindQuestionNumber:
		return "question_number"
	case KindAlternative:
		return "alternative"
	case KindCommand:
		return "command"
	case KindSubjectArea:
		return "subject_area"
	case KindInstruction:
		return "instruction"
	default:
		return "unknown"
	}
}

// ConfirmedConfidence separates confirmed occurrences from tentative ones.
const ConfirmedConfidence = 0.80

// Definition is one registered pattern.
//
// QuestionNumber expressions capture the number in group 1. Alternative
// expressions capture the letter in group 1 and an optional first-line body
// in group 2.
type Definition struct {
	Kind       Kind
	Name       string
	Expr       *regexp.Regexp
	Confidence float64
	Canonical  string               // normalised phrase for Command and Instruction
	Area       exercise.SubjectArea // set for SubjectArea definitions
}

// Library is an immutable registry of definitions grouped by kind, each
// group sorted from highest to lowest confidence.
type Library struct {
	byKind map[Kind][]Definition
}

// NewLibrary validates defs and orders them by priority. Definitions with
// equal confidence keep their relative order.
func NewLibrary(defs []Definition) (*Library, error) {
	byKind := make(map[Kind][]Definition)
	for _, d := range defs {
		if d.Expr == nil {
			return nil, fmt.Errorf("definition %q has no expression", d.Name)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return nil, fmt.Errorf("definition %q confidence %v outside [0,1]", d.Name, d.Confidence)
		}
		switch d.Kind {
		case KindQuestionNumber:
			if d.Expr.NumSubexp() < 1 {
				return nil, fmt.Errorf("question definition %q must capture the number", d.Name)
			}
		case KindAlternative:
			if d.Expr.NumSubexp() < 2 {
				return nil, fmt.Errorf("alternative definition %q must capture letter and body", d.Name)
			}
		case KindSubjectArea:
			if d.Area == "" {
				return nil, fmt.Errorf("subject area definition %q has no area", d.Name)
			}
		case KindCommand, KindInstruction:
		default:
			return nil, fmt.Errorf("definition %q has unknown kind %d", d.Name, d.Kind)
		}
		byKind[d.Kind] = append(byKind[d.Kind], d)
	}
	for k := range byKind {
		group := byKind[k]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Confidence > group[j].Confidence
		})
	}
	return &Library{byKind: byKind}, nil
}

// Definitions returns the definitions of kind k in priority order.
func (l *Library) Definitions(k Kind) []Definition {
	return append([]Definition(nil), l.byKind[k]...)
}

// DefaultLibrary returns the definitions tuned for ENEM booklets.
func DefaultLibrary() *Library {
	lib, err := NewLibrary(defaultDefinitions())
	if err != nil {
		panic(err)
	}
	return lib
}

func defaultDefinitions() []Definition {
	q := func(name, expr string, conf float64) Definition {
		return Definition{Kind: KindQuestionNumber, Name: name, Expr: regexp.MustCompile(expr), Confidence: conf}
	}
	alt := func(name, expr string, conf float64) Definition {
		return Definition{Kind: KindAlternative, Name: name, Expr: regexp.MustCompile(expr), Confidence: conf}
	}
	phrase := func(kind Kind, canonical, expr string, conf float64) Definition {
		return Definition{Kind: kind, Name: canonical, Expr: regexp.MustCompile(expr), Confidence: conf, Canonical: canonical}
	}
	area := func(a exercise.SubjectArea, expr string) Definition {
		return Definition{Kind: KindSubjectArea, Name: string(a), Expr: regexp.MustCompile(expr), Confidence: 0.95, Area: a}
	}

	return []Definition{
		q("questao-caps", `(?m)^[ \t]*QUESTÃO[ \t]+(\d{1,3})\b`, 0.95),
		q("questao", `(?m)^[ \t]*(?i:quest[ãa]o)[ \t]*(\d{1,3})\b`, 0.90),
		q("number-punct", `(?m)^[ \t]*(\d{1,3})[.)](?:[ \t]|$)`, 0.80),
		q("number-dash", `(?m)^[ \t]*(\d{1,3})[ \t]+[-–][ \t]`, 0.75),

		alt("letter-paren", `(?m)^[ \t]*([A-E])\)[ \t]*(.*)$`, 0.95),
		alt("letter-wrapped", `(?m)^[ \t]*\(([A-E])\)[ \t]*(.*)$`, 0.93),
		alt("letter-dot", `(?m)^[ \t]*([A-E])\.(?:[ \t]+(.*))?$`, 0.85),
		alt("letter-bare", `(?m)^[ \t]*([A-E])[ \t]+([^\s\p{Ll}\p{P}\p{S}].*)$`, 0.75),
		alt("letter-generic", `(?m)^[ \t]*([A-E])[ \t]*[-–:|•][ \t]*(.*)$`, 0.70),

		phrase(KindCommand, "assinale a alternativa correta", `(?i)assinale\s+a\s+alternativa\s+correta`, 0.95),
		phrase(KindCommand, "assinale a opção correta", `(?i)assinale\s+a\s+op[çc][ãa]o\s+correta`, 0.90),
		phrase(KindCommand, "marque a alternativa correta", `(?i)marque\s+a\s+alternativa\s+correta`, 0.90),
		phrase(KindCommand, "marque a opção correta", `(?i)marque\s+a\s+op[çc][ãa]o\s+correta`, 0.90),
		phrase(KindCommand, "é correto afirmar que", `(?i)[ée]\s+correto\s+afirmar\s+que`, 0.85),
		phrase(KindCommand, "indique a alternativa", `(?i)indique\s+a\s+alternativa`, 0.80),
		phrase(KindCommand, "a alternativa que apresenta", `(?i)a\s+alternativa\s+que\s+apresenta`, 0.75),

		area(exercise.AreaLanguages, `(?i)linguagens,?\s+c[óo]digos\s+e\s+suas\s+tecnologias`),
		area(exercise.AreaHumanities, `(?i)ci[êe]ncias\s+humanas\s+e\s+suas\s+tecnologias`),
		area(exercise.AreaNatural, `(?i)ci[êe]ncias\s+da\s+natureza\s+e\s+suas\s+tecnologias`),
		area(exercise.AreaMathematics, `(?i)matem[áa]tica\s+e\s+suas\s+tecnologias`),

		phrase(KindInstruction, "leia atentamente as instruções", `(?i)leia\s+atentamente\s+as\s+instru[çc][õo]es`, 0.90),
		phrase(KindInstruction, "tempo disponível para as provas", `(?i)tempo\s+dispon[íi]vel\s+para\s+(?:estas?|as)\s+provas?`, 0.85),
		phrase(KindInstruction, "cartão-resposta", `(?i)cart[ãa]o[- ]resposta`, 0.80),
		phrase(KindInstruction, "folha de redação", `(?i)folha\s+de\s+reda[çc][ãa]o`, 0.80),
	}
}
