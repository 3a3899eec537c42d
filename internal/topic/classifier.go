// Package topic assigns exercises to the closed topic taxonomy.
package topic

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

// Rule maps keywords to a topic. A keyword ending in "*" matches any word
// starting with the stem; other keywords match whole words or word sequences.
type Rule struct {
	Topic    exercise.Topic `yaml:"topic"`
	Keywords []string       `yaml:"keywords"`
}

type compiledRule struct {
	topic    exercise.Topic
	needles  []string
	original Rule
}

// Classifier is a first-match keyword classifier. Rules are checked in
// order and the first topic with any keyword hit wins.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier validates rules against the taxonomy and folds keywords.
func NewClassifier(rules []Rule) (*Classifier, error) {
	seen := make(map[exercise.Topic]bool)
	c := &Classifier{}
	for _, r := range rules {
		if _, err := exercise.ParseTopic(string(r.Topic)); err != nil {
			return nil, err
		}
		if r.Topic == exercise.TopicOther {
			return nil, fmt.Errorf("topic %q is the fallback and takes no keywords", r.Topic)
		}
		if seen[r.Topic] {
			return nil, fmt.Errorf("topic %q listed twice", r.Topic)
		}
		seen[r.Topic] = true

		cr := compiledRule{topic: r.Topic, original: r}
		for _, kw := range r.Keywords {
			stem, prefix := strings.CutSuffix(strings.TrimSpace(kw), "*")
			folded := tokens(stem)
			if folded == "" {
				return nil, fmt.Errorf("topic %q has an empty keyword", r.Topic)
			}
			needle := " " + folded
			if !prefix {
				needle += " "
			}
			cr.needles = append(cr.needles, needle)
		}
		if len(cr.needles) == 0 {
			return nil, fmt.Errorf("topic %q has no keywords", r.Topic)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Default returns the classifier with the built-in table.
func Default() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the first topic whose keywords occur in text, or Other.
func (c *Classifier) Classify(text string) exercise.Topic {
	haystack := " " + tokens(text) + " "
	for _, r := range c.rules {
		for _, n := range r.needles {
			if strings.Contains(haystack, n) {
				return r.topic
			}
		}
	}
	return exercise.TopicOther
}

// Rules returns the rules in matching order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.original
	}
	return out
}

// tokens lower-cases s, strips accents and joins its alphanumeric words
// with single spaces.
func tokens(s string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.BrazilianPortuguese).String(folded)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

// DefaultRules is the built-in table. Order matters: more specific topics
// come before the broad ones that share vocabulary with them.
func DefaultRules() []Rule {
	return []Rule{
		{exercise.TopicFinancial, []string{
			"juros", "montante", "capital inicial", "desconto*", "porcentage*", "percentua*",
			"lucro*", "prestaç*", "financiament*", "investiment*", "inflação", "aplicação financeira",
		}},
		{exercise.TopicCombinatorics, []string{
			"combinaç*", "permutaç*", "arranjo*", "anagrama*", "fatorial",
			"princípio fundamental da contagem", "maneiras distintas", "modos distintos",
		}},
		{exercise.TopicStatistics, []string{
			"probabilidade*", "média aritmética", "mediana", "moda", "desvio padrão", "variância",
			"estatístic*", "frequência*", "aleatoriamente", "sortead*", "sorteio",
		}},
		{exercise.TopicSequences, []string{
			"progressão aritmética", "progressão geométrica", "sequência*", "termo geral",
			"razão da progressão",
		}},
		{exercise.TopicTrigonometry, []string{
			"seno", "cosseno", "tangente", "trigonométric*", "radiano*", "ângulo de elevação",
		}},
		{exercise.TopicAnalyticGeometry, []string{
			"plano cartesiano", "coordenada*", "equação da reta", "coeficiente angular",
			"eixo das abscissas", "eixo das ordenadas", "distância entre os pontos",
		}},
		{exercise.TopicFunctions, []string{
			"função", "funções", "gráfico*", "domínio", "imagem", "f x", "exponencia*",
			"logarítm*", "quadrática",
		}},
		{exercise.TopicGeometry, []string{
			"triângul*", "círculo*", "área", "volume", "geometri*", "polígono*", "perímetro",
			"cilindr*", "cubo*", "esfera*", "prisma*", "pirâmide*", "retângul*", "diâmetro", "raio",
		}},
		{exercise.TopicAlgebra, []string{
			"equação", "equações", "inequaç*", "incógnita*", "sistema linear", "polinômio*",
			"expressão algébrica", "proporç*", "regra de três", "variável",
		}},
	}
}
