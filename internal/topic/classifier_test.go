package topic_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/topic"
)

func TestClassify_Default(t *testing.T) {
	tests := []struct {
		text string
		want exercise.Topic
	}{
		{"Um triângulo retângulo tem área de 20 cm².", exercise.TopicGeometry},
		{"OS TRIÂNGULOS DA FIGURA", exercise.TopicGeometry},
		{"Considere a função f(x) = 2x + 1.", exercise.TopicFunctions},
		{"O montante obtido após dois anos cobre a área do terreno.", exercise.TopicFinancial},
		{"Qual a probabilidade de a bola sorteada ser azul?", exercise.TopicStatistics},
		{"Quantos anagramas da palavra ENEM existem?", exercise.TopicCombinatorics},
		{"Os termos formam uma progressão aritmética.", exercise.TopicSequences},
		{"O seno do ângulo indicado vale 0,5.", exercise.TopicTrigonometry},
		{"No plano cartesiano, o ponto P tem coordenadas (2, 3).", exercise.TopicAnalyticGeometry},
		{"Resolva a equação 2x + 3 = 7.", exercise.TopicAlgebra},
		{"O poema apresenta traços do Romantismo.", exercise.TopicOther},
		{"A modalidade esportiva é areal.", exercise.TopicOther},
		{"", exercise.TopicOther},
	}

	c := topic.Default()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDefaultRules_DocumentedOrder(t *testing.T) {
	want := []exercise.Topic{
		exercise.TopicFinancial, exercise.TopicCombinatorics, exercise.TopicStatistics,
		exercise.TopicSequences, exercise.TopicTrigonometry, exercise.TopicAnalyticGeometry,
		exercise.TopicFunctions, exercise.TopicGeometry, exercise.TopicAlgebra,
	}
	rules := topic.Default().Rules()
	if len(rules) != len(want) {
		t.Fatalf("got %d rules, want %d", len(rules), len(want))
	}
	for i, r := range rules {
		if r.Topic != want[i] {
			t.Errorf("rule %d = %q, want %q", i, r.Topic, want[i])
		}
	}
}

func TestNewClassifier_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rules []topic.Rule
	}{
		{"unknown topic", []topic.Rule{{Topic: "Astronomy", Keywords: []string{"estrela"}}}},
		{"fallback topic", []topic.Rule{{Topic: exercise.TopicOther, Keywords: []string{"x"}}}},
		{"duplicate topic", []topic.Rule{
			{Topic: exercise.TopicAlgebra, Keywords: []string{"x"}},
			{Topic: exercise.TopicAlgebra, Keywords: []string{"y"}},
		}},
		{"no keywords", []topic.Rule{{Topic: exercise.TopicAlgebra}}},
		{"blank keyword", []topic.Rule{{Topic: exercise.TopicAlgebra, Keywords: []string{" * "}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := topic.NewClassifier(tt.rules); err == nil {
				t.Error("NewClassifier() should fail")
			}
		})
	}
}

func TestLoadClassifier_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	os.WriteFile(path, []byte(`
topics:
  - topic: Algebra
    keywords: ["incógnita*"]
  - topic: Geometry
    keywords: [área]
`), 0o644)

	c, err := topic.LoadClassifier(path)
	if err != nil {
		t.Fatalf("LoadClassifier() error = %v", err)
	}
	if got := c.Classify("A área depende da incógnita x."); got != exercise.TopicAlgebra {
		t.Errorf("Classify() = %q, want Algebra (first rule wins)", got)
	}
	if got := c.Classify("Calcule a AREA."); got != exercise.TopicGeometry {
		t.Errorf("Classify() = %q, want Geometry", got)
	}
}

func TestLoadClassifier_EmptyPathUsesDefault(t *testing.T) {
	c, err := topic.LoadClassifier("")
	if err != nil {
		t.Fatalf("LoadClassifier() error = %v", err)
	}
	if len(c.Rules()) != len(topic.DefaultRules()) {
		t.Errorf("got %d rules, want the default table", len(c.Rules()))
	}
}

func TestLoadRules_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("topics: []\n"), 0o644)
	broken := filepath.Join(dir, "broken.yaml")
	os.WriteFile(broken, []byte("topics: [\n"), 0o644)
	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("topics:\n  - topic: Astronomy\n    keywords: [estrela]\n"), 0o644)

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), empty, broken} {
		if _, err := topic.LoadRules(path); err == nil {
			t.Errorf("LoadRules(%s) should fail", filepath.Base(path))
		}
	}
	if _, err := topic.LoadClassifier(unknown); err == nil {
		t.Error("LoadClassifier() should reject topics outside the taxonomy")
	}
}

func TestRangeHint(t *testing.T) {
	h := topic.DefaultRangeHint()
	tests := []struct {
		n      int
		want   exercise.SubjectArea
		wantOK bool
	}{
		{135, "", false},
		{136, exercise.AreaMathematics, true},
		{180, exercise.AreaMathematics, true},
		{181, "", false},
	}
	for _, tt := range tests {
		got, ok := h.AreaFor(tt.n)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("AreaFor(%d) = %q, %v; want %q, %v", tt.n, got, ok, tt.want, tt.wantOK)
		}
	}

	if _, ok := (topic.RangeHint{}).AreaFor(150); ok {
		t.Error("zero RangeHint should be disabled")
	}
}

func TestConflict(t *testing.T) {
	tests := []struct {
		hint exercise.SubjectArea
		tp   exercise.Topic
		want bool
	}{
		{"", exercise.TopicOther, false},
		{exercise.AreaMathematics, exercise.TopicGeometry, false},
		{exercise.AreaMathematics, exercise.TopicOther, true},
		{exercise.AreaLanguages, exercise.TopicOther, false},
		{exercise.AreaLanguages, exercise.TopicAlgebra, true},
	}
	for _, tt := range tests {
		if got := topic.Conflict(tt.hint, tt.tp); got != tt.want {
			t.Errorf("Conflict(%q, %q) = %v, want %v", tt.hint, tt.tp, got, tt.want)
		}
	}
}
