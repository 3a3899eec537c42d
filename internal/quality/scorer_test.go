package quality_test

import (
	"strings"
	"testing"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/quality"
	"github.com/atena-edu/enem-helper/internal/topic"
)

func alts(valid, invalid int) []exercise.Alternative {
	var out []exercise.Alternative
	letter := 'A'
	for i := 0; i < valid; i++ {
		out = append(out, exercise.NewAlternative(string(letter), "resposta válida", 1.0))
		letter++
	}
	for i := 0; i < invalid; i++ {
		out = append(out, exercise.NewAlternative(string(letter), "+++", 0.4))
		letter++
	}
	return out
}

func TestScore_Components(t *testing.T) {
	long := strings.Repeat("a", 50)
	medium := strings.Repeat("a", 20)

	tests := []struct {
		name string
		ex   exercise.Exercise
		want int
	}{
		{"empty", exercise.Exercise{}, 0},
		{"full statement and alternatives", exercise.Exercise{Statement: long, Alternatives: alts(5, 0)}, 85},
		{"partial statement", exercise.Exercise{Statement: medium, Alternatives: alts(5, 0)}, 72},
		{"one noisy alternative", exercise.Exercise{Statement: long, Alternatives: alts(4, 1)}, 75},
		{"three alternatives", exercise.Exercise{Statement: long, Alternatives: alts(3, 0)}, 50},
		{"all metadata", exercise.Exercise{
			Statement: long, Alternatives: alts(5, 0), Topic: exercise.TopicGeometry,
			SubjectArea: exercise.AreaMathematics, Command: "assinale a alternativa correta",
		}, 100},
		{"area from hint only", exercise.Exercise{Statement: long, Alternatives: alts(5, 0), AreaHint: exercise.AreaMathematics}, 88},
		{"topic in conflict with hint", exercise.Exercise{
			Statement: long, Alternatives: alts(5, 0), Topic: exercise.TopicGeometry,
			AreaHint: exercise.AreaLanguages, HintConflict: true,
		}, 88},
		{"other topic earns nothing", exercise.Exercise{Statement: long, Alternatives: alts(5, 0), Topic: exercise.TopicOther}, 85},
	}

	var s quality.Scorer
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Score(tt.ex); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_MonotoneInValidAlternatives(t *testing.T) {
	var s quality.Scorer
	prev := -1
	for valid := 0; valid <= 5; valid++ {
		got := s.Score(exercise.Exercise{Statement: "enunciado suficientemente longo", Alternatives: alts(valid, 5-valid)})
		if got < prev {
			t.Errorf("score dropped from %d to %d at %d valid alternatives", prev, got, valid)
		}
		if got < 0 || got > 100 {
			t.Errorf("score %d outside [0,100]", got)
		}
		prev = got
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name       string
		ex         exercise.Exercise
		wantOK     bool
		wantReason exercise.RejectReason
	}{
		{"accepted", exercise.Exercise{Statement: strings.Repeat("x", 20), Alternatives: alts(3, 2)}, true, ""},
		{"two valid", exercise.Exercise{Statement: strings.Repeat("x", 60), Alternatives: alts(2, 3)}, false, exercise.ReasonTooFewAlternatives},
		{"short statement", exercise.Exercise{Statement: "curto", Alternatives: alts(5, 0)}, false, exercise.ReasonStatementTooShort},
		{"both failing reports alternatives", exercise.Exercise{Statement: "curto", Alternatives: alts(1, 0)}, false, exercise.ReasonTooFewAlternatives},
		{"statement counted in runes", exercise.Exercise{Statement: strings.Repeat("ç", 20), Alternatives: alts(3, 0)}, true, ""},
	}

	var s quality.Scorer
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := s.Accept(tt.ex)
			if ok != tt.wantOK || reason != tt.wantReason {
				t.Errorf("Accept() = %v, %q; want %v, %q", ok, reason, tt.wantOK, tt.wantReason)
			}
		})
	}
}

func TestAnnotate_RangeHint(t *testing.T) {
	var s quality.Scorer
	base := exercise.Exercise{QuestionNumber: 140, Statement: strings.Repeat("a", 50), Alternatives: alts(5, 0)}

	ex := s.Annotate(base, exercise.TopicOther, topic.DefaultRangeHint())
	if ex.AreaHint != exercise.AreaMathematics || !ex.HintConflict {
		t.Errorf("AreaHint/HintConflict = %q/%v, want mathematics/true", ex.AreaHint, ex.HintConflict)
	}
	if ex.Topic != exercise.TopicOther {
		t.Errorf("hint must not override topic, got %q", ex.Topic)
	}

	ex = s.Annotate(base, exercise.TopicFunctions, topic.DefaultRangeHint())
	if ex.HintConflict {
		t.Error("math topic under math hint should not conflict")
	}
	if ex.QualityScore != 93 {
		t.Errorf("QualityScore = %d, want 93", ex.QualityScore)
	}

	base.QuestionNumber = 10
	ex = s.Annotate(base, exercise.TopicFunctions, topic.DefaultRangeHint())
	if ex.AreaHint != "" || ex.HintConflict {
		t.Errorf("question outside range got hint %q", ex.AreaHint)
	}
}
