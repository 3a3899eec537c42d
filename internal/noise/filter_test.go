package noise_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/atena-edu/enem-helper/internal/noise"
)

func TestClean_RemovesRepeatedExamCode(t *testing.T) {
	repeated := regexp.MustCompile(`(?:ENEM\s?20\d{2}[ \t*•|_.-]*){10,}`)
	f := noise.Default()

	separators := []string{"", " ", "*", " | ", "\t"}
	for _, sep := range separators {
		for n := 10; n <= 30; n += 5 {
			raw := "Texto antes\n" + strings.Repeat("ENEM2024"+sep, n) + "\nTexto depois"
			got := f.Clean(raw)
			if repeated.MatchString(got) {
				t.Errorf("sep=%q n=%d: output still contains repetitions: %q", sep, n, got)
			}
			if !strings.Contains(got, "Texto antes") || !strings.Contains(got, "Texto depois") {
				t.Errorf("sep=%q n=%d: surrounding text lost: %q", sep, n, got)
			}
		}
	}
}

func TestClean_KeepsShortRepetition(t *testing.T) {
	f := noise.Default()
	raw := "ENEM 2024 ENEM 2024 comparação entre edições"
	if got := f.Clean(raw); !strings.Contains(got, "ENEM 2024 ENEM 2024") {
		t.Errorf("Clean() removed a run below the threshold: %q", got)
	}
}

func TestClean_Rules(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		absent  []string
		present []string
	}{
		{
			name:    "internal codes",
			raw:     "Leia o texto *010175AZ3* com atenção [PV1D1AZ]",
			absent:  []string{"*010175AZ3*", "[PV1D1AZ]"},
			present: []string{"Leia o texto", "com atenção"},
		},
		{
			name:    "indesign artifact line",
			raw:     "Enunciado\nPV_2024_D2_CD5_AMARELO.indd 17 12/09/2024 14:31:07\nContinuação",
			absent:  []string{".indd", "14:31:07"},
			present: []string{"Enunciado", "Continuação"},
		},
		{
			name:    "timestamped filename",
			raw:     "Texto\nexport_20240912_143107.pdf\nMais texto",
			absent:  []string{"20240912_143107"},
			present: []string{"Texto", "Mais texto"},
		},
		{
			name:    "day and booklet banners",
			raw:     "2º DIA\nCADERNO 7 - AZUL\nQUESTÃO 136",
			absent:  []string{"DIA", "CADERNO"},
			present: []string{"QUESTÃO 136"},
		},
		{
			name:    "subject banner",
			raw:     "MATEMÁTICA E SUAS TECNOLOGIAS\nQuestões de 136 a 180\nQUESTÃO 136",
			absent:  []string{"SUAS TECNOLOGIAS"},
			present: []string{"QUESTÃO 136", "Questões de 136 a 180"},
		},
		{
			name:    "long code run",
			raw:     "Texto\nABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789ABCDEFGHIJKLMN\nFim",
			absent:  []string{"ABCDEFGHIJ"},
			present: []string{"Texto", "Fim"},
		},
		{
			name:    "code ratio line",
			raw:     "Texto\nAZ01 PV24 D2C5 0091 *** X9Y8\nFim",
			absent:  []string{"AZ01"},
			present: []string{"Texto", "Fim"},
		},
		{
			name:    "formula alternatives are kept",
			raw:     "Qual equação representa a combustão completa do metano?\nA) CH4 + 2 O2 → CO2 + 2 H2O\nB) CH4 + O2 → CO2 + 2 H2",
			present: []string{"A) CH4 + 2 O2 → CO2 + 2 H2O", "B) CH4 + O2 → CO2 + 2 H2"},
		},
		{
			name:    "export stamp after file name and page",
			raw:     "Texto\nprova_final_2024.pdf 3 12/09/2024 14:31:07\nMais texto",
			absent:  []string{"14:31:07"},
			present: []string{"Texto", "Mais texto"},
		},
		{
			name:    "date and time in prose are kept",
			raw:     "Em 15/03/2020 14:30 o sistema registrou a falha.\nPrazo final: 15/03/2020\n14:30 horas depois",
			present: []string{"Em 15/03/2020 14:30 o sistema", "Prazo final: 15/03/2020", "14:30 horas depois"},
		},
		{
			name:    "numeric table is kept",
			raw:     "Ano Valor\n2020 1 200,00 2021 1 350,00 2022 1 410,00",
			present: []string{"2021 1 350,00"},
		},
	}

	f := noise.Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Clean(tt.raw)
			for _, s := range tt.absent {
				if strings.Contains(got, s) {
					t.Errorf("Clean() = %q, should not contain %q", got, s)
				}
			}
			for _, s := range tt.present {
				if !strings.Contains(got, s) {
					t.Errorf("Clean() = %q, should contain %q", got, s)
				}
			}
		})
	}
}

func TestClean_Whitespace(t *testing.T) {
	f := noise.Default()
	raw := "  linha um   com    espaços  \r\n\r\n\r\n\r\nlinha  dois\t\tfim  "
	want := "linha um com espaços\n\nlinha  dois fim"
	if got := f.Clean(raw); got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestClean_PassThrough(t *testing.T) {
	f := noise.Default()
	raw := "Um texto simples sem ruído."
	if got := f.Clean(raw); got != raw {
		t.Errorf("Clean() = %q, want unchanged", got)
	}
	if got := f.Clean(""); got != "" {
		t.Errorf("Clean(\"\") = %q, want empty", got)
	}
}

func TestCodeRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"123 456 +++", 1},
		{"opção um", 0},
		{"QUESTÃO 91", 2.0 / 9.0},
		{"x = 3", 2.0 / 3.0},
	}

	for _, tt := range tests {
		got := noise.CodeRatio(tt.in)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("CodeRatio(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_InvalidRules(t *testing.T) {
	rules := noise.DefaultRules()
	rules.RepeatThreshold = 1
	if _, err := noise.New(rules); err == nil {
		t.Error("New() should reject a threshold below 2")
	}

	rules = noise.DefaultRules()
	rules.Headers = append(rules.Headers, "(")
	if _, err := noise.New(rules); err == nil {
		t.Error("New() should reject an invalid header pattern")
	}
}
