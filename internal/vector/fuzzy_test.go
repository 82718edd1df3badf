package vector

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Pepito   Gómez ", "pepito gomez"},
		{"MARÍA ÑÁÑEZ", "maria nanez"},
		{"José", "jose"},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, quiere %q", tc.in, got, tc.want)
		}
	}
}

func TestFuzzyNameScoreExact(t *testing.T) {
	if score := FuzzyNameScore("Pepito Gómez", "pepito gomez"); score != 1.0 {
		t.Fatalf("coincidencia exacta = %f, quiere 1.0", score)
	}
}

func TestFuzzyNameScoreSimilar(t *testing.T) {
	// mismo paciente con segundo apellido extra: debe superar el umbral de enlace 0.85
	score := FuzzyNameScore("Pepito Gómez", "Pepito Gómez García")
	if score < 0.85 {
		t.Fatalf("nombre con apellido extra = %f, quiere >= 0.85", score)
	}

	// un solo token compartido pasa el umbral de búsqueda pero no el de enlace
	score = FuzzyNameScore("Pepito Gómez", "Juan Gómez")
	if score >= 0.85 {
		t.Fatalf("nombres distintos = %f, no debería alcanzar 0.85", score)
	}
}

func TestFuzzyNameScoreUnrelated(t *testing.T) {
	if score := FuzzyNameScore("Pepito Gómez", "Ana Martínez"); score != 0 {
		t.Fatalf("sin tokens comunes = %f, quiere 0", score)
	}
}

func TestFuzzyNameScoreEmpty(t *testing.T) {
	if score := FuzzyNameScore("", "Pepito"); score != 0 {
		t.Fatalf("vacío = %f, quiere 0", score)
	}
}

func TestFuzzyNameScoreBounds(t *testing.T) {
	pairs := [][2]string{
		{"Pepito Gómez", "Pepito Gómez García"},
		{"Ana", "Ana María López"},
		{"Juan Carlos Pérez", "Pérez Juan Carlos"},
	}
	for _, p := range pairs {
		score := FuzzyNameScore(p[0], p[1])
		if score < 0 || score > 1 {
			t.Errorf("score fuera de rango para %v: %f", p, score)
		}
	}
}
