package service

import (
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	cases := []struct{ in, want string }{
		{"¿Qué enfermedad tiene Pepito Gómez?", "que enfermedad tiene pepito gomez"},
		{"  LISTAME   los  pacientes ", "listame los pacientes"},
		{"¡María Ñáñez!", "maria nanez"},
	}
	for _, tc := range cases {
		if got := NormalizeQuery(tc.in); got != tc.want {
			t.Errorf("NormalizeQuery(%q) = %q, quiere %q", tc.in, got, tc.want)
		}
	}
}

func TestDetectIntent(t *testing.T) {
	a := NewQueryAnalyzer()
	cases := []struct {
		query string
		want  Intent
	}{
		{"¿Qué enfermedad tiene Pepito Gómez?", IntentPatientInfo},
		{"Listame los pacientes con diabetes", IntentConditionList},
		{"¿Quiénes padecen hipertensión?", IntentConditionList},
		{"¿Quién tiene dolor de cabeza?", IntentSymptomSearch},
		{"¿Qué medicamento toma Ana López?", IntentMedicationInfo},
		{"¿Cuándo fue la última consulta?", IntentTemporalQuery},
		{"hola, cuéntame del sistema", IntentGeneralQuery},
		{"", IntentUnknown},
	}
	for _, tc := range cases {
		plan := a.Analyze(tc.query)
		if plan.Intent != tc.want {
			t.Errorf("Analyze(%q).Intent = %s, quiere %s", tc.query, plan.Intent, tc.want)
		}
	}
}

func TestExtractPatientEntity(t *testing.T) {
	a := NewQueryAnalyzer()
	plan := a.Analyze("¿Qué enfermedad tiene Pepito Gómez?")

	if len(plan.Entities.Patients) != 1 || plan.Entities.Patients[0] != "Pepito Gómez" {
		t.Fatalf("pacientes = %v", plan.Entities.Patients)
	}
	// la primera palabra del interrogativo no es un paciente
	for _, p := range plan.Entities.Patients {
		if p == "Qué" {
			t.Fatal("palabra interrogativa tomada como paciente")
		}
	}
	if plan.Filters["patient_name"] != "Pepito Gómez" {
		t.Fatalf("filtro automático = %v", plan.Filters)
	}
}

func TestExtractConditionAndSynonyms(t *testing.T) {
	a := NewQueryAnalyzer()
	plan := a.Analyze("Listame los pacientes con diabetes")

	if len(plan.Entities.Conditions) != 1 || plan.Entities.Conditions[0] != "diabetes" {
		t.Fatalf("condiciones = %v", plan.Entities.Conditions)
	}
	// expansión por sinónimos entre los términos de búsqueda
	if !containsString(plan.SearchTerms, "diabetes") {
		t.Fatalf("términos = %v", plan.SearchTerms)
	}

	// un sinónimo también dispara la condición canónica
	plan = a.Analyze("pacientes con glucosa alta")
	if !containsString(plan.Entities.Conditions, "diabetes") {
		t.Fatalf("sinónimo no detectado: %v", plan.Entities.Conditions)
	}
}

func TestExtractSymptomsAndDates(t *testing.T) {
	a := NewQueryAnalyzer()
	plan := a.Analyze("¿Quién reportó dolor de cabeza ayer?")

	if !containsString(plan.Entities.Symptoms, "dolor de cabeza") {
		t.Fatalf("síntomas = %v", plan.Entities.Symptoms)
	}
	if !containsString(plan.Entities.Dates, "ayer") {
		t.Fatalf("fechas = %v", plan.Entities.Dates)
	}

	plan = a.Analyze("consultas del 2025-03-01")
	if !containsString(plan.Entities.Dates, "2025-03-01") {
		t.Fatalf("fecha ISO no detectada: %v", plan.Entities.Dates)
	}
}

func TestSearchTermsCapAndStopwords(t *testing.T) {
	a := NewQueryAnalyzer()
	plan := a.Analyze("el la los las de en con que paciente tiene diabetes hipertension asma gripe covid fiebre tos mareos fatiga")

	if len(plan.SearchTerms) > 10 {
		t.Fatalf("términos = %d, máximo 10", len(plan.SearchTerms))
	}
	for _, term := range plan.SearchTerms {
		if stopwords[term] {
			t.Errorf("stopword %q entre los términos", term)
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := NewQueryAnalyzer()
	q := "¿Qué enfermedad tiene Pepito Gómez?"
	p1 := a.Analyze(q)
	p2 := a.Analyze(q)
	if p1.Intent != p2.Intent || p1.Normalized != p2.Normalized {
		t.Fatal("el análisis debe ser determinista")
	}
	if len(p1.SearchTerms) != len(p2.SearchTerms) {
		t.Fatal("términos no deterministas")
	}
}
