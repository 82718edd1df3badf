package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MedSol-RAG/internal/apperr"
)

func noSleep(calls *int32) sleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		atomic.AddInt32(calls, 1)
		return nil
	}
}

func TestChatComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("ruta inesperada: %s", r.URL.Path)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "test-model" {
			t.Errorf("modelo = %v", payload["model"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "  hola  "}},
			},
		})
	}))
	defer srv.Close()

	c := &chatClient{base: srv.URL, model: "test-model", client: srv.Client(), sleep: sleepCtx}
	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hola"}}, CompleteParams{Temperature: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hola" {
		t.Fatalf("respuesta = %q", got)
	}
}

func TestChatRetriesOnRateLimit(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	var sleeps int32
	c := &chatClient{base: srv.URL, model: "m", client: srv.Client(), sleep: noSleep(&sleeps)}
	got, err := c.Complete(context.Background(), nil, CompleteParams{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" {
		t.Fatalf("respuesta = %q", got)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("intentos = %d, quiere 3", attempts)
	}
	if atomic.LoadInt32(&sleeps) != 2 {
		t.Fatalf("esperas = %d, quiere 2", sleeps)
	}
}

func TestChatGivesUpAfterThreeAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var sleeps int32
	c := &chatClient{base: srv.URL, model: "m", client: srv.Client(), sleep: noSleep(&sleeps)}
	_, err := c.Complete(context.Background(), nil, CompleteParams{})
	if apperr.KindOf(err) != apperr.RateLimited {
		t.Fatalf("kind = %s, quiere rate_limited", apperr.KindOf(err))
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("intentos = %d, quiere 3", attempts)
	}
}

func TestChatServerErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var sleeps int32
	c := &chatClient{base: srv.URL, model: "m", client: srv.Client(), sleep: noSleep(&sleeps)}
	_, err := c.Complete(context.Background(), nil, CompleteParams{})
	if apperr.KindOf(err) != apperr.ProviderUnavailable {
		t.Fatalf("kind = %s, quiere provider_unavailable", apperr.KindOf(err))
	}
}

func TestEmbedDimensionCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	c := &embedClient{base: srv.URL, model: "m", dim: 3, client: srv.Client(), sleep: sleepCtx}
	_, err := c.Embed(context.Background(), "texto")
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("kind = %s, quiere invalid_input por dimensión", apperr.KindOf(err))
	}

	c.dim = 2
	vec, err := c.Embed(context.Background(), "texto")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 2 {
		t.Fatalf("dim = %d", len(vec))
	}
}

func TestBackoffDelays(t *testing.T) {
	var delays []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	err := withRetry(context.Background(), sleep, func() error {
		calls++
		return apperr.New(apperr.RateLimited, "429")
	})
	if err == nil {
		t.Fatal("debe propagar el último error")
	}
	if calls != 3 {
		t.Fatalf("llamadas = %d", calls)
	}
	// base 1s, luego 2s; tope 10s nunca alcanzado con 3 intentos
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("retrasos = %v", delays)
	}
}

func TestWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if r.FormValue("response_format") != "verbose_json" {
			t.Errorf("response_format = %s", r.FormValue("response_format"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text":     "Buenos días. Me duele la cabeza.",
			"language": "es",
			"duration": 12.0,
			"segments": []map[string]any{
				{"start": 0.0, "end": 5.0, "text": "Buenos días.", "avg_logprob": -0.2},
				{"start": 5.0, "end": 12.0, "text": "Me duele la cabeza.", "avg_logprob": -0.3},
			},
		})
	}))
	defer srv.Close()

	c := &whisperClient{base: srv.URL, model: "whisper-base", client: srv.Client(), sleep: sleepCtx}
	result, err := c.Transcribe(context.Background(), []byte("RIFF....WAVE"), TranscribeHints{Language: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text == "" || result.Language != "es" || result.DurationS != 12.0 {
		t.Fatalf("resultado inesperado: %+v", result)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segmentos = %d", len(result.Segments))
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Fatalf("confianza fuera de rango: %f", result.Confidence)
	}
}

func TestWhisperInvalidMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &whisperClient{base: srv.URL, model: "m", client: srv.Client(), sleep: sleepCtx}
	_, err := c.Transcribe(context.Background(), []byte("no audio"), TranscribeHints{})
	if apperr.KindOf(err) != apperr.InvalidMedia {
		t.Fatalf("kind = %s, quiere invalid_media", apperr.KindOf(err))
	}
}

func TestOCRImageClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" {
			t.Errorf("ruta = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text":       "Paciente: Pepito Gómez. Glucosa 180 mg/dL",
			"confidence": 87.5, // el sidecar devuelve porcentaje
		})
	}))
	defer srv.Close()

	c := &ocrClient{base: srv.URL, client: srv.Client()}
	result, err := c.ExtractImage(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "spa")
	if err != nil {
		t.Fatal(err)
	}
	if result.Confidence != 0.875 {
		t.Fatalf("confianza = %f, quiere 0.875 normalizada", result.Confidence)
	}
	if result.Text == "" {
		t.Fatal("texto vacío")
	}
}
