package openai

import (
	"testing"
)

func TestModelDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
	}
	for _, tt := range tests {
		if got := modelDimensions(tt.model); got != tt.want {
			t.Errorf("modelDimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

// TestModelDimensions_Unknown verifies that unknown models return a positive
// default rather than zero.
func TestModelDimensions_Unknown(t *testing.T) {
	if d := modelDimensions("some-future-model"); d <= 0 {
		t.Errorf("unknown model: expected positive dimensions, got %d", d)
	}
}

func TestDimensions_MethodMatchesHelper(t *testing.T) {
	cases := []string{
		"text-embedding-3-small",
		"text-embedding-3-large",
		"text-embedding-ada-002",
	}
	for _, model := range cases {
		e := &Embedder{model: model}
		if got := e.Dimensions(); got != modelDimensions(model) {
			t.Errorf("model %s: Dimensions() = %d, want %d", model, got, modelDimensions(model))
		}
	}
}

func TestModelID(t *testing.T) {
	cases := []string{
		"text-embedding-3-small",
		"my-custom-embeddings-model",
	}
	for _, model := range cases {
		e := &Embedder{model: model}
		if got := e.ModelID(); got != model {
			t.Errorf("ModelID() = %q, want %q", got, model)
		}
	}
}

// TestNew_DefaultModel verifies that an empty model string defaults to
// text-embedding-3-small.
func TestNew_DefaultModel(t *testing.T) {
	e, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ModelID() != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, e.ModelID())
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "text-embedding-3-small")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_Options(t *testing.T) {
	_, err := New("sk-test", "text-embedding-3-small",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}

func TestFloat64ToFloat32(t *testing.T) {
	in := []float64{1.0, 2.5, -0.5}
	out := float64ToFloat32(in)
	if len(out) != len(in) {
		t.Fatalf("expected %d elements, got %d", len(in), len(out))
	}
	for i, v := range out {
		if v != float32(in[i]) {
			t.Errorf("index %d: expected %v, got %v", i, float32(in[i]), v)
		}
	}
}
