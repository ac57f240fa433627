package util

import (
	"strings"
	"testing"
)

func TestRenderTemplate_Basic(t *testing.T) {
	tmpl := "{{.Code}}\nExplanation: {{.Explanation}} {{.EOS}}"
	data := map[string]any{
		"Code":        "print(1)",
		"Explanation": "prints 1",
		"EOS":         "<eos>",
	}

	result, err := RenderTemplate(tmpl, data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "print(1)\nExplanation: prints 1 <eos>"
	if result != expected {
		t.Errorf("Expected %q, got %q", expected, result)
	}
}

func TestRenderTemplate_NoHTMLEscaping(t *testing.T) {
	result, err := RenderTemplate("{{.Code}}", map[string]any{"Code": `if a < b and c > "d" then`})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != `if a < b and c > "d" then` {
		t.Errorf("text/template should not escape markup, got %q", result)
	}
}

func TestRenderTemplate_NestedFields(t *testing.T) {
	tmpl := "-- {{.Fields.language}}\n{{.Code}}"
	data := map[string]any{
		"Code":   "x = 1",
		"Fields": map[string]string{"language": "lua"},
	}

	result, err := RenderTemplate(tmpl, data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "-- lua\nx = 1" {
		t.Errorf("unexpected result %q", result)
	}
}

func TestRenderTemplate_InvalidTemplate(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name", map[string]any{"Name": "Alice"})
	if err == nil {
		t.Error("Expected error for invalid template, got nil")
	}
}

func TestRenderTemplate_MissingData(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name}}", map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "failed to execute template") {
		t.Errorf("Expected execute error for missing key, got %v", err)
	}
}

func TestRenderTemplate_EmptyTemplate(t *testing.T) {
	result, err := RenderTemplate("", map[string]any{"Name": "Alice"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "" {
		t.Errorf("Expected empty result, got '%s'", result)
	}
}

func TestRenderTemplate_ForbiddenDirectives(t *testing.T) {
	tests := []string{
		"{{call .Func}}",
		`{{define "x"}}y{{end}}`,
		`{{template "x"}}`,
		`{{block "x" .}}y{{end}}`,
	}

	for _, tmpl := range tests {
		t.Run(tmpl, func(t *testing.T) {
			_, err := RenderTemplate(tmpl, map[string]any{})
			if err == nil || !strings.Contains(err.Error(), "forbidden directive") {
				t.Errorf("Expected forbidden directive error, got %v", err)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncate me", 8, "truncate..."},
		{"héllo wörld", 5, "héllo..."},
	}

	for _, tt := range tests {
		if got := TruncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
