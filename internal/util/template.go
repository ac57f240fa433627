package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var (
	templateCache   = make(map[string]*template.Template)
	templateCacheMu sync.RWMutex
)

// forbiddenDirectives could call into or redefine templates
var forbiddenDirectives = []string{"{{call", "{{define", "{{template", "{{block"}

// RenderTemplate renders a template string with the given data.
// Parsed templates are cached by source text. Missing keys are an error.
func RenderTemplate(tmpl string, data map[string]any) (string, error) {
	t, err := compileTemplate(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// ClearTemplateCache drops every cached template
func ClearTemplateCache() {
	templateCacheMu.Lock()
	defer templateCacheMu.Unlock()
	templateCache = make(map[string]*template.Template)
}

func compileTemplate(tmpl string) (*template.Template, error) {
	// Validation runs on every call so a cache hit cannot bypass it
	for _, directive := range forbiddenDirectives {
		if strings.Contains(tmpl, directive) {
			return nil, fmt.Errorf("template contains forbidden directive: %s", directive)
		}
	}

	templateCacheMu.RLock()
	t, ok := templateCache[tmpl]
	templateCacheMu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := template.New("prompt").
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	templateCacheMu.Lock()
	templateCache[tmpl] = t
	templateCacheMu.Unlock()
	return t, nil
}

// TruncateString truncates a string to maxLen runes (Unicode-safe)
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
