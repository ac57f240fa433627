package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\r\n" +
		"HUGGING_FACE_TOKEN=\"hf_abc\"\n" +
		"export TUNEKIT_SINGLE='quoted value'\n" +
		"TUNEKIT_PLAIN = spaced \n" +
		"TUNEKIT_PRESET=from-file\n" +
		"not a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HUGGING_FACE_TOKEN", "")
	_ = os.Unsetenv("HUGGING_FACE_TOKEN")
	t.Setenv("TUNEKIT_SINGLE", "")
	_ = os.Unsetenv("TUNEKIT_SINGLE")
	t.Setenv("TUNEKIT_PLAIN", "")
	_ = os.Unsetenv("TUNEKIT_PLAIN")
	t.Setenv("TUNEKIT_PRESET", "from-env")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}

	tests := map[string]string{
		"HUGGING_FACE_TOKEN": "hf_abc",
		"TUNEKIT_SINGLE":     "quoted value",
		"TUNEKIT_PLAIN":      "spaced",
		"TUNEKIT_PRESET":     "from-env",
	}
	for key, want := range tests {
		if got := os.Getenv(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "absent")); !os.IsNotExist(err) {
		t.Errorf("loadEnvFile() error = %v, want not-exist", err)
	}
}
