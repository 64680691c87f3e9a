package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileCandidatesDoesNotOverrideExisting(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, "env")
	content := "CHORUS_TEST_ENV_ONE=from-file\nexport CHORUS_TEST_ENV_TWO=\"quoted\"\n# comment\n\nCHORUS_TEST_ENV_THREE='single'\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CHORUS_TEST_ENV_ONE", "already-set")
	os.Unsetenv("CHORUS_TEST_ENV_TWO")
	os.Unsetenv("CHORUS_TEST_ENV_THREE")
	defer func() {
		os.Unsetenv("CHORUS_TEST_ENV_ONE")
		os.Unsetenv("CHORUS_TEST_ENV_TWO")
		os.Unsetenv("CHORUS_TEST_ENV_THREE")
	}()

	if err := loadEnvFile(envFile); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}

	if v := os.Getenv("CHORUS_TEST_ENV_ONE"); v != "already-set" {
		t.Errorf("expected existing env var preserved, got %q", v)
	}
	if v := os.Getenv("CHORUS_TEST_ENV_TWO"); v != "quoted" {
		t.Errorf("expected quotes trimmed, got %q", v)
	}
	if v := os.Getenv("CHORUS_TEST_ENV_THREE"); v != "single" {
		t.Errorf("expected single-quotes trimmed, got %q", v)
	}
}

func TestTrimOptionalQuotes(t *testing.T) {
	cases := map[string]string{
		`"double"`: "double",
		`'single'`: "single",
		"bare":     "bare",
		`"`:        `"`,
	}
	for in, want := range cases {
		if got := trimOptionalQuotes(in); got != want {
			t.Errorf("trimOptionalQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}
