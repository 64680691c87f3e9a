package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Name != "claude-sonnet-4-5" {
		t.Errorf("expected default model claude-sonnet-4-5, got %s", cfg.Model.Name)
	}
	if cfg.Model.MaxToolIterations != 25 {
		t.Errorf("expected default maxToolIterations 25, got %d", cfg.Model.MaxToolIterations)
	}
	if cfg.Tools.Exec.Timeout != 60*time.Second {
		t.Errorf("expected exec timeout 60s, got %v", cfg.Tools.Exec.Timeout)
	}
	if cfg.Tools.Exec.MaxOutputBytes != 50_000 {
		t.Errorf("expected exec maxOutputBytes 50000, got %d", cfg.Tools.Exec.MaxOutputBytes)
	}
	if cfg.Slack.APIBase != "https://slack.com/api" {
		t.Errorf("expected default slack api base, got %s", cfg.Slack.APIBase)
	}
}

func TestValidAgentName(t *testing.T) {
	cases := map[string]bool{
		"triage":     true,
		"agent-1":    true,
		"a":          false, // too short for the interior-hyphen grammar
		"ab":         true,
		"-leading":   false,
		"trailing-":  false,
		"Upper":      false,
		"has_under":  false,
		"":           false,
	}
	for name, want := range cases {
		if got := ValidAgentName(name); got != want {
			t.Errorf("ValidAgentName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWorkspaceAndDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.Home = "/tmp/chorus-home"

	if got := cfg.WorkspacePath("triage"); got != filepath.Join("/tmp/chorus-home", "agents", "triage") {
		t.Errorf("unexpected workspace path: %s", got)
	}
	if got := cfg.DBPath(); got != filepath.Join("/tmp/chorus-home", "chorus.db") {
		t.Errorf("unexpected db path: %s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", "/tmp/nonexistent-chorus-test")
	os.Unsetenv("CHORUS_HOME")
	os.Unsetenv("CHORUS_CONFIG")
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.MaxTokens != 8192 {
		t.Errorf("expected maxTokens 8192, got %d", cfg.Model.MaxTokens)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	configFile := filepath.Join(configDir, ConfigFile)

	configJSON := `{
		"model": {"name": "gpt-4o", "maxTokens": 4096},
		"agents": [{"name": "triage", "channelId": "C123", "permissions": "open"}]
	}`
	if err := os.WriteFile(configFile, []byte(configJSON), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CHORUS_HOME", tmpDir)
	defer os.Unsetenv("CHORUS_HOME")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.Name != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", cfg.Model.Name)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].ChannelID != "C123" {
		t.Fatalf("expected one agent bound to C123, got %+v", cfg.Agents)
	}
}

func TestLoadAppliesAgentPermissionsDefault(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	configFile := filepath.Join(configDir, ConfigFile)

	configJSON := `{"agents": [{"name": "triage", "channelId": "C1"}]}`
	if err := os.WriteFile(configFile, []byte(configJSON), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CHORUS_HOME", tmpDir)
	defer os.Unsetenv("CHORUS_HOME")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Agents[0].Permissions != "standard" {
		t.Errorf("expected default permissions preset 'standard', got %q", cfg.Agents[0].Permissions)
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("CHORUS_MODEL_MODEL", "gpt-5")
	os.Setenv("CHORUS_SLACK_BOT_TOKEN", "xoxb-test")
	defer func() {
		os.Unsetenv("CHORUS_MODEL_MODEL")
		os.Unsetenv("CHORUS_SLACK_BOT_TOKEN")
	}()

	tmpDir := t.TempDir()
	os.Setenv("CHORUS_HOME", tmpDir)
	defer os.Unsetenv("CHORUS_HOME")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.Name != "gpt-5" {
		t.Errorf("expected model gpt-5 from env, got %s", cfg.Model.Name)
	}
	if cfg.Slack.BotToken != "xoxb-test" {
		t.Errorf("expected slack bot token from env, got %s", cfg.Slack.BotToken)
	}
}

func TestIncludeMerge(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	secretsFile := filepath.Join(configDir, "secrets.json")
	if err := os.WriteFile(secretsFile, []byte(`{"slack": {"botToken": "xoxb-included"}}`), 0600); err != nil {
		t.Fatal(err)
	}
	configFile := filepath.Join(configDir, ConfigFile)
	mainJSON := `{"$include": "secrets.json", "model": {"name": "included-model"}}`
	if err := os.WriteFile(configFile, []byte(mainJSON), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CHORUS_HOME", tmpDir)
	defer os.Unsetenv("CHORUS_HOME")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-included" {
		t.Errorf("expected botToken from included file, got %s", cfg.Slack.BotToken)
	}
	if cfg.Model.Name != "included-model" {
		t.Errorf("expected model from main file to win, got %s", cfg.Model.Name)
	}
}
