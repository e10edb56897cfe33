package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lectern/internal/config"
)

func clearSecretEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ELEVENLABS_API_KEY",
		"OPENAI_API_KEY",
		"LECTERN_CONTENT_TOKEN",
		"LECTERN_STORAGE_ACCESS_KEY",
		"LECTERN_STORAGE_SECRET_KEY",
		"LECTERN_API_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearSecretEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "lectern")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.QueueDBPath() != filepath.Join(wantData, "lectern.db") {
		t.Fatalf("unexpected queue path: %q", cfg.QueueDBPath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Speech.DefaultProvider != config.ProviderElevenLabs {
		t.Fatalf("unexpected default provider: %q", cfg.Speech.DefaultProvider)
	}
	if cfg.Speech.DownloadAttempts != 3 {
		t.Fatalf("expected 3 download attempts, got %d", cfg.Speech.DownloadAttempts)
	}
	if cfg.Workflow.HeartbeatInterval != config.Default().Workflow.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Summary.Enabled {
		t.Fatal("expected summary disabled by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	contents := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[content]
base_url = "http://content.local/"

[storage]
endpoint = "https://minio.local:9000"

[speech]
default_provider = "OpenAI"
concurrency = 2

[openai]
api_key = "sk-file"

[workflow]
worker_count = 8

[notifications]
ntfy_topic = " https://ntfy.local/lectern "
request_timeout = 0

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Content.BaseURL != "http://content.local" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Content.BaseURL)
	}
	if cfg.Storage.Endpoint != "minio.local:9000" {
		t.Fatalf("expected scheme stripped from endpoint, got %q", cfg.Storage.Endpoint)
	}
	if cfg.Speech.DefaultProvider != config.ProviderOpenAI {
		t.Fatalf("expected provider normalized, got %q", cfg.Speech.DefaultProvider)
	}
	if cfg.Speech.Concurrency != 2 || cfg.Workflow.WorkerCount != 8 {
		t.Fatalf("unexpected concurrency settings: %+v %+v", cfg.Speech, cfg.Workflow)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Summary.APIKey != "sk-file" {
		t.Fatalf("expected summary key to fall back to openai key, got %q", cfg.Summary.APIKey)
	}
	if cfg.ProviderMaxChars("openai") != 4096 || cfg.ProviderMaxChars("elevenlabs") != 5000 {
		t.Fatalf("unexpected provider limits")
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.local/lectern" || cfg.Notifications.RequestTimeout != 10 {
		t.Fatalf("unexpected notifications config: %+v", cfg.Notifications)
	}
}

func TestEnvVarsFillMissingSecrets(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ELEVENLABS_API_KEY", "el-env")
	t.Setenv("LECTERN_STORAGE_ACCESS_KEY", "access-env")
	t.Setenv("LECTERN_API_TOKEN", "api-env")

	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[elevenlabs]
api_key = "el-file"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ElevenLabs.APIKey != "el-file" {
		t.Fatalf("expected file value to win, got %q", cfg.ElevenLabs.APIKey)
	}
	if cfg.Storage.AccessKey != "access-env" {
		t.Fatalf("expected env access key, got %q", cfg.Storage.AccessKey)
	}
	if cfg.Paths.APIToken != "api-env" {
		t.Fatalf("expected env api token, got %q", cfg.Paths.APIToken)
	}
}

func TestEnvFileLoadsSecrets(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv("HOME", t.TempDir())
	const key = "LECTERN_TEST_ENVFILE_TOKEN"
	os.Unsetenv("LECTERN_CONTENT_TOKEN")
	t.Cleanup(func() {
		os.Unsetenv("LECTERN_CONTENT_TOKEN")
		os.Unsetenv(key)
	})

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("LECTERN_CONTENT_TOKEN=from-dotenv\n"+key+"=1\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[paths]\nenv_file = \""+envPath+"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Content.Token != "from-dotenv" {
		t.Fatalf("expected token from env file, got %q", cfg.Content.Token)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "lectern") {
		t.Fatalf("expected data dir to contain lectern, got %q", cfg.Paths.DataDir)
	}
	if cfg.Speech.DefaultProvider != config.ProviderElevenLabs {
		t.Fatalf("unexpected sample provider %q", cfg.Speech.DefaultProvider)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg = config.Default()
	cfg.Workflow.WorkerCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero workers")
	}

	cfg = config.Default()
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}

	cfg = config.Default()
	cfg.Speech.DefaultProvider = "polly"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfg = config.Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestMissingCredentials(t *testing.T) {
	cfg := config.Default()
	missing := cfg.MissingCredentials(config.ProviderElevenLabs)
	if len(missing) != 4 {
		t.Fatalf("expected 4 missing settings, got %v", missing)
	}

	cfg.ElevenLabs.APIKey = "k"
	cfg.Content.BaseURL = "http://content"
	cfg.Storage.Endpoint = "minio:9000"
	cfg.Storage.AccessKey = "a"
	cfg.Storage.SecretKey = "s"
	if missing := cfg.MissingCredentials(config.ProviderElevenLabs); len(missing) != 0 {
		t.Fatalf("expected no missing settings, got %v", missing)
	}
	if missing := cfg.MissingCredentials(config.ProviderOpenAI); len(missing) != 1 {
		t.Fatalf("expected openai key to be missing, got %v", missing)
	}
}

func TestEncodeRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.ElevenLabs.APIKey = "super-secret"
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Fatalf("expected secret redacted: %s", data)
	}
	if cfg.ElevenLabs.APIKey != "super-secret" {
		t.Fatal("Encode must not mutate the receiver")
	}
}
