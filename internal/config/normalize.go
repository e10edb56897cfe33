package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.loadEnvFile(); err != nil {
		return err
	}
	c.Paths.APIToken = envFallback(c.Paths.APIToken, "LECTERN_API_TOKEN")
	c.normalizeContent()
	c.normalizeStorage()
	c.normalizeSpeech()
	c.normalizeProviders()
	c.normalizeSummary()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.EnvFile, err = expandPath(c.Paths.EnvFile); err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

// loadEnvFile imports provider secrets from a dotenv file. Variables already
// present in the process environment win.
func (c *Config) loadEnvFile() error {
	if c.Paths.EnvFile == "" {
		return nil
	}
	if _, err := os.Stat(c.Paths.EnvFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("paths.env_file: %w", err)
	}
	if err := godotenv.Load(c.Paths.EnvFile); err != nil {
		return fmt.Errorf("load env file %s: %w", c.Paths.EnvFile, err)
	}
	return nil
}

func (c *Config) normalizeContent() {
	c.Content.BaseURL = strings.TrimRight(strings.TrimSpace(c.Content.BaseURL), "/")
	c.Content.Token = envFallback(c.Content.Token, "LECTERN_CONTENT_TOKEN")
	if c.Content.TimeoutSeconds <= 0 {
		c.Content.TimeoutSeconds = defaultContentTimeoutSeconds
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Endpoint = strings.TrimPrefix(c.Storage.Endpoint, "https://")
	c.Storage.Endpoint = strings.TrimPrefix(c.Storage.Endpoint, "http://")
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultStorageBucket
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.AccessKey = envFallback(c.Storage.AccessKey, "LECTERN_STORAGE_ACCESS_KEY")
	c.Storage.SecretKey = envFallback(c.Storage.SecretKey, "LECTERN_STORAGE_SECRET_KEY")
}

func (c *Config) normalizeSpeech() {
	c.Speech.DefaultProvider = normalizeProvider(c.Speech.DefaultProvider)
	if c.Speech.DefaultProvider == "" {
		c.Speech.DefaultProvider = ProviderElevenLabs
	}
	c.Speech.DefaultVoiceID = strings.TrimSpace(c.Speech.DefaultVoiceID)
	if c.Speech.Concurrency <= 0 {
		c.Speech.Concurrency = defaultSpeechConcurrency
	}
	if c.Speech.DownloadAttempts <= 0 {
		c.Speech.DownloadAttempts = defaultSpeechDownloadAttempts
	}
}

func (c *Config) normalizeProviders() {
	c.ElevenLabs.APIKey = envFallback(c.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	c.ElevenLabs.BaseURL = strings.TrimRight(strings.TrimSpace(c.ElevenLabs.BaseURL), "/")
	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = defaultElevenLabsBaseURL
	}
	c.ElevenLabs.ModelID = strings.TrimSpace(c.ElevenLabs.ModelID)
	if c.ElevenLabs.ModelID == "" {
		c.ElevenLabs.ModelID = defaultElevenLabsModel
	}
	if c.ElevenLabs.MaxChars <= 0 {
		c.ElevenLabs.MaxChars = defaultElevenLabsMaxChars
	}
	if c.ElevenLabs.TimeoutSeconds <= 0 {
		c.ElevenLabs.TimeoutSeconds = defaultProviderTimeout
	}

	c.OpenAI.APIKey = envFallback(c.OpenAI.APIKey, "OPENAI_API_KEY")
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	c.OpenAI.Model = strings.TrimSpace(c.OpenAI.Model)
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaultOpenAIModel
	}
	if c.OpenAI.MaxChars <= 0 {
		c.OpenAI.MaxChars = defaultOpenAIMaxChars
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = defaultProviderTimeout
	}
}

func (c *Config) normalizeSummary() {
	c.Summary.APIKey = strings.TrimSpace(c.Summary.APIKey)
	if c.Summary.APIKey == "" {
		c.Summary.APIKey = c.OpenAI.APIKey
	}
	c.Summary.BaseURL = strings.TrimSpace(c.Summary.BaseURL)
	if c.Summary.BaseURL == "" {
		c.Summary.BaseURL = defaultSummaryBaseURL
	}
	c.Summary.Model = strings.TrimSpace(c.Summary.Model)
	if c.Summary.Model == "" {
		c.Summary.Model = defaultSummaryModel
	}
	c.Summary.EmbeddingURL = strings.TrimSpace(c.Summary.EmbeddingURL)
	if c.Summary.EmbeddingURL == "" {
		c.Summary.EmbeddingURL = defaultSummaryEmbeddingURL
	}
	c.Summary.EmbeddingModel = strings.TrimSpace(c.Summary.EmbeddingModel)
	if c.Summary.EmbeddingModel == "" {
		c.Summary.EmbeddingModel = defaultSummaryEmbeddingModel
	}
	if c.Summary.MaxInputChars <= 0 {
		c.Summary.MaxInputChars = defaultSummaryMaxInputChars
	}
	if c.Summary.TimeoutSeconds <= 0 {
		c.Summary.TimeoutSeconds = defaultSummaryTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
