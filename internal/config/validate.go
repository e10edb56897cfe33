package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is structurally usable. Credential
// presence is checked by preflight so that read-only commands work without
// provider secrets.
func (c *Config) Validate() error {
	if err := c.validateSpeech(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSpeech() error {
	if !IsKnownProvider(c.Speech.DefaultProvider) {
		return fmt.Errorf("speech.default_provider %q is not supported (use %s or %s)", c.Speech.DefaultProvider, ProviderElevenLabs, ProviderOpenAI)
	}
	return ensurePositiveMap(map[string]int{
		"speech.concurrency":       c.Speech.Concurrency,
		"speech.download_attempts": c.Speech.DownloadAttempts,
		"elevenlabs.max_chars":     c.ElevenLabs.MaxChars,
		"openai.max_chars":         c.OpenAI.MaxChars,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":         c.Workflow.WorkerCount,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
}

// IsKnownProvider reports whether name is a supported speech provider.
func IsKnownProvider(name string) bool {
	switch normalizeProvider(name) {
	case ProviderElevenLabs, ProviderOpenAI:
		return true
	default:
		return false
	}
}

// MissingCredentials lists configuration problems that prevent the daemon
// from running jobs for the given provider.
func (c *Config) MissingCredentials(provider string) []string {
	var missing []string
	switch normalizeProvider(provider) {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			missing = append(missing, "openai.api_key (or OPENAI_API_KEY)")
		}
	case ProviderElevenLabs:
		if c.ElevenLabs.APIKey == "" {
			missing = append(missing, "elevenlabs.api_key (or ELEVENLABS_API_KEY)")
		}
	}
	if strings.TrimSpace(c.Content.BaseURL) == "" {
		missing = append(missing, "content.base_url")
	}
	if c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		missing = append(missing, "storage.access_key/secret_key (or LECTERN_STORAGE_ACCESS_KEY/LECTERN_STORAGE_SECRET_KEY)")
	}
	if c.Summary.Enabled && c.Summary.APIKey == "" {
		missing = append(missing, "summary.api_key (or OPENAI_API_KEY)")
	}
	return missing
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
