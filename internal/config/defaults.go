package config

const (
	defaultConfigPath = "~/.config/lectern/config.toml"
	defaultDataDir    = "~/.local/share/lectern"
	defaultLogDir     = "~/.local/share/lectern/logs"
	defaultEnvFile    = "~/.config/lectern/.env"
	defaultAPIBind    = "127.0.0.1:7491"

	defaultContentTimeoutSeconds = 30

	defaultStorageBucket = "lectern-audio"
	defaultStorageRegion = "us-east-1"

	defaultSpeechConcurrency      = 4
	defaultSpeechDownloadAttempts = 3

	defaultElevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	defaultElevenLabsModel    = "eleven_multilingual_v2"
	defaultElevenLabsMaxChars = 5000
	defaultOpenAIBaseURL      = "https://api.openai.com/v1"
	defaultOpenAIModel        = "tts-1"
	defaultOpenAIMaxChars     = 4096
	defaultProviderTimeout    = 120

	defaultSummaryBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultSummaryModel          = "gpt-4o-mini"
	defaultSummaryEmbeddingURL   = "https://api.openai.com/v1/embeddings"
	defaultSummaryEmbeddingModel = "text-embedding-3-small"
	defaultSummaryMaxInputChars  = 24000
	defaultSummaryTimeout        = 60

	defaultWorkerCount               = 4
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120

	defaultNtfyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Provider names accepted by speech.default_provider and StartRequest.Provider.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			EnvFile: defaultEnvFile,
			APIBind: defaultAPIBind,
		},
		Content: Content{
			TimeoutSeconds: defaultContentTimeoutSeconds,
		},
		Storage: Storage{
			Bucket: defaultStorageBucket,
			Region: defaultStorageRegion,
			UseSSL: true,
		},
		Speech: Speech{
			DefaultProvider:  ProviderElevenLabs,
			Concurrency:      defaultSpeechConcurrency,
			DownloadAttempts: defaultSpeechDownloadAttempts,
		},
		ElevenLabs: ElevenLabs{
			BaseURL:        defaultElevenLabsBaseURL,
			ModelID:        defaultElevenLabsModel,
			MaxChars:       defaultElevenLabsMaxChars,
			TimeoutSeconds: defaultProviderTimeout,
		},
		OpenAI: OpenAI{
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultOpenAIModel,
			MaxChars:       defaultOpenAIMaxChars,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Summary: Summary{
			BaseURL:        defaultSummaryBaseURL,
			Model:          defaultSummaryModel,
			EmbeddingURL:   defaultSummaryEmbeddingURL,
			EmbeddingModel: defaultSummaryEmbeddingModel,
			MaxInputChars:  defaultSummaryMaxInputChars,
			TimeoutSeconds: defaultSummaryTimeout,
		},
		Workflow: Workflow{
			WorkerCount:        defaultWorkerCount,
			QueuePollInterval:  2,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
