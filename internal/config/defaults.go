package config

const (
	defaultDataDir         = "~/.local/share/recap"
	defaultLogDir          = "~/.local/share/recap/logs"
	defaultStoreBackend    = "sqlite"
	defaultFeedBaseURL     = "https://www.youtube.com/feeds/videos.xml"
	defaultWatchBaseURL    = "https://www.youtube.com/watch"
	defaultCaptionsBaseURL = "https://www.youtube.com/api/timedtext"
	defaultFetchUserAgent  = "Recap/0.1"
	defaultFetchTimeout    = 5 // minutes; bulk fetch is expected to be slow
	defaultFetchLimit      = 50
	defaultCaptionLanguage = "en"
	defaultProvider        = "openrouter"
	defaultProviderModel   = "google/gemini-3-flash-preview"
	defaultProviderTimeout = 60
	defaultMaxAttempts     = 3
	defaultBulkChunkSize   = 10
	defaultCustomChunkSize = 5
	defaultCooldownSeconds = 1
	defaultContextBudget   = 48000
	defaultDetailLevel     = "detailed"
	defaultGuestDailyLimit = 3
	defaultGuestTTLHours   = 48
	defaultNotifyTimeout   = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Fetch: Fetch{
			FeedBaseURL:     defaultFeedBaseURL,
			WatchBaseURL:    defaultWatchBaseURL,
			CaptionsBaseURL: defaultCaptionsBaseURL,
			UserAgent:       defaultFetchUserAgent,
			TimeoutMinutes:  defaultFetchTimeout,
			DefaultLimit:    defaultFetchLimit,
			CaptionLanguage: defaultCaptionLanguage,
		},
		Enrichment: Enrichment{
			Provider:        defaultProvider,
			Model:           defaultProviderModel,
			TimeoutSeconds:  defaultProviderTimeout,
			MaxAttempts:     defaultMaxAttempts,
			BulkChunkSize:   defaultBulkChunkSize,
			CustomChunkSize: defaultCustomChunkSize,
			CooldownSeconds: defaultCooldownSeconds,
			ContextBudget:   defaultContextBudget,
			DetailLevel:     defaultDetailLevel,
		},
		Plans: map[string]Plan{
			"free": {Period: "daily", Limit: 3},
			"solo": {Period: "monthly", Limit: 60},
			"pro":  {Period: "monthly", Limit: 300},
		},
		Guest: Guest{
			DailyLimit: defaultGuestDailyLimit,
			TTLHours:   defaultGuestTTLHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
