package config

const (
	defaultDataDir    = "~/.local/share/cratedig"
	defaultLogDir     = "~/.local/share/cratedig/logs"
	defaultSocketPath = "~/.local/share/cratedig/cratedigd.sock"

	defaultDiscogsBaseURL        = "https://api.discogs.com"
	defaultDiscogsUserAgent      = "cratedig/0.1 (+https://github.com/cratedig/cratedig)"
	defaultDiscogsRequestsPerMin = 55

	defaultMusicBrainzBaseURL        = "https://musicbrainz.org/ws/2"
	defaultMusicBrainzAppName        = "cratedig"
	defaultMusicBrainzAppVersion     = "0.1"
	defaultMusicBrainzContact        = "https://github.com/cratedig/cratedig"
	defaultMusicBrainzRequestsPerMin = 55

	defaultRequestTimeout  = 15
	defaultResultsPerQuery = 5

	defaultAutoAcceptScore     = 85
	defaultAutoAcceptMargin    = 10
	defaultHighConfidenceScore = 95
	defaultMaxCandidates       = 5

	defaultWorkersPerProvider = 2
	defaultMaxAttempts        = 3
	defaultRetryBackoffSecs   = 5
	defaultJobRetentionSecs   = 30
	defaultQueueDepth         = 64

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Discogs: Discogs{
			BaseURL:         defaultDiscogsBaseURL,
			UserAgent:       defaultDiscogsUserAgent,
			RequestsPerMin:  defaultDiscogsRequestsPerMin,
			RequestTimeout:  defaultRequestTimeout,
			ResultsPerQuery: defaultResultsPerQuery,
		},
		MusicBrainz: MusicBrainz{
			BaseURL:         defaultMusicBrainzBaseURL,
			AppName:         defaultMusicBrainzAppName,
			AppVersion:      defaultMusicBrainzAppVersion,
			Contact:         defaultMusicBrainzContact,
			RequestsPerMin:  defaultMusicBrainzRequestsPerMin,
			RequestTimeout:  defaultRequestTimeout,
			ResultsPerQuery: defaultResultsPerQuery,
		},
		Matching: Matching{
			AutoAcceptScore:     defaultAutoAcceptScore,
			AutoAcceptMargin:    defaultAutoAcceptMargin,
			HighConfidenceScore: defaultHighConfidenceScore,
			MaxCandidates:       defaultMaxCandidates,
		},
		Enrichment: Enrichment{
			WorkersPerProvider: defaultWorkersPerProvider,
			MaxAttempts:        defaultMaxAttempts,
			RetryBackoffSecs:   defaultRetryBackoffSecs,
			JobRetentionSecs:   defaultJobRetentionSecs,
			QueueDepth:         defaultQueueDepth,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			ReviewNeeded:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
