package config

const (
	defaultDataDir              = "~/.local/share/distill"
	defaultLogDir               = "~/.local/share/distill/logs"
	defaultToolBinary           = "claude"
	defaultToolTimeoutSeconds   = 300
	defaultVerifyTimeoutSeconds = 30
	defaultAnalysisBackend      = "claude-cli"
	defaultAnalysisVersion      = "v1"
	defaultBatchSize            = 8
	defaultSchemaVersion        = 1
	defaultMaxPayloadBytes      = 500 * 1024
	defaultStaleClaimMinutes    = 10
	defaultReaperIntervalMin    = 5
	defaultRetentionDays        = 30
	defaultQueuePollInterval    = 5
	defaultErrorRetryInterval   = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultNtfyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Tool: Tool{
			Binary:               defaultToolBinary,
			TimeoutSeconds:       defaultToolTimeoutSeconds,
			VerifyTimeoutSeconds: defaultVerifyTimeoutSeconds,
			NoSession:            true,
		},
		Analysis: Analysis{
			Backend:       defaultAnalysisBackend,
			Version:       defaultAnalysisVersion,
			BatchSize:     defaultBatchSize,
			SchemaVersion: defaultSchemaVersion,
		},
		Payload: Payload{
			MaxBytes: defaultMaxPayloadBytes,
			// Learning extraction needs surrounding dialogue; dedupe needs
			// almost none. Workflow detection sits in between.
			Workflow: Caps{MaxMessages: 30, MessageChars: 1200},
			Learning: Caps{MaxMessages: 60, MessageChars: 2400},
			Summary:  Caps{MaxMessages: 2, MessageChars: 1600},
			Dedupe:   Caps{MaxMessages: 10, MessageChars: 400},
		},
		Reaper: Reaper{
			StaleClaimMinutes: defaultStaleClaimMinutes,
			IntervalMinutes:   defaultReaperIntervalMin,
			RetentionDays:     defaultRetentionDays,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
	}
}
