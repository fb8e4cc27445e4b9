package config

const (
	defaultStateDir  = "~/.local/share/recast"
	defaultWorkDir   = "~/.local/share/recast/work"
	defaultOutputDir = "~/.local/share/recast/output"
	defaultLogDir    = "~/.local/share/recast/logs"

	defaultAPIBind   = "127.0.0.1:7642"
	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultMaxConcurrentJobs   = 2
	defaultStepRetries         = 2
	defaultRetryBackoffSeconds = 5
	defaultPointOfNoRecovery   = "upload"

	defaultScriptGateThreshold = 90.0
	defaultScriptGateAttempts  = 3
	defaultVoiceGateThreshold  = 80.0
	defaultVoiceGateAttempts   = 3
	defaultRenderGateThreshold = 0.7
	defaultRenderGateAttempts  = 2

	defaultProfilesDir    = "~/.config/recast/profiles"
	defaultProfile        = "default"
	defaultMaxCandidates  = 10
	defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"
	defaultUploadBaseURL  = "https://www.googleapis.com/upload/youtube/v3"
	defaultCategoryID     = "24"
	defaultPrivacyStatus  = "public"

	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultScriptLanguage = "am"
	defaultTargetMinutes  = 8

	defaultSpeechRegion       = "eastus"
	defaultSpeechLocale       = "am-ET"
	defaultSpeechVoice        = "am-ET-AmehaNeural"
	defaultSpeechRate         = "-5%"
	defaultSpeechPitch        = "-10%"
	defaultSpeechOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	defaultTargetLUFS         = -14.0

	defaultZThumbURL   = "http://127.0.0.1:8100"
	defaultZThumbSteps = 35
	defaultZThumbCFG   = 4.0
	defaultZThumbBatch = 4
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Pipeline: Pipeline{
			MaxConcurrentJobs:   defaultMaxConcurrentJobs,
			StepRetries:         defaultStepRetries,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			PointOfNoRecovery:   defaultPointOfNoRecovery,
		},
		Gates: Gates{
			Script: GateSettings{Threshold: defaultScriptGateThreshold, MaxAttempts: defaultScriptGateAttempts},
			Voice:  GateSettings{Threshold: defaultVoiceGateThreshold, MaxAttempts: defaultVoiceGateAttempts},
			Render: GateSettings{Threshold: defaultRenderGateThreshold, MaxAttempts: defaultRenderGateAttempts},
		},
		Steps: Steps{
			DiscoverTimeout:   120,
			IngestTimeout:     1800,
			ScriptTimeout:     300,
			VoiceTimeout:      600,
			RenderTimeout:     1800,
			ThumbnailTimeout:  300,
			UploadTimeout:     1800,
			DistributeTimeout: 120,
		},
		Discovery: Discovery{
			ProfilesDir:    defaultProfilesDir,
			DefaultProfile: defaultProfile,
			MaxCandidates:  defaultMaxCandidates,
		},
		YouTube: YouTube{
			BaseURL:        defaultYouTubeBaseURL,
			UploadBaseURL:  defaultUploadBaseURL,
			CategoryID:     defaultCategoryID,
			PrivacyStatus:  defaultPrivacyStatus,
			TimeoutSeconds: 60,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			Model:          defaultGeminiModel,
			Language:       defaultScriptLanguage,
			TargetMinutes:  defaultTargetMinutes,
			TimeoutSeconds: 120,
		},
		Speech: Speech{
			Region:         defaultSpeechRegion,
			Locale:         defaultSpeechLocale,
			Voice:          defaultSpeechVoice,
			Rate:           defaultSpeechRate,
			Pitch:          defaultSpeechPitch,
			OutputFormat:   defaultSpeechOutputFormat,
			TargetLUFS:     defaultTargetLUFS,
			TimeoutSeconds: 120,
		},
		ZThumb: ZThumb{
			URL:            defaultZThumbURL,
			Steps:          defaultZThumbSteps,
			CFG:            defaultZThumbCFG,
			Batch:          defaultZThumbBatch,
			TimeoutSeconds: 300,
		},
		Telegram: Telegram{
			TimeoutSeconds: 10,
		},
	}
}
