package config

const (
	defaultDataDir    = "~/.local/share/grainbridge/data"
	defaultSamplesDir = "~/.local/share/grainbridge/samples"
	defaultLogDir     = "~/.local/share/grainbridge/logs"
	defaultCaptureDir = "~/.local/share/grainbridge/captures"
	defaultPresetDB   = "~/.local/share/grainbridge/presets.db"

	defaultEngineBinary      = "grainsynth"
	defaultEngineStopTimeout = 5

	defaultRestartMaxAttempts = 5
	defaultRestartBaseDelayMS = 1000
	defaultRestartMaxDelayMS  = 30000
	defaultRestartResetAfterS = 120

	defaultCommandHost          = "127.0.0.1"
	defaultCommandPort          = 57120
	defaultTelemetryHost        = "127.0.0.1"
	defaultTelemetryPort        = 57121
	defaultChannelPrefix        = "/ch"
	defaultChannelCount         = 16
	defaultMaxMessagesPerSecond = 60
	defaultHelloAddress         = "/gs/hello"
	defaultScanAddress          = "/gs/scan"
	defaultBindTimeoutMS        = 2000

	defaultTelemetryRingSize = 12000
	defaultReadBufferKB      = 2048

	defaultGatewayBind      = "127.0.0.1:8765"
	defaultClientSendBuffer = 64

	defaultNotifyRequestTimeout = 10

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultLogBufferSize    = 512
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			SamplesDir: defaultSamplesDir,
			LogDir:     defaultLogDir,
			CaptureDir: defaultCaptureDir,
			PresetDB:   defaultPresetDB,
		},
		Engine: Engine{
			Binary:      defaultEngineBinary,
			Autostart:   true,
			StopTimeout: defaultEngineStopTimeout,
			Restart: EngineRestart{
				Enabled:           true,
				MaxAttempts:       defaultRestartMaxAttempts,
				BaseDelayMS:       defaultRestartBaseDelayMS,
				MaxDelayMS:        defaultRestartMaxDelayMS,
				ResetAfterSeconds: defaultRestartResetAfterS,
			},
		},
		OSC: OSC{
			CommandHost:          defaultCommandHost,
			CommandPort:          defaultCommandPort,
			TelemetryHost:        defaultTelemetryHost,
			TelemetryPort:        defaultTelemetryPort,
			ChannelPrefix:        defaultChannelPrefix,
			ChannelCount:         defaultChannelCount,
			MaxMessagesPerSecond: defaultMaxMessagesPerSecond,
			HelloAddress:         defaultHelloAddress,
			ScanAddress:          defaultScanAddress,
			BindTimeoutMS:        defaultBindTimeoutMS,
		},
		Telemetry: Telemetry{
			RingSize:     defaultTelemetryRingSize,
			ReadBufferKB: defaultReadBufferKB,
		},
		Gateway: Gateway{
			Bind:             defaultGatewayBind,
			ClientSendBuffer: defaultClientSendBuffer,
		},
		Presets: Presets{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			EngineStart:    true,
			EngineCrash:    true,
			EngineGiveUp:   true,
			Errors:         true,
		},
		DeviceMonitor: DeviceMonitor{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			BufferSize:    defaultLogBufferSize,
		},
	}
}
