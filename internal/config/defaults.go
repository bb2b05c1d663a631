package config

const (
	defaultShmDir            = "/dev/shm"
	defaultShmName           = "cmdlauncher_queue"
	defaultRequestPipe       = "/tmp/request_pipe"
	defaultOutputPipePrefix  = "/tmp/output_pipe_"
	defaultErrorPipePrefix   = "/tmp/error_pipe_"
	defaultSubmitLockPath    = "/tmp/cmdlauncher_submit.lock"
	defaultStateDir          = "~/.local/share/cmdlauncher"
	defaultLogDir            = "~/.local/share/cmdlauncher/logs"
	defaultShell             = "sh"
	defaultKillGraceSeconds  = 5
	defaultOutputLog         = "output.txt"
	defaultErrorLog          = "error.txt"
	defaultSettleMillis      = 300
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultJournalEnabled    = true
	defaultReportSpawnErrors = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		IPC: IPC{
			ShmDir:           defaultShmDir,
			ShmName:          defaultShmName,
			RequestPipe:      defaultRequestPipe,
			OutputPipePrefix: defaultOutputPipePrefix,
			ErrorPipePrefix:  defaultErrorPipePrefix,
			SubmitLockPath:   defaultSubmitLockPath,
		},
		Daemon: Daemon{
			StateDir:       defaultStateDir,
			JournalEnabled: defaultJournalEnabled,
		},
		Executor: Executor{
			Shell:             defaultShell,
			KillGraceSeconds:  defaultKillGraceSeconds,
			ReportSpawnErrors: defaultReportSpawnErrors,
		},
		Client: Client{
			OutputLog:    defaultOutputLog,
			ErrorLog:     defaultErrorLog,
			SettleMillis: defaultSettleMillis,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			Dir:           defaultLogDir,
		},
	}
}
