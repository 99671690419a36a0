package logger

// Console implements a console based logger.
type Console struct {
	Enabled          bool `mapstructure:"enabled"`
	UseConsoleWriter bool `mapstructure:"useConsoleWriter"`
}

// LogFile implements a file based logger split by level.
type LogFile struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`

	ErrorLog        string `mapstructure:"error"`
	ErrorMaxSize    int    `mapstructure:"errorMaxSize"`
	ErrorMaxBackups int    `mapstructure:"errorMaxBackups"`
	ErrorMaxAge     int    `mapstructure:"errorMaxAge"`

	InfoLog        string `mapstructure:"info"`
	InfoMaxSize    int    `mapstructure:"infoMaxSize"`
	InfoMaxBackups int    `mapstructure:"infoMaxBackups"`
	InfoMaxAge     int    `mapstructure:"infoMaxAge"`

	TraceLog        string `mapstructure:"trace"`
	TraceMaxSize    int    `mapstructure:"traceMaxSize"`
	TraceMaxBackups int    `mapstructure:"traceMaxBackups"`
	TraceMaxAge     int    `mapstructure:"traceMaxAge"`

	WarnLog        string `mapstructure:"warn"`
	WarnMaxSize    int    `mapstructure:"warnMaxSize"`
	WarnMaxBackups int    `mapstructure:"warnMaxBackups"`
	WarnMaxAge     int    `mapstructure:"warnMaxAge"`
}

// Log implements the logger config.
type Log struct {
	LogLevel     string `mapstructure:"level"` // trace, debug, info, warn, error.
	ReportCaller bool   `mapstructure:"reportCaller"`

	AppName     string `mapstructure:"appName"`
	ServiceName string `mapstructure:"serviceName"`

	// Console used mainly for docker and dev.
	Console Console `mapstructure:"console"`

	// File enables rolling log files for non container deployments.
	File LogFile `mapstructure:"file"`
}
