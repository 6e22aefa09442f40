package log

const (
	DefaultPattern = "%time [%level] %caller: %msg %field\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
	DefaultLevel   = "info"

	FormatPattern  = "pattern"
	FormatPrefixed = "prefixed"
)

// Config configures the logger.
type Config struct {
	Level        string          `mapstructure:"level"`
	Format       string          `mapstructure:"format"` // pattern | prefixed
	Pattern      string          `mapstructure:"pattern"`
	Time         string          `mapstructure:"time"`
	ReportCaller bool            `mapstructure:"report_caller"`
	Quiet        bool            `mapstructure:"quiet"` // no stderr output
	File         FileAppenderOpt `mapstructure:"file"`
}

// FileAppenderOpt configures the rotating file output. An empty Filename
// disables it.
type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Format == "" {
		c.Format = FormatPattern
	}
	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if c.Time == "" {
		c.Time = DefaultTime
	}
}
