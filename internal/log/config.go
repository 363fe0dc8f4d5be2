package log

// LoggerConfig drives Init. Format selects between logrus's built-in
// JSON formatter ("json") and the pattern-based text formatter below
// ("text", using Pattern/Time); File is nil to log to stdout only.
type LoggerConfig struct {
	Level   string
	Format  string
	Pattern string
	Time    string
	File    *FileAppenderOpt
}

// DefaultLoggerConfig returns the ambient defaults matching
// config.LogConfig's own zero-config behavior.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:   "info",
		Format:  "json",
		Pattern: "%time [%level] %caller %msg %field",
		Time:    "2006-01-02T15:04:05.000Z07:00",
	}
}
