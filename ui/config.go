package ui

// Config contains TUI-specific configuration.
type Config struct {
	APIURL      string  `env:"API_URL"`
	Voice       string  `env:"VOICE"`
	Speed       float64 `env:"SPEED"`
	Format      string  `env:"FORMAT"`
	DownloadDir string  `env:"DOWNLOAD_DIR"`
	SamplesDir  string  `env:"SAMPLES_DIR"`
	MinBuffer   int     `env:"MIN_BUFFER"`
	EnableMouse bool    `env:"MOUSE"`

	// Initial composer content and, when it was loaded from a file,
	// the path to watch for changes.
	Text       string
	SourcePath string
}
