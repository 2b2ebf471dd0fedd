package config

import (
	"os"
	"strconv"
)

// FromEnv reads configuration overrides from environment variables. Unset or
// malformed variables leave the corresponding field zero so that later merging
// falls through to the defaults.
func FromEnv() Config {
	return Config{
		APIURL:             os.Getenv("DIGIREADY_API_URL"),
		PortalURL:          os.Getenv("DIGIREADY_PORTAL_URL"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		TokenFile:          os.Getenv("DIGIREADY_TOKEN_FILE"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		LogFormat:          os.Getenv("LOG_FORMAT"),
		Expiry:             os.Getenv("DIGIREADY_EXPIRY"),
		PollSeconds:        envInt("DIGIREADY_POLL_SECONDS"),
		TimerSyncSeconds:   envInt("DIGIREADY_TIMER_SYNC_SECONDS"),
		HTTPTimeoutSeconds: envInt("DIGIREADY_HTTP_TIMEOUT_SECONDS"),
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Resolve layers a config file (optional) over the environment over the
// built-in defaults and validates the result.
func Resolve(path string) (*Config, error) {
	env := FromEnv()
	base := env.MergeWithDefaults(Defaults())

	file := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	merged := file.MergeWithDefaults(base)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}
