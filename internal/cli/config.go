package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	keyServer         = "server"
	keyUser           = "user"
	keyPollInterval   = "poll_interval"
	keyRequestTimeout = "request_timeout"

	minPollInterval = time.Second
	maxPollInterval = time.Minute
)

// Settings is the resolved client configuration. Flags override the
// environment (CHECKLIST_*), which overrides the config file.
type Settings struct {
	Server         string
	User           string
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyServer, "http://localhost:8787")
	v.SetDefault(keyUser, "Anonymous")
	v.SetDefault(keyPollInterval, "5s")
	v.SetDefault(keyRequestTimeout, "5s")
}

func loadSettings(v *viper.Viper, cfgFile string) (Settings, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/checklist")
		// Read config file if it exists
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("CHECKLIST")
	v.AutomaticEnv()

	s := Settings{
		Server:         strings.TrimSpace(v.GetString(keyServer)),
		User:           strings.TrimSpace(v.GetString(keyUser)),
		PollInterval:   v.GetDuration(keyPollInterval),
		RequestTimeout: v.GetDuration(keyRequestTimeout),
	}
	if s.Server == "" {
		return Settings{}, fmt.Errorf("server address is required")
	}
	if s.PollInterval < minPollInterval {
		s.PollInterval = minPollInterval
	}
	if s.PollInterval > maxPollInterval {
		s.PollInterval = maxPollInterval
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 5 * time.Second
	}
	return s, nil
}
