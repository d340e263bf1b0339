package convert

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the layered configuration recognised by the core, per §6:
// defaults, then an optional config file, then environment variables,
// following the same precedence the headless-EHR reference repo's
// internal/config.Load uses.
type Config struct {
	SupportedMessages           []string
	BasePathResource            string
	AdditionalResourcesLocation string
	DefaultHL7Version           string
}

// SupportsAll reports whether SupportedMessages names every discovered
// template via the literal "*".
func (c Config) SupportsAll() bool {
	return len(c.SupportedMessages) == 1 && c.SupportedMessages[0] == "*"
}

// Supports reports whether messageType (the derived messageCode_triggerEvent
// key) is enabled by supported.hl7.messages: the "*" wildcard enables every
// message type, otherwise messageType must appear literally in the list.
func (c Config) Supports(messageType string) bool {
	if c.SupportsAll() {
		return true
	}
	for _, m := range c.SupportedMessages {
		if m == messageType {
			return true
		}
	}
	return false
}

// LoadConfig reads the four options named in §6 from an optional config
// file plus environment variable overrides (e.g. DEFAULT_HL7_VERSION for
// default.hl7.version).
func LoadConfig(configFile string) (Config, error) {
	v := viper.New()
	v.SetDefault("supported.hl7.messages", []string{"*"})
	v.SetDefault("base.path.resource", "")
	v.SetDefault("additional.resources.location", "")
	v.SetDefault("default.hl7.version", "2.6")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	cfg := Config{
		SupportedMessages:           v.GetStringSlice("supported.hl7.messages"),
		BasePathResource:            v.GetString("base.path.resource"),
		AdditionalResourcesLocation: v.GetString("additional.resources.location"),
		DefaultHL7Version:           v.GetString("default.hl7.version"),
	}
	return cfg, nil
}
