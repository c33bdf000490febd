package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the user override file NightWatch looks for under the
// directory passed to Initialize.
const ConfigFileName = "nightwatch.yaml"

// Initialize loads NightWatch's configuration: start from Defaults(),
// decode configDir/nightwatch.yaml over it if present (environment
// variables expanded first), so every key present in the file — an
// explicit 0 or false included — replaces the default and absent keys
// keep it; then overlay credentials read from the process environment
// and validate.
func Initialize(configDir string) (*Config, error) {
	cfg := Defaults()

	userPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(userPath)
	switch {
	case err == nil:
		expanded := ExpandEnv(data)
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, &LoadError{File: userPath, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
		}
	case os.IsNotExist(err):
		// No override file — defaults stand. Not an error: NightWatch
		// runs fine on built-in defaults plus environment credentials.
	default:
		return nil, &LoadError{File: userPath, Err: err}
	}

	cfg.Credentials = loadCredentials()

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return cfg, nil
}

func loadCredentials() Credentials {
	return Credentials{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		GitHubRepo:      os.Getenv("GITHUB_REPO"),
		NewRelicAPIKey:  os.Getenv("NEW_RELIC_API_KEY"),
		NewRelicAccount: os.Getenv("NEW_RELIC_ACCOUNT_ID"),
		NewRelicAppName: os.Getenv("NEW_RELIC_APP_NAME"),
		SlackBotToken:   os.Getenv("SLACK_BOT_TOKEN"),
		SlackNotifyUser: os.Getenv("SLACK_NOTIFY_USER"),
	}
}
