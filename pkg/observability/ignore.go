package observability

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// IgnorePattern is one entry in the ignore configuration.
type IgnorePattern struct {
	Pattern string `yaml:"pattern"`
	Match   string `yaml:"match"` // "contains" (default) | "exact" | "prefix"
}

type ignoreFile struct {
	Ignore []IgnorePattern `yaml:"ignore"`
}

// LoadIgnorePatterns loads the ignore configuration from path. A
// missing file yields an empty list rather than an error — ignore
// configuration is optional.
func LoadIgnorePatterns(path string, log *slog.Logger) []IgnorePattern {
	raw, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Debug("no ignore file, skipping filters", "path", path)
		}
		return nil
	}

	var data ignoreFile
	if err := yaml.Unmarshal(raw, &data); err != nil {
		if log != nil {
			log.Warn("failed to parse ignore file", "path", path, "error", err)
		}
		return nil
	}
	return data.Ignore
}

// FilterErrors removes errors matching any ignore pattern.
func FilterErrors(errors []model.ErrorGroup, patterns []IgnorePattern, log *slog.Logger) []model.ErrorGroup {
	if len(patterns) == 0 {
		return errors
	}

	filtered := make([]model.ErrorGroup, 0, len(errors))
	for _, err := range errors {
		if matchesIgnore(err, patterns) {
			if log != nil {
				log.Debug("filtered error", "error_class", err.ErrorClass, "transaction", err.Transaction)
			}
			continue
		}
		filtered = append(filtered, err)
	}

	if removed := len(errors) - len(filtered); removed > 0 && log != nil {
		log.Info(fmt.Sprintf("filtered %d known/ignored errors", removed))
	}
	return filtered
}

func matchesIgnore(err model.ErrorGroup, patterns []IgnorePattern) bool {
	target := err.ErrorClass + " " + err.Message + " " + err.Transaction
	for _, p := range patterns {
		matchType := p.Match
		if matchType == "" {
			matchType = "contains"
		}
		switch matchType {
		case "contains":
			if strings.Contains(target, p.Pattern) {
				return true
			}
		case "exact":
			if p.Pattern == err.ErrorClass {
				return true
			}
		case "prefix":
			if strings.HasPrefix(err.ErrorClass, p.Pattern) {
				return true
			}
		}
	}
	return false
}
