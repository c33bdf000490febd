package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nightwatch-dev/nightwatch/pkg/agent"
	"github.com/nightwatch-dev/nightwatch/pkg/batch"
	"github.com/nightwatch-dev/nightwatch/pkg/bus"
	"github.com/nightwatch-dev/nightwatch/pkg/chat"
	"github.com/nightwatch-dev/nightwatch/pkg/codehost"
	"github.com/nightwatch-dev/nightwatch/pkg/config"
	"github.com/nightwatch-dev/nightwatch/pkg/knowledge"
	"github.com/nightwatch-dev/nightwatch/pkg/llm"
	"github.com/nightwatch-dev/nightwatch/pkg/observability"
	"github.com/nightwatch-dev/nightwatch/pkg/pipeline"
	"github.com/nightwatch-dev/nightwatch/pkg/recorder"
	"github.com/nightwatch-dev/nightwatch/pkg/state"
	"github.com/nightwatch-dev/nightwatch/pkg/workflow"
)

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".nightwatch", "run_history.jsonl")
	}
	return filepath.Join(home, ".nightwatch", "run_history.jsonl")
}

// buildDeps loads configuration and wires every capability adapter into
// a pipeline.Deps. Adapters that need credentials NightWatch doesn't
// have are left nil — the pipeline degrades gracefully (ACTION/REPORTING
// simply skip), and `check` reports the missing capability explicitly.
func buildDeps(log *slog.Logger) (*pipeline.Deps, *config.Config, error) {
	cfg, err := config.Initialize(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	deps := &pipeline.Deps{
		Bus:    bus.New(log),
		State:  state.NewManager(),
		Agents: agent.NewRegistry(log),
		Config: cfg,
		Log:    log,
	}

	if cfg.Credentials.AnthropicAPIKey != "" {
		deps.Provider = llm.New(cfg.Credentials.AnthropicAPIKey, log)
	}

	if cfg.Credentials.GitHubToken != "" && cfg.Credentials.GitHubRepo != "" {
		host, err := codehost.New(cfg.Credentials.GitHubToken, cfg.Credentials.GitHubRepo, cfg.Run.GitHubBranch, log)
		if err != nil {
			log.Warn("could not initialize code host", "error", err)
		} else {
			deps.CodeHost = host
		}
	}

	if cfg.Credentials.NewRelicAPIKey != "" && cfg.Credentials.NewRelicAccount != "" {
		if cfg.Providers.NewRelicGraphQLURL != "" {
			deps.Observability = observability.NewWithAPIURL(cfg.Credentials.NewRelicAPIKey, cfg.Credentials.NewRelicAccount, cfg.Credentials.NewRelicAppName, cfg.Providers.NewRelicGraphQLURL, log)
		} else {
			deps.Observability = observability.New(cfg.Credentials.NewRelicAPIKey, cfg.Credentials.NewRelicAccount, cfg.Credentials.NewRelicAppName, log)
		}
	}

	if cfg.Credentials.SlackBotToken != "" && cfg.Credentials.SlackNotifyUser != "" {
		deps.Chat = chat.New(cfg.Credentials.SlackBotToken, cfg.Credentials.SlackNotifyUser, log)
	}

	deps.Knowledge = knowledge.New(cfg.Knowledge.Dir, log)

	if rec, err := recorder.New(defaultHistoryPath(), log); err != nil {
		log.Warn("could not initialize run history", "error", err)
	} else {
		deps.Recorder = rec
	}

	if deps.Provider != nil {
		if analyzer, err := batch.New(deps.Provider, cfg.Analysis.Model, cfg.Batch.StateDir, log); err != nil {
			log.Warn("could not initialize batch analyzer", "error", err)
		} else {
			deps.Batch = analyzer
		}
	}

	deps.Workflows = workflow.DefaultRegistry

	return deps, cfg, nil
}
