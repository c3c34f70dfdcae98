package config_test

import (
	"testing"

	"github.com/MrWong99/zenzone/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
			STT: config.ProviderEntry{Name: "whisper"},
		},
		Analysis: config.AnalysisConfig{Language: "en", MaxConcurrent: 4},
		History:  config.HistoryConfig{PostgresDSN: "postgres://localhost/zenzone"},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.AnalysisChanged || d.RestartRequired {
		t.Errorf("diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	oldCfg, newCfg := baseConfig(), baseConfig()
	newCfg.Server.LogLevel = config.LogDebug

	d := config.Diff(oldCfg, newCfg)
	if !d.LogLevelChanged {
		t.Error("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change should not require a restart")
	}
}

func TestDiff_AnalysisChanged(t *testing.T) {
	t.Parallel()
	oldCfg, newCfg := baseConfig(), baseConfig()
	newCfg.Analysis.MaxConcurrent = 16

	d := config.Diff(oldCfg, newCfg)
	if !d.AnalysisChanged {
		t.Error("AnalysisChanged = false, want true")
	}
	if d.NewAnalysis.MaxConcurrent != 16 {
		t.Errorf("NewAnalysis = %+v", d.NewAnalysis)
	}
	if d.RestartRequired {
		t.Error("analysis tuning should not require a restart")
	}
}

func TestDiff_ProviderChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	oldCfg, newCfg := baseConfig(), baseConfig()
	newCfg.Providers.STT.Name = "deepgram"

	d := config.Diff(oldCfg, newCfg)
	if !d.RestartRequired {
		t.Error("provider change should require a restart")
	}
}

func TestDiff_FallbackAddedRequiresRestart(t *testing.T) {
	t.Parallel()
	oldCfg, newCfg := baseConfig(), baseConfig()
	newCfg.Providers.STTFallback = &config.ProviderEntry{Name: "deepgram"}

	d := config.Diff(oldCfg, newCfg)
	if !d.RestartRequired {
		t.Error("adding a fallback provider should require a restart")
	}
}

func TestDiff_HistoryChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	oldCfg, newCfg := baseConfig(), baseConfig()
	newCfg.History.PostgresDSN = "postgres://elsewhere/zenzone"

	d := config.Diff(oldCfg, newCfg)
	if !d.RestartRequired {
		t.Error("history change should require a restart")
	}
}

func TestDiff_ListenAddrChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	oldCfg, newCfg := baseConfig(), baseConfig()
	newCfg.Server.ListenAddr = ":9090"

	d := config.Diff(oldCfg, newCfg)
	if !d.RestartRequired {
		t.Error("listen address change should require a restart")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	oldCfg, newCfg := baseConfig(), baseConfig()
	newCfg.Server.LogLevel = config.LogWarn
	newCfg.Analysis.Language = "de"
	newCfg.Providers.LLM.Model = "gpt-4o"

	d := config.Diff(oldCfg, newCfg)
	if !d.LogLevelChanged || !d.AnalysisChanged || !d.RestartRequired {
		t.Errorf("diff = %+v, want all three change kinds", d)
	}
}
