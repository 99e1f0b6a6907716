package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/appraise/internal/agent"
	"github.com/dyluth/appraise/internal/config"
	"github.com/dyluth/appraise/pkg/ledger"
)

// resetFlags restores every flag to its default so that commands can be
// executed repeatedly within one test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the CLI with args and returns what was written to stdout.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	return buf.String(), err
}

// isolateEnv clears the process settings so tests never see the caller's environment.
func isolateEnv(t *testing.T) {
	t.Setenv("APPRAISE_REDIS_URL", "")
	t.Setenv("APPRAISE_INSTANCE", "")
	t.Setenv("APPRAISE_CONFIG", "")
	t.Setenv("APPRAISE_LISTEN", "")
}

func withLedger(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("APPRAISE_REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("APPRAISE_INSTANCE", "cli-test")
	return mr
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	isolateEnv(t)

	out, err := executeCommand(t, "")
	assert.NoError(t, err)
	assert.Contains(t, out, "Usage:", "Help should be displayed")
	assert.Contains(t, out, "appraise", "Help should show command name")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	isolateEnv(t)

	_, err := executeCommand(t, "", "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}

	for _, name := range []string{"score", "serve", "show", "stats", "watch", "popularity"} {
		assert.True(t, names[name], "missing subcommand %s", name)
	}
}

func TestLoadConfig(t *testing.T) {
	isolateEnv(t)
	initEnv()
	resetFlags(rootCmd)

	t.Run("defaults without a path", func(t *testing.T) {
		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, config.DefaultListenAddr, cfg.Orchestrator.ListenAddr)
	})

	t.Run("reads the file named by APPRAISE_CONFIG", func(t *testing.T) {
		path := writeFile(t, "appraise.yml", `version: "1.0"
orchestrator:
  listen_addr: ":9999"
agents:
  innovation_detection:
    enabled: false
`)
		t.Setenv("APPRAISE_CONFIG", path)

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.Orchestrator.ListenAddr)
		assert.False(t, cfg.AgentEnabled(ledger.AgentTypeInnovationDetection))
	})

	t.Run("rejects an invalid file", func(t *testing.T) {
		t.Setenv("APPRAISE_CONFIG", writeFile(t, "appraise.yml", `version: "2.0"`))

		_, err := loadConfig()
		require.Error(t, err)
		assert.Equal(t, "invalid configuration", err.Error())
	})
}

func TestBuildAgents(t *testing.T) {
	disabled := false
	cfg := &config.AppraiseConfig{
		Version: "1.0",
		Agents: map[string]config.AgentConfig{
			string(ledger.AgentTypeCommunityBehavior): {Enabled: &disabled},
		},
		CodeQuality: &config.CodeQualityConfig{
			LanguageMultipliers: map[string]float64{"javascript": 2},
		},
	}
	require.NoError(t, cfg.Validate())

	agents := buildAgents(cfg, agent.StaticPopularity{"p": 70})
	require.Len(t, agents, 3)

	types := make([]ledger.AgentType, len(agents))
	for i, a := range agents {
		types[i] = a.Type()
	}
	assert.Equal(t, []ledger.AgentType{
		ledger.AgentTypeCodeQuality,
		ledger.AgentTypeContributionImpact,
		ledger.AgentTypeInnovationDetection,
	}, types)
}

func TestScoreCommand(t *testing.T) {
	isolateEnv(t)
	code := "function add(a,b){return a+b;}"
	path := writeFile(t, "add.js", code)

	out, err := executeCommand(t, "", "score", "--developer", "0x1234", "--timestamp", "1718000000000", "-o", "json", path)
	require.NoError(t, err)

	var evaluation ledger.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &evaluation))

	expected := ledger.Fingerprint(&ledger.Contribution{Developer: "0x1234", Code: code, Timestamp: "1718000000000"})
	assert.Equal(t, expected, evaluation.Fingerprint)
	assert.Len(t, evaluation.Decisions, 4)
	require.NotNil(t, evaluation.Consensus)
	assert.Equal(t, ledger.EvaluationStatusProcessed, evaluation.Status)
}

func TestScoreCommand_Stdin(t *testing.T) {
	isolateEnv(t)

	out, err := executeCommand(t, "def add(a, b):\n    return a + b\n", "score", "--developer", "0x1234", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Estimated reward:")
	assert.Contains(t, out, "code_quality")
	assert.Contains(t, out, "Agreement:")
}

func TestScoreCommand_Errors(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "x.go", "package x")

	tests := []struct {
		name  string
		args  []string
		title string
	}{
		{"missing developer", []string{"score", path}, "invalid contribution"},
		{"empty file", []string{"score", "--developer", "0x1", writeFile(t, "empty.go", "")}, "invalid contribution"},
		{"save without ledger", []string{"score", "--developer", "0x1", "--save", path}, "--save requires a ledger"},
		{"unknown output", []string{"score", "--developer", "0x1", "-o", "xml", path}, "invalid output format"},
		{"missing file", []string{"score", "--developer", "0x1", filepath.Join(t.TempDir(), "nope.go")}, "cannot read contribution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, "", tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.title, err.Error())
		})
	}
}

func TestLedgerCommands(t *testing.T) {
	isolateEnv(t)
	withLedger(t)

	_, err := executeCommand(t, "", "popularity", "set", "codedao/core", "85")
	require.NoError(t, err)

	out, err := executeCommand(t, "", "popularity", "get", "codedao/core")
	require.NoError(t, err)
	assert.Equal(t, "codedao/core\t85\n", out)

	path := writeFile(t, "add.js", "const add = (a, b) => a + b")
	out, err = executeCommand(t, "", "score", "--developer", "0x1234", "--project", "codedao/core",
		"--timestamp", "2024-06-10T00:00:00Z", "--save", "-o", "json", path)
	require.NoError(t, err)

	var scored ledger.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &scored))

	var impact *ledger.Decision
	for _, d := range scored.Decisions {
		if d.AgentType == ledger.AgentTypeContributionImpact {
			impact = d
		}
	}
	require.NotNil(t, impact)
	assert.Equal(t, 85.0, impact.Metrics["project_popularity"], "impact agent reads popularity from the ledger")

	t.Run("show returns the recorded evaluation", func(t *testing.T) {
		out, err := executeCommand(t, "", "show", "-o", "json", scored.Fingerprint)
		require.NoError(t, err)

		var shown ledger.Evaluation
		require.NoError(t, json.Unmarshal([]byte(out), &shown))
		assert.Equal(t, scored.ID, shown.ID)

		out, err = executeCommand(t, "", "show", scored.Fingerprint)
		require.NoError(t, err)
		assert.Contains(t, out, "Evaluation "+scored.ID)
	})

	t.Run("stats aggregate the developer", func(t *testing.T) {
		out, err := executeCommand(t, "", "stats", "-o", "json", "0x1234")
		require.NoError(t, err)

		var result statsOutput
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, 1, result.Stats.Evaluations)
		require.Len(t, result.Evaluations, 1)
		assert.Equal(t, scored.ID, result.Evaluations[0].ID)

		out, err = executeCommand(t, "", "stats", "0x1234")
		require.NoError(t, err)
		assert.Contains(t, out, "Evaluations:      1")
		assert.Contains(t, out, "1 evaluation found")
	})

	t.Run("show accepts a unique prefix", func(t *testing.T) {
		out, err := executeCommand(t, "", "show", "-o", "json", scored.Fingerprint[:10])
		require.NoError(t, err)

		var shown ledger.Evaluation
		require.NoError(t, json.Unmarshal([]byte(out), &shown))
		assert.Equal(t, scored.ID, shown.ID)
	})

	t.Run("stats filters the listed evaluations", func(t *testing.T) {
		other := ledger.AgreementLow
		if scored.Consensus.Agreement == ledger.AgreementLow {
			other = ledger.AgreementHigh
		}

		out, err := executeCommand(t, "", "stats", "-o", "json", "--agreement", string(other), "0x1234")
		require.NoError(t, err)

		var result statsOutput
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, 1, result.Stats.Evaluations, "aggregates ignore filters")
		assert.Empty(t, result.Evaluations)

		out, err = executeCommand(t, "", "stats", "-o", "json", "--since", "1h", "--project", "codedao/*", "0x1234")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Len(t, result.Evaluations, 1)
	})

	t.Run("show rejects unknown fingerprints", func(t *testing.T) {
		_, err := executeCommand(t, "", "show", strings.Repeat("0", 64))
		require.Error(t, err)
		assert.Equal(t, "evaluation not found", err.Error())
	})

	t.Run("popularity rejects NaN", func(t *testing.T) {
		_, err := executeCommand(t, "", "popularity", "set", "codedao/core", "NaN")
		require.Error(t, err)
		assert.Equal(t, "invalid popularity score", err.Error())
	})

	t.Run("popularity rejects out of range scores", func(t *testing.T) {
		_, err := executeCommand(t, "", "popularity", "set", "codedao/core", "150")
		require.Error(t, err)
		assert.Equal(t, "invalid popularity score", err.Error())
	})

	t.Run("popularity get of an unknown project", func(t *testing.T) {
		_, err := executeCommand(t, "", "popularity", "get", "nobody/nothing")
		require.Error(t, err)
		assert.Equal(t, "no popularity recorded", err.Error())
	})
}

func TestShowCommand_InvalidFingerprint(t *testing.T) {
	isolateEnv(t)

	_, err := executeCommand(t, "", "show", "not-a-fingerprint")
	require.Error(t, err)
	assert.Equal(t, "invalid fingerprint", err.Error())

	_, err = executeCommand(t, "", "show", "abc")
	require.Error(t, err)
	assert.Equal(t, "invalid fingerprint", err.Error())
}

func TestFilterFlags_Validation(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		args  []string
		title string
	}{
		{[]string{"stats", "--since", "yesterday", "0x1"}, "invalid time filter"},
		{[]string{"stats", "--since", "1h", "--until", "2h", "0x1"}, "invalid time filter"},
		{[]string{"stats", "--agreement", "total", "0x1"}, "invalid agreement filter"},
		{[]string{"watch", "--status", "done"}, "invalid status filter"},
		{[]string{"watch", "--min-reward=-1"}, "invalid reward filter"},
	}

	for _, tt := range tests {
		_, err := executeCommand(t, "", tt.args...)
		require.Error(t, err, "%v", tt.args)
		assert.Equal(t, tt.title, err.Error())
	}
}

func TestServeUntil(t *testing.T) {
	isolateEnv(t)
	initEnv()
	resetFlags(rootCmd)

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		withLedger(t)
		t.Setenv("APPRAISE_LISTEN", "127.0.0.1:0")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- serveUntil(ctx) }()

		time.Sleep(200 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
		}
	})

	t.Run("reports an unusable listen address", func(t *testing.T) {
		t.Setenv("APPRAISE_LISTEN", "not-an-address")

		err := serveUntil(context.Background())
		require.Error(t, err)
		assert.Equal(t, "server failed", err.Error())
	})

	t.Run("rejects a config that disables every agent", func(t *testing.T) {
		t.Setenv("APPRAISE_CONFIG", writeFile(t, "appraise.yml", `version: "1.0"
agents:
  code_quality: {enabled: false}
  contribution_impact: {enabled: false}
  community_behavior: {enabled: false}
  innovation_detection: {enabled: false}
`))

		err := serveUntil(context.Background())
		require.Error(t, err)
		assert.Equal(t, "invalid configuration", err.Error())
	})
}

func TestLedgerCommands_RequireRedisURL(t *testing.T) {
	isolateEnv(t)

	for _, args := range [][]string{
		{"stats", "0x1234"},
		{"watch"},
		{"popularity", "get", "p"},
	} {
		_, err := executeCommand(t, "", args...)
		require.Error(t, err, "%v", args)
		assert.Equal(t, "no ledger configured", err.Error())
	}
}
