package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cloudx/internal/chat"
	"cloudx/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test")
	cfg, err := config.Parse()
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.MemoryFilePath = filepath.Join(dir, "memory.json")
	cfg.TurnLogPath = filepath.Join(dir, "turns.jsonl")
	return cfg
}

func TestBuildWiresComponents(t *testing.T) {
	a, err := Build(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Chat)
	require.Same(t, a.Sessions, a.Chat.Sessions())
	require.False(t, a.Scheduler.IsRunning())

	_, sess := a.Sessions.Resolve("")
	require.Equal(t, chat.DefaultSystemPrompt, sess.Messages()[0].Content)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = "nope"
	_, err := Build(cfg, nil)
	require.Error(t, err)
}

func TestBuildRejectsBadSweepSpec(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionSweepSpec = "every now and then"
	_, err := Build(cfg, nil)
	require.Error(t, err)
}

func TestSystemPromptFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  be brief  \n"), 0o644))
	require.Equal(t, "be brief", SystemPrompt(path, nil))
	require.Equal(t, chat.DefaultSystemPrompt, SystemPrompt(filepath.Join(path, "missing"), nil))
	require.Equal(t, chat.DefaultSystemPrompt, SystemPrompt("", nil))
}
