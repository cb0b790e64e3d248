package conversationworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/avito-asker/internal/config"
	"github.com/wolfman30/avito-asker/internal/forms"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

func memoryConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.json")
	raw := `{"name":"default","initial_state":"S0","states":{"S0":{"kind":"terminal","prompt":"bye"}}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	return &appconfig.Config{
		HTTPAddr:           "127.0.0.1:0",
		BusBackend:         "memory",
		InboundChannel:     "avito:inbound",
		ContactChannel:     "avito:outbound",
		OperatorChannel:    "operator:outbound",
		FormSource:         "file",
		FormName:           "default",
		FormFile:           path,
		LeadStore:          "memory",
		MaxChainLength:     16,
		ListenRestartDelay: 10 * time.Millisecond,
		ContactLockTTL:     time.Second,
		DedupeTTL:          time.Hour,
		ShutdownTimeout:    time.Second,
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, memoryConfig(t), logging.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}

func TestRun_MissingFormFailsStartup(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.FormFile = filepath.Join(t.TempDir(), "absent.yaml")

	err := Run(context.Background(), cfg, logging.Nop())
	require.ErrorIs(t, err, forms.ErrFormNotFound)
}

func TestRun_RequiresConfig(t *testing.T) {
	require.Error(t, Run(context.Background(), nil, nil))
}
