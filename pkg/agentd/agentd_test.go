package agentd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runabout/pkg/config"
	"runabout/pkg/intercept"
)

func testConfig() *config.Config {
	return &config.Config{
		Project: "agentd-test",
		Ingest:  config.IngestConfig{Type: "memory", Backoff: "1ms", Timeout: "1s"},
		ControlPlane: config.ControlPlaneConfig{
			Type:         "static",
			Instructions: []string{"agentd.cart#Checkout"},
		},
		Agent: config.AgentConfig{PollInterval: "5ms"},
		Log:   config.LogConfig{Level: "error", Format: "text"},
	}
}

func runAsync(ctx context.Context, cfg *config.Config, declarers ...Declarer) <-chan error {
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, declarers...) }()
	return done
}

func TestRun_HooksDeclaredPoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	points := make(chan *intercept.Point, 1)
	done := runAsync(ctx, testConfig(), func(table *intercept.Table) {
		points <- table.Declare("agentd.cart", "Checkout")
	})

	var p *intercept.Point
	select {
	case p = <-points:
	case <-time.After(time.Second):
		t.Fatal("declarer was not called")
	}
	require.Eventually(t, p.Patched, time.Second, 5*time.Millisecond)
	p.Fire("apple")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// 关闭只停用 Agent，已挂钩的拦截点保留
	assert.True(t, p.Patched())
}

func TestRun_WithoutPoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, testConfig(), nil)
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	err := Run(context.Background(), nil)
	require.Error(t, err)

	cfg := testConfig()
	cfg.ControlPlane.Instructions = []string{"agentd.cart#"}
	require.Error(t, Run(context.Background(), cfg))
}
