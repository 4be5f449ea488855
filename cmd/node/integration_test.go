//go:build integration

package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/adc"
	"github.com/afroash/soil-monitor/internal/config"
	"github.com/afroash/soil-monitor/internal/server"
)

// TestNodeToGateway runs the simulated node against an in-process gateway.
// Run with: go test -tags=integration -v ./cmd/node/
func TestNodeToGateway(t *testing.T) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	store := server.NewMemoryStore(100)
	gateway := httptest.NewServer(server.NewHandler("integration-token", store, logger))
	defer gateway.Close()

	cfgPath := filepath.Join(t.TempDir(), "node.yaml")
	yaml := `
node:
  id: node-it
  location: bench
uplink:
  url: ` + "ws" + strings.TrimPrefix(gateway.URL, "http") + `
  auth_token: integration-token
  flush_interval: 200ms
  batch_size: 5
logging:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	hw := adc.NewSimulated(adc.DefaultSimConfig())
	defer hw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = run(ctx, cfg, hw, clock.New(), logger)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run returned %v, want deadline exceeded", err)
	}

	reports := store.GetLatest("node-it", 10)
	if len(reports) < 2 {
		t.Fatalf("gateway received %d reports, want at least 2", len(reports))
	}
	for _, r := range reports {
		if !r.IsValid() {
			t.Errorf("invalid report stored: %s", r)
		}
	}
	if reports[0].Sequence <= reports[len(reports)-1].Sequence {
		t.Errorf("sequences not increasing: newest %d, oldest %d", reports[0].Sequence, reports[len(reports)-1].Sequence)
	}
}

func TestOpenPeripherals(t *testing.T) {
	if _, err := openPeripherals(config.ADCConfig{Driver: config.DriverSim}); err != nil {
		t.Errorf("sim driver: %v", err)
	}
	if _, err := openPeripherals(config.ADCConfig{Driver: config.DriverIIO, IIODevice: "/nonexistent/iio:device9"}); err == nil {
		t.Error("expected error for missing IIO device")
	}
	if _, err := openPeripherals(config.ADCConfig{Driver: "spi"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
