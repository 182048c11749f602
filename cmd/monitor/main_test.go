package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_catalog/internal/client"
)

func TestWaitReadyStopsEmbeddedProcessOnFailure(t *testing.T) {
	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}
	cmd := exec.Command(sleepBin, "30")
	require.NoError(t, cmd.Start())
	proc := &embeddedCatalog{cmd: cmd}
	t.Cleanup(proc.Stop)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	err = waitReady(context.Background(), client.New(down.URL, nil), proc, 300*time.Millisecond)
	require.Error(t, err)
	require.NotNil(t, cmd.ProcessState, "embedded process should have been reaped")
	assert.False(t, cmd.ProcessState.Success())
}

func TestWaitReadyKeepsProcessWhenHealthy(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","provider":"gemini","model":"m"}`))
	}))
	defer up.Close()

	require.NoError(t, waitReady(context.Background(), client.New(up.URL, nil), nil, time.Second))
}
