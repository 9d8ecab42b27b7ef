package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/config"
	"github.com/goliatone/go-durable/rpc"
	"github.com/goliatone/go-durable/sidecar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() durable.Logger { return durable.NewFmtLogger(io.Discard) }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HubName = "TestHub"
	cfg.Management.Enabled = false
	return cfg
}

func TestRunDemoSumsInput(t *testing.T) {
	output, err := runDemo(testConfig(), quiet(), "[1,2]", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "3", output)
}

func TestRunDemoReportsActivityFailure(t *testing.T) {
	_, err := runDemo(testConfig(), quiet(), `"not a list"`, 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects a JSON array of numbers")
}

func TestNewHostRegistersTaskHubs(t *testing.T) {
	cfg := testConfig()
	cfg.TaskHubs = []config.TaskHub{{Name: "Billing", Connection: "primary"}}
	cfg.Retention.Enabled = true

	h, err := newHost(cfg, quiet(), nil)
	require.NoError(t, err)
	require.Len(t, h.hubs, 2)

	billing := h.lookupHub("Billing")
	require.NotNil(t, billing)
	assert.Equal(t, "primary", billing.connection)
	assert.NotNil(t, billing.purger)
	assert.Nil(t, h.lookupHub("Missing"))

	backend, err := h.engines.Backend("Billing", "primary")
	require.NoError(t, err)
	assert.Same(t, billing.backend, backend)

	cfg.TaskHubs = append(cfg.TaskHubs, config.TaskHub{Name: "Billing", Connection: "primary"})
	_, err = newHost(cfg, quiet(), nil)
	assert.Error(t, err)
}

func TestHostServesRPCAndManagement(t *testing.T) {
	cfg := testConfig()
	cfg.Management.Enabled = true

	functions := durable.NewFunctionRegistry()
	require.NoError(t, registerSampleWorker(functions))
	h, err := newHost(cfg, quiet(), functions)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Start(ctx))
	defer h.Stop(context.Background())
	assert.True(t, functions.Frozen())

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"` + sidecar.MethodStartInstance +
		`","params":{"data":{"instanceId":"sum-1","name":"Sum","input":"[4,5]"}}}`)
	resp, err := http.Post(h.rpc.Address()+rpc.PathInvoke, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state, err := h.lookupHub("TestHub").backend.WaitForOrchestration(ctx, "sum-1")
	require.NoError(t, err)
	assert.Equal(t, durable.StatusCompleted, state.Status)

	resp, err = http.Get(h.management.Address() + "/admin/instances/sum-1?showInput=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Output string `json:"output"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "9", decoded.Output)
}

func TestHostFailsUnknownOrchestrations(t *testing.T) {
	h, err := newHost(testConfig(), quiet(), nil)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))

	_, err = h.sidecar.StartInstance(context.Background(), rpc.RequestMeta{}, sidecar.StartInstanceRequest{
		InstanceID: "orphan",
		Name:       "Sum",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	state, err := h.lookupHub("TestHub").backend.WaitForOrchestration(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, durable.StatusFailed, state.Status)
	require.NotNil(t, state.FailureDetails)
	assert.Equal(t, "DispatchFailure", state.FailureDetails.ErrorType)

	require.NoError(t, h.Stop(ctx))
}
