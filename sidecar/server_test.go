package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine"
	"github.com/goliatone/go-durable/engine/memory"
	"github.com/goliatone/go-durable/rpc"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// basicBackend hides the optional query and purge capabilities.
type basicBackend struct {
	engine.Backend
}

type fixture struct {
	def    *memory.Backend
	hubB   *memory.Backend
	server *Server
	rpc    *rpc.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	def := memory.New("Default")
	hubB := memory.New("HubB")
	reg := engine.NewRegistry(def)
	require.NoError(t, reg.Register("HubB", "", hubB))
	require.NoError(t, reg.Register("Basic", "", basicBackend{memory.New("Basic")}))

	logger := durable.NewFmtLogger(&bytes.Buffer{})
	s := New(reg, append([]Option{WithLogger(logger)}, opts...)...)
	rs, err := NewRPCServer(s, logger)
	require.NoError(t, err)
	return &fixture{def: def, hubB: hubB, server: s, rpc: rs}
}

func hubMeta(hub string) rpc.RequestMeta {
	if hub == "" {
		return rpc.RequestMeta{}
	}
	return rpc.RequestMeta{Headers: map[string]string{"durable-taskhub": hub}}
}

func strPtr(s string) *string { return &s }

func TestRPCEndpointsCoverProtocol(t *testing.T) {
	f := newFixture(t)
	var methods []string
	for _, ep := range f.rpc.Endpoints() {
		methods = append(methods, ep.Method)
	}
	assert.ElementsMatch(t, []string{
		MethodHello, MethodCreateTaskHub, MethodDeleteTaskHub, MethodStartInstance,
		MethodRaiseEvent, MethodTerminateInstance, MethodSuspendInstance,
		MethodResumeInstance, MethodRewindInstance, MethodGetInstance,
		MethodWaitForInstanceStart, MethodWaitForInstanceCompletion,
		MethodQueryInstances, MethodPurgeInstances,
	}, methods)

	wait, ok := f.rpc.Endpoint(MethodWaitForInstanceCompletion)
	require.True(t, ok)
	assert.Zero(t, wait.Timeout)
	start, ok := f.rpc.Endpoint(MethodStartInstance)
	require.True(t, ok)
	assert.Equal(t, DefaultCallTimeout, start.Timeout)
}

func TestStartInstanceRoutesByTaskHubHeader(t *testing.T) {
	f := newFixture(t)

	out, err := f.rpc.Invoke(context.Background(), MethodStartInstance, rpc.RequestEnvelope[StartInstanceRequest]{
		Data: StartInstanceRequest{InstanceID: "abc", Name: "Sum", Input: strPtr(`[1,2]`)},
		Meta: hubMeta("HubB"),
	})
	require.NoError(t, err)
	res := out.(rpc.ResponseEnvelope[StartInstanceResponse])
	assert.Equal(t, "abc", res.Data.InstanceID)

	state, err := f.hubB.GetState(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "Sum", state.Name)
	assert.NotEmpty(t, state.Instance.ExecutionID)

	state, err = f.def.GetState(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, state, "default backend must not see the instance")

	_, err = f.rpc.Invoke(context.Background(), MethodStartInstance, rpc.RequestEnvelope[StartInstanceRequest]{
		Data: StartInstanceRequest{Name: "Sum"},
		Meta: hubMeta("Unknown"),
	})
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeTaskHubNotFound))
}

func TestStartInstanceGeneratesHexID(t *testing.T) {
	f := newFixture(t)

	res, err := f.server.StartInstance(context.Background(), rpc.RequestMeta{}, StartInstanceRequest{Name: "Sum"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), res.InstanceID)

	_, rt, err := f.def.WorkItem(res.InstanceID)
	require.NoError(t, err)
	started, ok := rt.ExecutionStarted()
	require.True(t, ok)
	assert.Equal(t, res.InstanceID, started.Instance.InstanceID)
	assert.Len(t, started.Instance.ExecutionID, 36)
}

func TestStartInstanceRequiresName(t *testing.T) {
	f := newFixture(t)
	_, err := f.rpc.Invoke(context.Background(), MethodStartInstance, rpc.RequestEnvelope[StartInstanceRequest]{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryBadInput))
}

func TestGetInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.server.GetInstance(ctx, rpc.RequestMeta{}, GetInstanceRequest{InstanceID: "missing"})
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.Nil(t, res.OrchestrationState)

	_, err = f.server.StartInstance(ctx, rpc.RequestMeta{}, StartInstanceRequest{InstanceID: "abc", Name: "Sum", Input: strPtr(`[1,2]`)})
	require.NoError(t, err)

	res, err = f.server.GetInstance(ctx, rpc.RequestMeta{}, GetInstanceRequest{InstanceID: "abc"})
	require.NoError(t, err)
	require.True(t, res.Exists)
	assert.Equal(t, "Sum", res.OrchestrationState.Name)
	assert.Equal(t, int32(durable.StatusPending), res.OrchestrationState.OrchestrationStatus)
	assert.Nil(t, res.OrchestrationState.Input)

	res, err = f.server.GetInstance(ctx, rpc.RequestMeta{}, GetInstanceRequest{InstanceID: "abc", GetInputsAndOutputs: true})
	require.NoError(t, err)
	require.NotNil(t, res.OrchestrationState.Input)
	assert.Equal(t, `[1,2]`, *res.OrchestrationState.Input)
}

func TestInstanceLifecycleCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	meta := rpc.RequestMeta{}

	_, err := f.server.StartInstance(ctx, meta, StartInstanceRequest{InstanceID: "abc", Name: "Sum"})
	require.NoError(t, err)

	_, err = f.server.RaiseEvent(ctx, meta, RaiseEventRequest{InstanceID: "abc", Name: "approve", Input: strPtr(`true`)})
	require.NoError(t, err)
	_, rt, err := f.def.WorkItem("abc")
	require.NoError(t, err)
	require.Len(t, rt.NewEvents, 2)
	assert.Equal(t, "approve", rt.NewEvents[1].EventRaised.Name)

	_, err = f.server.SuspendInstance(ctx, meta, InstanceReasonRequest{InstanceID: "abc", Reason: "hold"})
	require.NoError(t, err)
	_, err = f.server.ResumeInstance(ctx, meta, InstanceReasonRequest{InstanceID: "abc"})
	require.NoError(t, err)

	_, err = f.server.RewindInstance(ctx, meta, InstanceReasonRequest{InstanceID: "abc"})
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	_, err = f.server.TerminateInstance(ctx, meta, TerminateRequest{InstanceID: "abc", Output: "stopped"})
	require.NoError(t, err)
	state, _ := f.def.GetState(ctx, "abc")
	assert.Equal(t, durable.StatusTerminated, state.Status)

	_, err = f.server.RaiseEvent(ctx, meta, RaiseEventRequest{InstanceID: "missing", Name: "x"})
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeInstanceNotFound))
}

func TestTaskHubCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.server.CreateTaskHub(ctx, hubMeta("HubB"), CreateTaskHubRequest{})
	require.NoError(t, err)
	assert.True(t, f.hubB.TaskHubExists())
	assert.False(t, f.def.TaskHubExists())

	_, err = f.server.DeleteTaskHub(ctx, hubMeta("HubB"), Empty{})
	require.NoError(t, err)
	assert.False(t, f.hubB.TaskHubExists())
}

func TestWaitForInstanceStartFollowsBackoffSchedule(t *testing.T) {
	var slept []time.Duration
	var f *fixture
	f = newFixture(t, WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		switch len(slept) {
		case 3:
			_, err := f.server.StartInstance(context.Background(), rpc.RequestMeta{}, StartInstanceRequest{InstanceID: "abc", Name: "Sum"})
			require.NoError(t, err)
		case 12:
			require.NoError(t, f.def.SetStatus("abc", durable.StatusRunning, nil, nil))
		}
		return nil
	}))

	res, err := f.server.WaitForInstanceStart(context.Background(), rpc.RequestMeta{}, GetInstanceRequest{InstanceID: "abc"})
	require.NoError(t, err)
	require.True(t, res.Exists)
	assert.Equal(t, int32(durable.StatusRunning), res.OrchestrationState.OrchestrationStatus)

	want := []time.Duration{
		time.Second, time.Second, time.Second, time.Second, time.Second,
		time.Second, time.Second, time.Second, time.Second, time.Second,
		2 * time.Second, 2 * time.Second,
	}
	assert.Equal(t, want, slept)
}

func TestWaitForInstanceStartHonorsCancellation(t *testing.T) {
	f := newFixture(t, WithWaitStartBackoff(millisecondBackoff{}))
	_, err := f.server.StartInstance(context.Background(), rpc.RequestMeta{}, StartInstanceRequest{InstanceID: "abc", Name: "Sum"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = f.server.WaitForInstanceStart(ctx, rpc.RequestMeta{}, GetInstanceRequest{InstanceID: "abc"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// millisecondBackoff polls every millisecond.
type millisecondBackoff struct{}

func (millisecondBackoff) SleepDuration(int, error) time.Duration { return time.Millisecond }

func TestWaitForInstanceCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.server.StartInstance(ctx, rpc.RequestMeta{}, StartInstanceRequest{InstanceID: "abc", Name: "Sum"})
	require.NoError(t, err)

	done := make(chan GetInstanceResponse, 1)
	go func() {
		res, err := f.server.WaitForInstanceCompletion(ctx, rpc.RequestMeta{}, GetInstanceRequest{InstanceID: "abc", GetInputsAndOutputs: true})
		if err == nil {
			done <- res
		}
		close(done)
	}()

	require.NoError(t, f.def.SetStatus("abc", durable.StatusCompleted, strPtr(`3`), nil))

	select {
	case res := <-done:
		require.True(t, res.Exists)
		assert.Equal(t, int32(durable.StatusCompleted), res.OrchestrationState.OrchestrationStatus)
		assert.Equal(t, `3`, *res.OrchestrationState.Output)
	case <-time.After(2 * time.Second):
		t.Fatal("wait for completion did not return")
	}
}

func TestQueryInstances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.server.StartInstance(ctx, rpc.RequestMeta{}, StartInstanceRequest{InstanceID: id, Name: "Sum", Input: strPtr(`1`)})
		require.NoError(t, err)
	}

	res, err := f.server.QueryInstances(ctx, rpc.RequestMeta{}, QueryInstancesRequest{Query: InstanceQuery{
		RuntimeStatus:    []durable.OrchestrationStatus{},
		TaskHubNames:     []string{},
		MaxInstanceCount: 2,
	}})
	require.NoError(t, err)
	assert.Len(t, res.OrchestrationState, 2)
	require.NotNil(t, res.ContinuationToken)
	assert.Nil(t, res.OrchestrationState[0].Input)

	res, err = f.server.QueryInstances(ctx, rpc.RequestMeta{}, QueryInstancesRequest{Query: InstanceQuery{
		ContinuationToken:     res.ContinuationToken,
		FetchInputsAndOutputs: true,
	}})
	require.NoError(t, err)
	require.Len(t, res.OrchestrationState, 1)
	assert.Equal(t, `1`, *res.OrchestrationState[0].Input)
	assert.Nil(t, res.ContinuationToken)
}

func TestOptionalCapabilitiesAreReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.server.QueryInstances(ctx, hubMeta("Basic"), QueryInstancesRequest{})
	require.Error(t, err)
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeCapabilityNotSupported))
	assert.Contains(t, err.Error(), "sidecar.basicBackend")

	_, err = f.server.PurgeInstances(ctx, hubMeta("Basic"), PurgeInstancesRequest{InstanceID: strPtr("abc")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryOperation))
	assert.Contains(t, err.Error(), "sidecar.basicBackend")
}

func TestPurgeInstances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"a", "b"} {
		_, err := f.server.StartInstance(ctx, rpc.RequestMeta{}, StartInstanceRequest{InstanceID: id, Name: "Sum"})
		require.NoError(t, err)
		require.NoError(t, f.def.SetStatus(id, durable.StatusCompleted, nil, nil))
	}

	res, err := f.server.PurgeInstances(ctx, rpc.RequestMeta{}, PurgeInstancesRequest{InstanceID: strPtr("a")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedInstanceCount)

	res, err = f.server.PurgeInstances(ctx, rpc.RequestMeta{}, PurgeInstancesRequest{
		PurgeInstanceFilter: &PurgeInstanceFilter{CreatedTimeFrom: time.Unix(0, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedInstanceCount)

	tests := []struct {
		name string
		req  PurgeInstancesRequest
	}{
		{name: "neither", req: PurgeInstancesRequest{}},
		{name: "both", req: PurgeInstancesRequest{
			InstanceID:          strPtr("a"),
			PurgeInstanceFilter: &PurgeInstanceFilter{CreatedTimeFrom: time.Now()},
		}},
		{name: "filter without from", req: PurgeInstancesRequest{PurgeInstanceFilter: &PurgeInstanceFilter{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.server.PurgeInstances(ctx, rpc.RequestMeta{}, tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryBadInput))
		})
	}
}

func TestHTTPTransportRoutesHeaders(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(rpc.HTTPHandler(f.rpc))
	defer ts.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"instance.start","params":{"data":{"instanceId":"abc","name":"Sum","input":"[1,2]"}}}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+rpc.PathInvoke, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTaskHub, "HubB")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Result struct {
			Data StartInstanceResponse `json:"data"`
		} `json:"result"`
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Nil(t, decoded.Error)
	assert.Equal(t, "abc", decoded.Result.Data.InstanceID)

	state, err := f.hubB.GetState(context.Background(), "abc")
	require.NoError(t, err)
	assert.NotNil(t, state)
}
