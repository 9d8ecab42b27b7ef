package engine_test

import (
	"testing"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine"
	"github.com/goliatone/go-durable/engine/memory"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRoutesByTaskHubAndConnection(t *testing.T) {
	def := memory.New("default")
	hubA := memory.New("HubA")
	hubAOther := memory.New("HubA")
	reg := engine.NewRegistry(def)

	require.NoError(t, reg.Register("HubA", "", hubA))
	require.NoError(t, reg.Register("HubA", "Storage2", hubAOther))

	tests := []struct {
		name       string
		hub        string
		connection string
		want       engine.Backend
	}{
		{name: "default", want: def},
		{name: "hub only", hub: "HubA", want: hubA},
		{name: "case insensitive", hub: "huba", want: hubA},
		{name: "hub and connection", hub: "HubA", connection: "storage2", want: hubAOther},
		{name: "padded", hub: "  HubA ", want: hubA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Backend(tt.hub, tt.connection)
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestRegistryUnknownHubIsNotFound(t *testing.T) {
	reg := engine.NewRegistry(memory.New("default"))

	_, err := reg.Backend("Missing", "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeTaskHubNotFound))

	_, err = reg.Backend("HubA", "nope")
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeTaskHubNotFound))
}

func TestRegistryWithoutDefault(t *testing.T) {
	reg := engine.NewRegistry(nil)
	_, err := reg.Backend("", "")
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeTaskHubNotFound))

	def := memory.New("default")
	require.NoError(t, reg.Register("", "", def))
	got, err := reg.Backend("", "")
	require.NoError(t, err)
	assert.Same(t, def, got)
	assert.Same(t, def, reg.Default())
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	reg := engine.NewRegistry(nil)
	require.NoError(t, reg.Register("HubA", "", memory.New("HubA")))

	err := reg.Register("huba", "", memory.New("HubA"))
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeInvalidRequest))

	err = reg.Register("HubB", "", nil)
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeInvalidRequest))

	require.NoError(t, reg.Register("HubB", "conn", memory.New("HubB")))
	assert.Equal(t, []engine.Key{
		{TaskHub: "huba"},
		{TaskHub: "hubb", Connection: "conn"},
	}, reg.Keys())
	assert.Equal(t, "hubb@conn", reg.Keys()[1].String())
}
