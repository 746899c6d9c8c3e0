package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/dreamware/llmbalancer/internal/cluster"
	"github.com/dreamware/llmbalancer/internal/config"
)

// Helper function to create a new mock executor with controller
func newTestMockExecutor(t *testing.T) (*MockExecutor, *gomock.Controller) {
	ctrl := gomock.NewController(t)
	return NewMockExecutor(ctrl), ctrl
}

var pi = cluster.Node{ID: "pi", Name: "Raspberry Pi", URL: "http://10.0.0.9:11434", Administrable: true, AdminHost: "10.0.0.9:22"}

func piSecrets() *config.Secrets {
	return &config.Secrets{
		AdminToken: "tok",
		Nodes: map[string]config.NodeCredentials{
			"pi": {User: "pi", Password: "hunter2"},
		},
	}
}

func TestShutdownSuccess(t *testing.T) {
	mock, ctrl := newTestMockExecutor(t)
	defer ctrl.Finish()

	mock.EXPECT().
		PowerOff(gomock.Any(), pi, config.NodeCredentials{User: "pi", Password: "hunter2"}).
		Return(nil)

	res := NewChannel(piSecrets(), mock).Shutdown(context.Background(), pi)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "Raspberry Pi")
}

// TestShutdownRefused checks that refusals never reach the executor
// and leave cluster metrics unchanged.
func TestShutdownRefused(t *testing.T) {
	tests := []struct {
		name    string
		node    cluster.Node
		secrets *config.Secrets
		want    string
	}{
		{
			name:    "not administrable",
			node:    cluster.Node{ID: "pulsar", Name: "Pulsar"},
			secrets: piSecrets(),
			want:    "not administrable",
		},
		{
			name:    "no secrets loaded",
			node:    pi,
			secrets: nil,
			want:    "no administrative credentials",
		},
		{
			name:    "no entry for node",
			node:    pi,
			secrets: &config.Secrets{Nodes: map[string]config.NodeCredentials{"other": {User: "x", Password: "y"}}},
			want:    "no administrative credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, ctrl := newTestMockExecutor(t)
			defer ctrl.Finish()
			mock.EXPECT().PowerOff(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			state := cluster.NewState([]cluster.Node{tt.node})
			state.RecordSuccess(tt.node.ID, time.Second)
			before := state.CurrentSnapshot()

			res := NewChannel(tt.secrets, mock).Shutdown(context.Background(), tt.node)
			assert.False(t, res.Success)
			assert.Contains(t, res.Message, tt.want)
			assert.Equal(t, before, state.CurrentSnapshot())
		})
	}
}

func TestShutdownExecutorFailure(t *testing.T) {
	mock, ctrl := newTestMockExecutor(t)
	defer ctrl.Finish()

	mock.EXPECT().
		PowerOff(gomock.Any(), pi, gomock.Any()).
		Return(errors.New("dial 10.0.0.9:22: connection refused"))

	res := NewChannel(piSecrets(), mock).Shutdown(context.Background(), pi)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "connection refused")
	assert.NotContains(t, res.Message, "hunter2")
}

func TestShutdownAppliesTimeout(t *testing.T) {
	mock, ctrl := newTestMockExecutor(t)
	defer ctrl.Finish()

	mock.EXPECT().
		PowerOff(gomock.Any(), pi, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ cluster.Node, _ config.NodeCredentials) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil
		})

	assert.True(t, NewChannel(piSecrets(), mock).Shutdown(context.Background(), pi).Success)
}

func TestShutdownNilExecutor(t *testing.T) {
	res := NewChannel(piSecrets(), nil).Shutdown(context.Background(), pi)
	assert.False(t, res.Success)
}
