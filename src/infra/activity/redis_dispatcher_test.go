package activity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sandai/pkbattle/src/domain/activity"
	activityinfra "github.com/sandai/pkbattle/src/infra/activity"
)

// capturingHook answers pipelines in-process and keeps the commands it saw.
type capturingHook struct {
	mu   sync.Mutex
	cmds [][]any
	err  error
}

func (h *capturingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (h *capturingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return h.capture([]redis.Cmder{cmd})
	}
}

func (h *capturingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return h.capture(cmds)
	}
}

func (h *capturingHook) capture(cmds []redis.Cmder) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cmd := range cmds {
		h.cmds = append(h.cmds, cmd.Args())
		if h.err != nil {
			cmd.SetErr(h.err)
		}
	}
	return h.err
}

func newHookedClient(t *testing.T, hook *capturingHook) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(hook)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisDispatcher_Dispatch(t *testing.T) {
	hook := &capturingHook{}
	dispatcher := activityinfra.NewRedisDispatcher(newHookedClient(t, hook), "")

	gift := newEvent(t, activity.EventGiftApplied).WithActor("fan-1", "room-a").With("value", 5)
	finished := newEvent(t, activity.EventBattleFinished)
	require.NoError(t, dispatcher.Dispatch(context.Background(), []*activity.Event{gift, finished}))

	require.Len(t, hook.cmds, 2)
	for _, args := range hook.cmds {
		require.Equal(t, "publish", args[0])
		require.Equal(t, activityinfra.DefaultChannel, args[1])
	}

	payload, ok := hook.cmds[0][2].([]byte)
	require.True(t, ok, "payload type %T", hook.cmds[0][2])
	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, string(activity.EventGiftApplied), got["name"])
	require.Equal(t, "b-1", got["battle_id"])
	require.Equal(t, "fan-1", got["user_id"])
	require.Equal(t, "room-a", got["room_id"])
	require.Equal(t, float64(5), got["properties"].(map[string]any)["value"])
}

func TestRedisDispatcher_DispatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		events  func(t *testing.T) []*activity.Event
		hookErr error
		wantErr error
		calls   int
	}{
		{
			name:   "empty batch skips redis",
			events: func(t *testing.T) []*activity.Event { return nil },
		},
		{
			name:    "publish failure",
			events:  func(t *testing.T) []*activity.Event { return []*activity.Event{newEvent(t, activity.EventBattleCreated)} },
			hookErr: errors.New("connection reset"),
			wantErr: activity.ErrDispatchFailed,
			calls:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := &capturingHook{err: tt.hookErr}
			dispatcher := activityinfra.NewRedisDispatcher(newHookedClient(t, hook), "battles")

			err := dispatcher.Dispatch(context.Background(), tt.events(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(hook.cmds) != tt.calls {
				t.Errorf("published %d commands, want %d", len(hook.cmds), tt.calls)
			}
		})
	}
}
