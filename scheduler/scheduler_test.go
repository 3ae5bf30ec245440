package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenthub/knowledge"
)

// dueConnector attaches an auto-sync connector with a zero minute interval,
// which schedules its first sync at creation time and makes it immediately
// due.
func dueConnector(t *testing.T, km *knowledge.Manager, kbID string) *knowledge.ConnectorConfig {
	t.Helper()

	conn := km.AddConnector(kbID, knowledge.SourceWebScraper, "crawler", nil, true, 0)
	require.NotNil(t, conn)
	return conn
}

func TestRunOnceSyncsDueConnectors(t *testing.T) {
	km := knowledge.NewManager()
	kb := km.Create("Docs", "", nil, "tester")
	dueConnector(t, km, kb.ID)

	s := New(km)
	assert.Equal(t, 1, s.RunOnce(context.Background()))

	got := km.Get(kb.ID)
	require.NotNil(t, got)
	require.Len(t, got.Connectors, 1)
	assert.Equal(t, 1, got.Connectors[0].TotalSyncs)
	assert.NotNil(t, got.Connectors[0].LastSyncAt)
}

func TestRunOnceSkipsConnectorsNotYetDue(t *testing.T) {
	km := knowledge.NewManager()
	kb := km.Create("Docs", "", nil, "tester")

	conn := km.AddConnector(kb.ID, knowledge.SourceWebScraper, "crawler", nil, true, 60)
	require.NotNil(t, conn)

	s := New(km)
	assert.Equal(t, 0, s.RunOnce(context.Background()))

	got := km.Get(kb.ID)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.Connectors[0].TotalSyncs)
}

func TestRunOnceSkipsManualConnectors(t *testing.T) {
	km := knowledge.NewManager()
	kb := km.Create("Docs", "", nil, "tester")

	conn := km.AddConnector(kb.ID, knowledge.SourceNotion, "workspace", nil, false, 0)
	require.NotNil(t, conn)

	s := New(km)
	assert.Equal(t, 0, s.RunOnce(context.Background()))
}

func TestRunOnceHookErrorMarksConnector(t *testing.T) {
	km := knowledge.NewManager()
	kb := km.Create("Docs", "", nil, "tester")
	dueConnector(t, km, kb.ID)

	s := New(km, func(o *Options) {
		o.Hook = func(_ context.Context, _ knowledge.DueSync) error {
			return errors.New("upstream unreachable")
		}
	})

	assert.Equal(t, 0, s.RunOnce(context.Background()))

	got := km.Get(kb.ID)
	require.NotNil(t, got)
	assert.Equal(t, knowledge.StatusError, got.Status)
	assert.Equal(t, 1, got.Connectors[0].FailedSyncs)
	assert.Equal(t, "upstream unreachable", got.Connectors[0].LastError)
}

func TestRunOnceHookReceivesDueConnector(t *testing.T) {
	km := knowledge.NewManager()
	kb := km.Create("Docs", "", nil, "tester")
	conn := dueConnector(t, km, kb.ID)

	var seen []knowledge.DueSync
	s := New(km, func(o *Options) {
		o.Hook = func(_ context.Context, d knowledge.DueSync) error {
			seen = append(seen, d)
			return nil
		}
	})

	assert.Equal(t, 1, s.RunOnce(context.Background()))
	require.Len(t, seen, 1)
	assert.Equal(t, kb.ID, seen[0].KBID)
	assert.Equal(t, conn.ConnectorID, seen[0].ConnectorID)
}

func TestRunStopsOnCancel(t *testing.T) {
	km := knowledge.NewManager()
	s := New(km, func(o *Options) { o.Interval = 10 * time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
