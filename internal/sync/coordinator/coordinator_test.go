package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-registry-bridge/internal/clock"
	"github.com/stacklok/toolhive-registry-bridge/internal/config"
	"github.com/stacklok/toolhive-registry-bridge/internal/eviction"
	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
	"github.com/stacklok/toolhive-registry-bridge/internal/sources"
	sourcemocks "github.com/stacklok/toolhive-registry-bridge/internal/sources/mocks"
	"github.com/stacklok/toolhive-registry-bridge/internal/status"
	pkgsync "github.com/stacklok/toolhive-registry-bridge/internal/sync"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGetRoundInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		eviction *config.EvictionConfig
		expected time.Duration
	}{
		{
			name:     "nil config returns default",
			eviction: nil,
			expected: time.Minute,
		},
		{
			name:     "empty interval returns default",
			eviction: &config.EvictionConfig{},
			expected: time.Minute,
		},
		{
			name:     "valid interval is parsed correctly",
			eviction: &config.EvictionConfig{RoundInterval: "5m"},
			expected: 5 * time.Minute,
		},
		{
			name:     "invalid interval returns default",
			eviction: &config.EvictionConfig{RoundInterval: "invalid"},
			expected: time.Minute,
		},
		{
			name:     "negative interval returns default",
			eviction: &config.EvictionConfig{RoundInterval: "-1s"},
			expected: time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, getRoundInterval(tt.eviction))
		})
	}
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	coordinator := New(nil, clock.NewVirtualScheduler(epoch), &config.Config{})

	// Stop should not panic if called before Start
	assert.NoError(t, coordinator.Stop())
}

func newChannel(
	t *testing.T, name string, src sources.Source, s sink.Sink, sched clock.Scheduler, opts ...pkgsync.ChannelOption,
) *pkgsync.Channel {
	t.Helper()
	ch, err := pkgsync.NewChannel(name, src, s, sched, 10*time.Second, opts...)
	require.NoError(t, err)
	return ch
}

// startCoordinator runs Start in the background and waits until want tasks are scheduled
func startCoordinator(t *testing.T, c Coordinator, sched *clock.VirtualScheduler, want int) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(context.Background())
	}()
	require.Eventually(t, func() bool { return sched.Pending() == want }, 5*time.Second, time.Millisecond)
	return errCh
}

func TestCoordinator_RunsChannelsIndependently(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	healthy := sourcemocks.NewMockSource(ctrl)
	broken := sourcemocks.NewMockSource(ctrl)
	healthy.EXPECT().Name().Return("healthy").AnyTimes()
	broken.EXPECT().Name().Return("broken").AnyTimes()
	healthy.EXPECT().ListInstances(gomock.Any()).
		Return(sources.Descriptors(registry.NewTestInstance("a")), nil).MinTimes(1)
	broken.EXPECT().ListInstances(gomock.Any()).
		Return(nil, assert.AnError).MinTimes(1)

	s := sink.NewMemorySink()
	sched := clock.NewVirtualScheduler(epoch)
	channels := []*pkgsync.Channel{
		newChannel(t, "east", healthy, s, sched),
		newChannel(t, "west", broken, s, sched),
	}
	coordinator := New(channels, sched, &config.Config{})

	errCh := startCoordinator(t, coordinator, sched, 2)
	sched.AdvanceBy(0)
	sched.AdvanceBy(10 * time.Second)

	statuses := coordinator.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "east", statuses[0].Name)
	assert.Equal(t, status.ChannelPhaseActive, statuses[0].Phase)
	assert.Equal(t, status.ChannelPhaseDegraded, statuses[1].Phase)
	assert.Equal(t, 2, statuses[1].ConsecutiveFailures)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, coordinator.Stop())
	require.NoError(t, <-errCh)
	for _, ch := range channels {
		assert.Equal(t, status.ChannelPhaseClosed, ch.State())
	}
	assert.Zero(t, sched.Pending())
}

func TestCoordinator_EvictionRounds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := sink.NewMemorySink()
	sched := clock.NewVirtualScheduler(epoch)
	queue := eviction.NewQueue(eviction.PercentageGuarded{Percentage: 0.25}, s.Count)

	records := make([]registry.InstanceRecord, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		records = append(records, registry.NewTestInstance(id))
	}
	src := &stepSource{pulls: [][]registry.InstanceRecord{records, records[:4]}}

	ch := newChannel(t, "east", src, s, sched, pkgsync.WithEvictionQueue(queue))
	cfg := &config.Config{Eviction: &config.EvictionConfig{Enabled: true, RoundInterval: "30s"}}
	coordinator := New([]*pkgsync.Channel{ch}, sched, cfg, WithEvictionQueue(queue))

	errCh := startCoordinator(t, coordinator, sched, 2)
	sched.AdvanceBy(0)
	sched.AdvanceBy(10 * time.Second)
	require.Equal(t, 4, queue.Len())

	// 25% of 8 registered instances per round
	sched.AdvanceBy(20 * time.Second)
	assert.Equal(t, 2, queue.Len())
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	// ceil(0.25 * 6) = 2
	sched.AdvanceBy(30 * time.Second)
	assert.Zero(t, queue.Len())

	require.NoError(t, coordinator.Stop())
	require.NoError(t, <-errCh)
	assert.Zero(t, sched.Pending())
}

func TestCoordinator_ConnectFailure(t *testing.T) {
	t.Parallel()

	sched := clock.NewVirtualScheduler(epoch)
	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)

	first := newChannel(t, "first", src, sink.NewMemorySink(), sched)
	second := newChannel(t, "second", src, sink.NewMemorySink(), sched)
	require.NoError(t, second.Close())

	coordinator := New([]*pkgsync.Channel{first, second}, sched, &config.Config{})
	err := coordinator.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, status.ChannelPhaseClosed, first.State())
	assert.Zero(t, sched.Pending())

	require.NoError(t, coordinator.Stop())
}

func TestCoordinator_ContextCancellation(t *testing.T) {
	t.Parallel()

	sched := clock.NewVirtualScheduler(epoch)
	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	ch := newChannel(t, "east", src, sink.NewMemorySink(), sched)
	coordinator := New([]*pkgsync.Channel{ch}, sched, &config.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- coordinator.Start(ctx) }()
	require.Eventually(t, func() bool { return sched.Pending() == 1 }, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop after context cancellation")
	}
	assert.Equal(t, status.ChannelPhaseClosed, ch.State())
}

// stepSource returns one scripted snapshot per pull and repeats the last one
type stepSource struct {
	pulls [][]registry.InstanceRecord
	calls int
}

func (s *stepSource) Name() string { return "step" }

func (s *stepSource) ListInstances(context.Context) ([]sources.Descriptor, error) {
	recs := s.pulls[min(s.calls, len(s.pulls)-1)]
	s.calls++
	return sources.Descriptors(recs...), nil
}
