package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/application"
	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
	"github.com/ericfisherdev/lifesync/internal/vault"
)

// concurrencyGauge counts in-flight calls and remembers the peak.
type concurrencyGauge struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *concurrencyGauge) enter() {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()
}

func (g *concurrencyGauge) exit() {
	g.mu.Lock()
	g.current--
	g.mu.Unlock()
}

func (g *concurrencyGauge) max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

func schedulerFixture(t *testing.T, due []model.Credential, gauge *concurrencyGauge, workers int) (*application.Scheduler, *mockJobLogStore) {
	t.Helper()

	v, err := vault.New(nil)
	require.NoError(t, err)

	creds := newMockCredentialStore(due...)
	creds.due = due
	jobs := newMockJobLogStore()
	records := newMockRecordStore()
	locks := newMockLockStore()

	clients := make(map[model.Platform]driven.PlatformClient)
	for _, c := range due {
		clients[c.Platform] = &mockPlatformClient{
			platform: c.Platform,
			fetch: func(_ context.Context, _ model.Credential, _ time.Time) (*driven.FetchResult, error) {
				if gauge != nil {
					gauge.enter()
					defer gauge.exit()
					time.Sleep(20 * time.Millisecond)
				}
				return &driven.FetchResult{}, nil
			},
		}
	}

	orch := application.NewSyncOrchestrator(creds, jobs, records, locks, clients, v, 30*time.Minute, 5)
	return application.NewScheduler(creds, orch, 10*time.Millisecond, workers), jobs
}

func dueCred(id string, platform model.Platform) model.Credential {
	return model.Credential{
		ID:       id,
		Platform: platform,
		Type:     model.CredentialTypeCookie,
		Value:    "secret",
		IsValid:  true,
		AutoSync: true,
		SyncFreq: model.FrequencyDaily,
	}
}

func TestSchedulerRunsDueCredentials(t *testing.T) {
	due := []model.Credential{
		dueCred("c-bili", model.PlatformBilibili),
		dueCred("c-douban", model.PlatformDouban),
	}
	sched, jobs := schedulerFixture(t, due, nil, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(jobs.created()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	var platforms []model.Platform
	for _, job := range jobs.created() {
		platforms = append(platforms, job.Platform)
		assert.Equal(t, model.TriggerAuto, job.TriggeredBy)
		assert.True(t, job.Status.Terminal(), "scheduler path runs jobs to completion")
	}
	assert.Contains(t, platforms, model.PlatformBilibili)
	assert.Contains(t, platforms, model.PlatformDouban)
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	due := []model.Credential{
		dueCred("c1", model.PlatformBilibili),
		dueCred("c2", model.PlatformDouban),
		dueCred("c3", model.PlatformSteam),
		dueCred("c4", model.PlatformJellyfin),
	}
	gauge := &concurrencyGauge{}
	sched, jobs := schedulerFixture(t, due, gauge, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(jobs.created()) >= 4
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.LessOrEqual(t, gauge.max(), 2, "worker pool must cap concurrent syncs")
}
