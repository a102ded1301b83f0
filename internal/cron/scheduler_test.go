package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type stubJob struct {
	name string
	rows int
	err  error
	runs int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(context.Context) (int, error) {
	j.runs++
	return j.rows, j.err
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"})
	assert.Error(t, err)

	reg, err := NewRegistry(&stubJob{name: "a"}, nil, &stubJob{name: "b"})
	require.NoError(t, err)
	assert.Len(t, reg.Jobs(), 2)
}

func TestRunOnceRunsEveryJobAndRecordsOutcome(t *testing.T) {
	ok := &stubJob{name: "ok", rows: 4}
	failing := &stubJob{name: "failing", err: errors.New("boom")}
	reg, err := NewRegistry(failing, ok)
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	lock := &fakeLock{}
	s, err := NewScheduler(SchedulerParams{
		Logger:   logger.Nop(),
		Registry: reg,
		Lock:     lock,
		Metrics:  metrics.NewMaintenanceMetrics(promReg),
	})
	require.NoError(t, err)

	ran, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.False(t, lock.held)
	assert.Equal(t, 1, lock.releases)

	count, err := testutil.GatherAndCount(promReg, "maintenance_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(promReg, "maintenance_job_findings")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "failed runs keep the previous findings value")
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &stubJob{name: "job"}
	reg, err := NewRegistry(job)
	require.NoError(t, err)
	s, err := NewScheduler(SchedulerParams{Logger: logger.Nop(), Registry: reg, Lock: &fakeLock{held: true}})
	require.NoError(t, err)

	ran, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, job.runs)
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	s, err := NewScheduler(SchedulerParams{Logger: logger.Nop(), Registry: reg, Lock: &fakeLock{err: errors.New("redis down")}})
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	job := &stubJob{name: "job"}
	reg, err := NewRegistry(job)
	require.NoError(t, err)
	s, err := NewScheduler(SchedulerParams{Logger: logger.Nop(), Registry: reg, Lock: &fakeLock{}, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, job.runs)
}

type memoryLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := &memoryLockStore{data: map[string]string{}}
	first, err := NewRedisLock(store, "prod", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "prod", 0)
	require.NoError(t, err)
	assert.Equal(t, "cron:maintenance:lock:prod", first.Key())

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(context.Background()))
	_, err = store.Get(context.Background(), first.Key())
	require.NoError(t, err, "a non-owner release must leave the lease in place")

	require.NoError(t, first.Release(context.Background()))
	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
