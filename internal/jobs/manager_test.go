package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"heirloom/internal/adapter/repo"
	"heirloom/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.JobEvent
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, e domain.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func (m *memBlobs) Write(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *memBlobs) Read(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, "", domain.ErrBlobNotFound
	}
	return d, "", nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type fixture struct {
	mgr    *Manager
	clock  *fakeClock
	events *recordingEvents
	blobs  *memBlobs
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		clock:  &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		events: &recordingEvents{},
		blobs:  &memBlobs{data: map[string][]byte{}},
	}
	mgr, err := NewManager(Options{
		Repo:   repo.NewMemoryJobRepository(),
		Blobs:  f.blobs,
		Events: f.events,
		Now:    f.clock.Now,
	})
	require.NoError(t, err)
	f.mgr = mgr
	return f
}

func TestNewManagerRequiresRepo(t *testing.T) {
	_, err := NewManager(Options{})
	require.Error(t, err)
}

func TestCreateStartsProcessing(t *testing.T) {
	f := newFixture(t)
	job, err := f.mgr.Create(context.Background(), "grandma.png")
	require.NoError(t, err)

	require.Equal(t, domain.JobStatusProcessing, job.Status)
	require.Equal(t, "grandma.png", job.OriginalFilename)
	require.Equal(t, "restored_"+job.ID+".jpg", job.RestoredFilename)
	require.Equal(t, f.clock.Now(), job.CreatedAt)
	require.Nil(t, job.ProcessingTime)
	require.Nil(t, job.ErrorMessage)

	stored, err := f.mgr.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, *job, *stored)
}

func TestCreateDefaultsFilename(t *testing.T) {
	f := newFixture(t)
	job, err := f.mgr.Create(context.Background(), "   ")
	require.NoError(t, err)
	require.Equal(t, domain.UnknownFilename, job.OriginalFilename)
}

func TestCreateUsesFreshIDs(t *testing.T) {
	f := newFixture(t)
	a, _ := f.mgr.Create(context.Background(), "a.jpg")
	b, _ := f.mgr.Create(context.Background(), "a.jpg")
	require.NotEqual(t, a.ID, b.ID)
}

func TestCompleteRecordsDurationAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.mgr.Create(ctx, "a.jpg")

	require.NoError(t, f.mgr.Complete(ctx, job.ID, 2500*time.Millisecond))

	got, err := f.mgr.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCompleted, got.Status)
	require.Equal(t, 2500*time.Millisecond, *got.ProcessingTime)
	require.Nil(t, got.ErrorMessage)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	require.Equal(t, job.ID, ev.JobID)
	require.Equal(t, domain.JobStatusCompleted, ev.Status)
	require.InDelta(t, 2.5, *ev.ProcessingTime, 1e-9)
}

func TestCompleteClampsNonPositiveDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.mgr.Create(ctx, "a.jpg")
	require.NoError(t, f.mgr.Complete(ctx, job.ID, 0))

	got, _ := f.mgr.Get(ctx, job.ID)
	require.Positive(t, int64(*got.ProcessingTime))
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.mgr.Create(ctx, "a.jpg")
	require.NoError(t, f.mgr.Fail(ctx, job.ID, "quota"))

	err := f.mgr.Complete(ctx, job.ID, time.Second)
	require.ErrorIs(t, err, domain.ErrTerminalState)
	err = f.mgr.Fail(ctx, job.ID, "again")
	require.ErrorIs(t, err, domain.ErrTerminalState)

	got, _ := f.mgr.Get(ctx, job.ID)
	require.Equal(t, domain.JobStatusFailed, got.Status)
	require.Equal(t, "quota", *got.ErrorMessage)
	require.Len(t, f.events.events, 1)
}

func TestFailUnknownJob(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.mgr.Fail(context.Background(), "missing", "x"), domain.ErrNotFound)
}

func TestGetIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.mgr.Create(ctx, "a.jpg")
	require.NoError(t, f.mgr.Complete(ctx, job.ID, time.Second))

	first, err := f.mgr.Get(ctx, job.ID)
	require.NoError(t, err)
	second, err := f.mgr.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	_, err = f.mgr.Get(ctx, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublishFailureDoesNotAffectJob(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	ctx := context.Background()
	job, _ := f.mgr.Create(ctx, "a.jpg")

	require.NoError(t, f.mgr.Complete(ctx, job.ID, time.Second))
	got, _ := f.mgr.Get(ctx, job.ID)
	require.Equal(t, domain.JobStatusCompleted, got.Status)
}

func TestListNewestFirstAndClamped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		job, _ := f.mgr.Create(ctx, "a.jpg")
		ids = append(ids, job.ID)
		f.clock.Advance(time.Second)
	}

	jobs, err := f.mgr.List(ctx, 100)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	require.Equal(t, ids[2], jobs[0].ID)
	require.Equal(t, ids[0], jobs[2].ID)

	jobs, err = f.mgr.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	jobs, err = f.mgr.List(ctx, 10_000)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
}

func TestFailStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, _ := f.mgr.Create(ctx, "stale.jpg")
	finished, _ := f.mgr.Create(ctx, "done.jpg")
	require.NoError(t, f.mgr.Complete(ctx, finished.ID, time.Second))
	_ = f.blobs.Write(ctx, stale.RestoredFilename, []byte("orphan"), "")

	f.clock.Advance(10 * time.Minute)
	fresh, _ := f.mgr.Create(ctx, "fresh.jpg")
	f.clock.Advance(6 * time.Minute)

	n, err := f.mgr.FailStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, _ := f.mgr.Get(ctx, stale.ID)
	require.Equal(t, domain.JobStatusFailed, got.Status)
	require.Equal(t, InterruptedMessage, *got.ErrorMessage)
	require.Equal(t, []string{stale.RestoredFilename}, f.blobs.deleted)

	got, _ = f.mgr.Get(ctx, fresh.ID)
	require.Equal(t, domain.JobStatusProcessing, got.Status)
	got, _ = f.mgr.Get(ctx, finished.ID)
	require.Equal(t, domain.JobStatusCompleted, got.Status)

	n, err = f.mgr.FailStale(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, n)
}
