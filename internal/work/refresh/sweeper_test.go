package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casework/internal/work/models"
	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
	"casework/pkg/requestcontext"
)

type fakeService struct {
	due       []*models.WorkItem
	marked    []domain.WorkItemID
	markErrs  map[domain.WorkItemID]error
	listedNow time.Time
	actor     string
}

func (f *fakeService) ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.WorkItem, error) {
	f.listedNow = now
	f.actor = requestcontext.Actor(ctx)
	return f.due, nil
}

func (f *fakeService) MarkForRefresh(_ context.Context, id domain.WorkItemID) (*models.WorkItem, error) {
	if err := f.markErrs[id]; err != nil {
		return nil, err
	}
	f.marked = append(f.marked, id)
	return &models.WorkItem{ID: id, Status: models.StatusDueForRefresh}, nil
}

func TestSweepMarksEveryDueItem(t *testing.T) {
	first := &models.WorkItem{ID: domain.NewWorkItemID()}
	second := &models.WorkItem{ID: domain.NewWorkItemID()}
	svc := &fakeService{due: []*models.WorkItem{first, second}}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	New(svc).Sweep(requestcontext.WithTime(context.Background(), now))

	assert.Equal(t, now, svc.listedNow)
	assert.Equal(t, "system", svc.actor, "sweep runs as the system actor")
	require.Len(t, svc.marked, 2)
	assert.Equal(t, []domain.WorkItemID{first.ID, second.ID}, svc.marked)
}

func TestSweepSkipsLostRaces(t *testing.T) {
	raced := &models.WorkItem{ID: domain.NewWorkItemID()}
	reopened := &models.WorkItem{ID: domain.NewWorkItemID()}
	ok := &models.WorkItem{ID: domain.NewWorkItemID()}
	svc := &fakeService{
		due: []*models.WorkItem{raced, reopened, ok},
		markErrs: map[domain.WorkItemID]error{
			raced.ID:    dErrors.New(dErrors.CodeConcurrencyConflict, "modified concurrently"),
			reopened.ID: dErrors.New(dErrors.CodeInvalidState, "cannot mark for refresh from status assigned"),
		},
	}

	New(svc).Sweep(context.Background())

	require.Len(t, svc.marked, 1, "skipped items do not abort the sweep")
	assert.Equal(t, ok.ID, svc.marked[0])
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := New(&fakeService{}, WithInterval(time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
