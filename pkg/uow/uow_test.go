package uow_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/track"
	"github.com/dialogkit/treeflow/pkg/uow"
)

type recordingFlusher struct {
	calls int
	flows []*models.TreeFlow
}

func (f *recordingFlusher) Flush(_ context.Context, dirty *track.DirtySet) {
	f.calls++
	f.flows = append(f.flows, dirty.Flows()...)
}

func TestUnitOfWork_TracksMutationsIntoDirtySet(t *testing.T) {
	t.Parallel()

	flow := &models.TreeFlow{ID: "flow-1", Name: "One", Slug: "one"}
	step := &models.Step{ID: "step-1", Name: "Step"}
	flow.AttachStep(step)

	u := uow.New(slog.Default(), nil)
	u.Insert(step)

	assert.True(t, u.Dirty().Contains(flow))
}

func TestUnitOfWork_CommitRunsStagesThenFlushes(t *testing.T) {
	t.Parallel()

	flow := &models.TreeFlow{ID: "flow-1", Name: "One", Slug: "one"}
	flusher := &recordingFlusher{}

	var order []string

	u := uow.New(slog.Default(), flusher)
	u.Update(flow, "name")
	u.Stage(func(context.Context) error {
		order = append(order, "write")

		return nil
	})

	require.NoError(t, u.Commit(context.Background()))

	assert.Equal(t, []string{"write"}, order)
	assert.Equal(t, 1, flusher.calls)
	require.Len(t, flusher.flows, 1)
	assert.Same(t, flow, flusher.flows[0])
}

func TestUnitOfWork_StageFailureAbortsBeforeFlush(t *testing.T) {
	t.Parallel()

	flusher := &recordingFlusher{}
	writeErr := errors.New("disk full")

	u := uow.New(slog.Default(), flusher)
	u.Update(&models.TreeFlow{ID: "flow-1", Name: "One", Slug: "one"}, "name")
	u.Stage(func(context.Context) error { return writeErr })

	err := u.Commit(context.Background())

	require.ErrorIs(t, err, writeErr)
	assert.Equal(t, 0, flusher.calls)
}

func TestUnitOfWork_StagesRunInOrder(t *testing.T) {
	t.Parallel()

	var order []int

	u := uow.New(slog.Default(), nil)
	for i := range 3 {
		u.Stage(func(context.Context) error {
			order = append(order, i)

			return nil
		})
	}

	require.NoError(t, u.Commit(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestUnitOfWork_DeleteDropsFlowFromDirtySet(t *testing.T) {
	t.Parallel()

	flow := &models.TreeFlow{ID: "flow-1", Name: "One", Slug: "one"}

	u := uow.New(slog.Default(), nil)
	u.Update(flow, "name")
	require.True(t, u.Dirty().Contains(flow))

	u.Delete(flow)
	assert.False(t, u.Dirty().Contains(flow))
}

func TestUnitOfWork_AdditionalObserverSeesMutations(t *testing.T) {
	t.Parallel()

	extra := track.NewDirtySet()
	flow := &models.TreeFlow{ID: "flow-1", Name: "One", Slug: "one"}

	u := uow.New(slog.Default(), nil)
	u.Observe(track.NewTracker(extra, slog.Default()))
	u.Insert(flow)

	assert.True(t, u.Dirty().Contains(flow))
	assert.True(t, extra.Contains(flow))
}
