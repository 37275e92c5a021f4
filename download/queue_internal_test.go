package download

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(trackID string) *Job {
	return &Job{ID: "job-" + trackID, Request: Request{TrackID: trackID, URL: "https://example.com/" + trackID, Ext: "webm", Size: 0}, State: StateQueued, Attempt: 0}
}

func trackIDs(jobs []*Job) []string {
	return lo.Map(jobs, func(j *Job, _ int) string { return j.Request.TrackID })
}

func TestQueueSubmitStartsUpToLimit(t *testing.T) {
	t.Parallel()

	q := newQueue(4, 3, OrderFIFO)
	for _, id := range []string{"a", "b", "c", "d"} {
		accepted, start := q.submit(job(id))
		require.True(t, accepted)
		require.Equal(t, []string{id}, trackIDs(start))
		assert.Equal(t, StateRunning, start[0].State)
		assert.Equal(t, 1, start[0].Attempt)
	}

	accepted, start := q.submit(job("e"))
	assert.True(t, accepted)
	assert.Empty(t, start)
	require.Len(t, q.pending, 1)
	assert.Equal(t, StateQueued, q.pending[0].State)

	_, start = q.succeed("b")
	assert.Equal(t, []string{"e"}, trackIDs(start))
}

func TestQueueIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	q := newQueue(1, 3, OrderFIFO)
	accepted, _ := q.submit(job("a"))
	require.True(t, accepted)
	accepted, _ = q.submit(job("b"))
	require.True(t, accepted)

	accepted, start := q.submit(job("a"))
	assert.False(t, accepted)
	assert.Empty(t, start)
	accepted, _ = q.submit(job("b"))
	assert.False(t, accepted)
	assert.Len(t, q.pending, 1)
}

func TestQueueOrder(t *testing.T) {
	t.Parallel()

	for order, want := range map[Order][]string{
		OrderFIFO: {"b", "c", "d"},
		OrderLIFO: {"d", "c", "b"},
	} {
		q := newQueue(1, 3, order)
		for _, id := range []string{"a", "b", "c", "d"} {
			q.submit(job(id))
		}

		var got []string
		current := "a"
		for range 3 {
			_, start := q.succeed(current)
			require.Len(t, start, 1)
			current = start[0].Request.TrackID
			got = append(got, current)
		}
		assert.Equal(t, want, got, "order %d", order)
	}
}

func TestQueueRetriesThenAbandons(t *testing.T) {
	t.Parallel()

	q := newQueue(1, 3, OrderFIFO)
	_, start := q.submit(job("a"))
	require.Equal(t, 1, start[0].Attempt)

	for attempt := 1; attempt < 3; attempt++ {
		done, abandoned, start := q.fail("a")
		require.NotNil(t, done)
		assert.Equal(t, StateFailed, done.State)
		assert.False(t, abandoned)
		require.Equal(t, []string{"a"}, trackIDs(start), "retry starts immediately when a slot is free")
		assert.Equal(t, attempt+1, start[0].Attempt)
	}

	done, abandoned, start := q.fail("a")
	assert.True(t, abandoned)
	assert.Equal(t, StateAbandoned, done.State)
	assert.Empty(t, start, "no fourth automatic attempt")
	assert.Empty(t, q.pending)
	assert.Empty(t, q.running)

	accepted, start := q.submit(job("a"))
	require.True(t, accepted)
	require.Len(t, start, 1)
	assert.Equal(t, 1, start[0].Attempt, "manual resubmission starts counting from zero")
}

func TestQueueFailedJobRequeuedBehindPending(t *testing.T) {
	t.Parallel()

	q := newQueue(1, 3, OrderFIFO)
	q.submit(job("a"))
	q.submit(job("b"))

	_, _, start := q.fail("a")
	assert.Equal(t, []string{"b"}, trackIDs(start))
	assert.Equal(t, []string{"a"}, trackIDs(q.pending))

	_, start = q.succeed("b")
	require.Equal(t, []string{"a"}, trackIDs(start))
	assert.Equal(t, 2, start[0].Attempt)
}

func TestQueueLIFORetriesSameTrackFirst(t *testing.T) {
	t.Parallel()

	q := newQueue(1, 3, OrderLIFO)
	q.submit(job("a"))
	q.submit(job("b"))

	_, _, start := q.fail("a")
	assert.Equal(t, []string{"a"}, trackIDs(start))
}

func TestQueueSuccessResetsFailures(t *testing.T) {
	t.Parallel()

	q := newQueue(1, 3, OrderFIFO)
	q.submit(job("a"))
	q.fail("a")
	q.fail("a")
	q.succeed("a")

	_, start := q.submit(job("a"))
	require.Len(t, start, 1)
	assert.Equal(t, 1, start[0].Attempt)
}

func TestQueueDrop(t *testing.T) {
	t.Parallel()

	q := newQueue(1, 3, OrderFIFO)
	q.submit(job("a"))
	q.submit(job("b"))

	assert.False(t, q.drop("a"), "running jobs cannot be dropped")
	assert.True(t, q.drop("b"))
	assert.False(t, q.drop("b"))

	_, start := q.succeed("a")
	assert.Empty(t, start)
}

func TestQueueUnknownTransitions(t *testing.T) {
	t.Parallel()

	q := newQueue(1, 3, OrderFIFO)
	done, start := q.succeed("ghost")
	assert.Nil(t, done)
	assert.Empty(t, start)

	done, abandoned, start := q.fail("ghost")
	assert.Nil(t, done)
	assert.False(t, abandoned)
	assert.Empty(t, start)
}
