package download

// queue is the job state machine. It performs no I/O; every transition
// returns the jobs the caller must start.
type queue struct {
	maxRunning  int
	maxAttempts int
	order       Order
	running     map[string]*Job
	pending     []*Job
	failures    map[string]int
}

func newQueue(maxRunning, maxAttempts int, order Order) *queue {
	return &queue{
		maxRunning:  maxRunning,
		maxAttempts: maxAttempts,
		order:       order,
		running:     make(map[string]*Job, maxRunning),
		pending:     nil,
		failures:    make(map[string]int),
	}
}

func (q *queue) has(trackID string) bool {
	if _, ok := q.running[trackID]; ok {
		return true
	}
	for _, j := range q.pending {
		if j.Request.TrackID == trackID {
			return true
		}
	}
	return false
}

// submit enqueues job unless its track is already running or pending.
func (q *queue) submit(job *Job) (accepted bool, start []*Job) {
	if q.has(job.Request.TrackID) {
		return false, nil
	}
	job.State = StateQueued
	q.pending = append(q.pending, job)
	return true, q.fill()
}

// succeed finishes the running job of trackID and resets its failure count.
func (q *queue) succeed(trackID string) (done *Job, start []*Job) {
	job, ok := q.running[trackID]
	if !ok {
		return nil, q.fill()
	}
	delete(q.running, trackID)
	delete(q.failures, trackID)
	job.State = StateSucceeded
	return job, q.fill()
}

// fail finishes the running job of trackID. While the track has failed fewer
// than maxAttempts times the job goes back to the pending queue; otherwise it
// is abandoned and the failure count is cleared so a later submit starts over.
func (q *queue) fail(trackID string) (done *Job, abandoned bool, start []*Job) {
	job, ok := q.running[trackID]
	if !ok {
		return nil, false, q.fill()
	}
	delete(q.running, trackID)
	job.State = StateFailed

	q.failures[trackID]++
	if q.failures[trackID] >= q.maxAttempts {
		delete(q.failures, trackID)
		job.State = StateAbandoned
		return job, true, q.fill()
	}

	retry := *job
	retry.State = StateQueued
	q.pending = append(q.pending, &retry)
	return job, false, q.fill()
}

// drop removes a pending job. Running jobs are never dropped.
func (q *queue) drop(trackID string) bool {
	for i, j := range q.pending {
		if j.Request.TrackID == trackID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (q *queue) pop() *Job {
	var j *Job
	switch q.order {
	case OrderLIFO:
		last := len(q.pending) - 1
		j = q.pending[last]
		q.pending = q.pending[:last]
	default:
		j = q.pending[0]
		q.pending = q.pending[1:]
	}
	return j
}

func (q *queue) fill() []*Job {
	var start []*Job
	for len(q.running) < q.maxRunning && len(q.pending) > 0 {
		j := q.pop()
		j.State = StateRunning
		j.Attempt = q.failures[j.Request.TrackID] + 1
		q.running[j.Request.TrackID] = j
		start = append(start, j)
	}
	return start
}

func (q *queue) snapshot() (running []Job, pending []Job) {
	for _, j := range q.running {
		running = append(running, *j)
	}
	for _, j := range q.pending {
		pending = append(pending, *j)
	}
	return running, pending
}
