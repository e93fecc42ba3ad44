package testsupport

import (
	"context"
	"sync"

	"asyncref/internal/refindex"
)

// RecordingIndexer is an in-memory refindex.Indexer that records every call.
type RecordingIndexer struct {
	mu        sync.Mutex
	records   []refindex.Request
	full      []refindex.FullRequest
	instances int

	// Result is returned by every successful call.
	Result refindex.Result
	// FailOn maps Request.String() values to the error UpdateRecord returns.
	FailOn map[string]error
	// FullErr is returned by UpdateAll.
	FullErr error
	// OnRecord, when set, runs before UpdateRecord returns.
	OnRecord func(refindex.Request)
}

// Factory returns a refindex.Factory that counts instances handed out.
func (r *RecordingIndexer) Factory() refindex.Factory {
	return func() refindex.Indexer {
		r.mu.Lock()
		r.instances++
		r.mu.Unlock()
		return r
	}
}

// UpdateRecord records req and returns Result or the configured failure.
func (r *RecordingIndexer) UpdateRecord(_ context.Context, req refindex.Request) (refindex.Result, error) {
	r.mu.Lock()
	r.records = append(r.records, req)
	err := r.FailOn[req.String()]
	hook := r.OnRecord
	r.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if err != nil {
		return refindex.Result{}, err
	}
	return r.Result, nil
}

// UpdateAll records req and returns Result or FullErr.
func (r *RecordingIndexer) UpdateAll(_ context.Context, req refindex.FullRequest) (refindex.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full = append(r.full, req)
	if r.FullErr != nil {
		return refindex.Result{}, r.FullErr
	}
	return r.Result, nil
}

// Records returns a copy of recorded per-record requests.
func (r *RecordingIndexer) Records() []refindex.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]refindex.Request(nil), r.records...)
}

// FullRuns returns a copy of recorded full recompute requests.
func (r *RecordingIndexer) FullRuns() []refindex.FullRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]refindex.FullRequest(nil), r.full...)
}

// Instances reports how many indexers the factory handed out.
func (r *RecordingIndexer) Instances() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances
}
