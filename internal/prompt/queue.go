package prompt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chaseai/chaseai/internal/approval"
)

// DefaultPollInterval is how often Queue checks for a resolution.
const DefaultPollInterval = 250 * time.Millisecond

// Queue writes each request to an approval store and waits for another
// process (chaseai approve/deny) to resolve it.
type Queue struct {
	store    *approval.Store
	interval time.Duration
}

// NewQueue opens the approval store in dir.
func NewQueue(dir string) (*Queue, error) {
	s, err := approval.NewStore(dir)
	if err != nil {
		return nil, err
	}
	return NewQueueFromStore(s, DefaultPollInterval), nil
}

// NewQueueFromStore wraps an existing store.
func NewQueueFromStore(s *approval.Store, interval time.Duration) *Queue {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Queue{store: s, interval: interval}
}

// Store returns the backing approval store.
func (q *Queue) Store() *approval.Store {
	return q.store
}

// Prompt files a pending approval and blocks until it is resolved or ctx
// is done. The approval file is removed once answered.
func (q *Queue) Prompt(ctx context.Context, req Request) (Response, error) {
	req = Normalize(req)
	key := uuid.NewString()

	err := q.store.Request(approval.Approval{
		Key:     key,
		TaskID:  req.TaskID,
		Action:  req.Action,
		Reason:  req.Reason,
		Context: req.Context,
		Buttons: req.Buttons,
	})
	if err != nil {
		return Response{}, fmt.Errorf("prompt: queue request: %w", err)
	}
	defer q.store.Remove(key)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		a, err := q.store.Get(key)
		if err != nil {
			return Response{}, fmt.Errorf("prompt: queue lookup: %w", err)
		}
		switch a.Status {
		case approval.StatusResolved:
			return Response{Index: a.Selected, Message: a.Message}, nil
		case approval.StatusCancelled:
			return Response{Index: len(req.Buttons), Message: a.Message}, nil
		}

		select {
		case <-ctx.Done():
			q.store.Cancel(key, "caller disconnected")
			return Response{Index: len(req.Buttons)}, ctx.Err()
		case <-ticker.C:
		}
	}
}
