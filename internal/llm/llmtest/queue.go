// Package llmtest provides a scripted model caller for tests.
package llmtest

import (
	"context"
	"sync"
)

// QueueCaller replays Responses in order and records every prompt. When a
// matching entry in Errs is non-nil it is returned instead. Once the queue is
// empty it answers "{}".
type QueueCaller struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error
	Prompts   []string
}

func New(responses ...string) *QueueCaller {
	return &QueueCaller{Responses: responses}
}

func (q *QueueCaller) GenerateJSON(_ context.Context, prompt string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Prompts = append(q.Prompts, prompt)
	var err error
	if len(q.Errs) > 0 {
		err = q.Errs[0]
		q.Errs = q.Errs[1:]
	}
	if len(q.Responses) == 0 {
		if err != nil {
			return "", err
		}
		return "{}", nil
	}
	r := q.Responses[0]
	q.Responses = q.Responses[1:]
	if err != nil {
		return "", err
	}
	return r, nil
}

func (q *QueueCaller) ModelName() string { return "queue-model" }

// Calls returns how many prompts were sent.
func (q *QueueCaller) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Prompts)
}
