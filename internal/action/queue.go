package action

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/openkcm/member-manager/internal/identity"
)

// lanes runs actions of the same issuer one at a time. Waiters are served
// in arrival order.
type lanes struct {
	mu       sync.Mutex
	byIssuer map[identity.Identity]*lane
}

type lane struct {
	sem  *semaphore.Weighted
	refs int
}

func newLanes() *lanes {
	return &lanes{byIssuer: make(map[identity.Identity]*lane)}
}

func (l *lanes) acquire(ctx context.Context, issuer identity.Identity) (release func(), _ error) {
	l.mu.Lock()
	ln, ok := l.byIssuer[issuer]
	if !ok {
		ln = &lane{sem: semaphore.NewWeighted(1)}
		l.byIssuer[issuer] = ln
	}
	ln.refs++
	l.mu.Unlock()

	if err := ln.sem.Acquire(ctx, 1); err != nil {
		l.leave(issuer, ln)
		return nil, err
	}

	return func() {
		ln.sem.Release(1)
		l.leave(issuer, ln)
	}, nil
}

func (l *lanes) leave(issuer identity.Identity, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln.refs--
	if ln.refs == 0 {
		delete(l.byIssuer, issuer)
	}
}

func (l *lanes) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byIssuer)
}
