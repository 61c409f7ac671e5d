package limiter

import (
	"context"
	"sync"
	"time"

	"mqtt-alert-bridge/internal/rule"
)

// Store is the durable backing for dispatch timestamps. Counts survive
// process restarts, so rate-limit budgets do too.
type Store interface {
	CountDispatchesSince(ctx context.Context, ruleID int64, since int64) (int, error)
	AppendDispatchLog(ctx context.Context, ruleID int64, ts int64) error
}

// Limiter enforces per-rule sliding-window dispatch budgets. Checks for a
// given rule are serialized through a per-rule mutex so two concurrent
// observations cannot both pass the budget check.
type Limiter struct {
	store Store

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a limiter backed by store
func New(store Store) *Limiter {
	return &Limiter{
		store: store,
		locks: make(map[int64]*sync.Mutex),
	}
}

func (l *Limiter) ruleLock(ruleID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[ruleID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[ruleID] = lock
	}
	return lock
}

// MayDispatch reports whether a dispatch at now stays within the rule's
// budget. The trailing window is [now-period, now]: a dispatch recorded at t
// is still counted by a check at exactly t+period.
func (l *Limiter) MayDispatch(ctx context.Context, r *rule.Rule, now time.Time) (bool, error) {
	since := now.Unix() - int64(r.PeriodSeconds)
	count, err := l.store.CountDispatchesSince(ctx, r.ID, since)
	if err != nil {
		return false, err
	}
	return count < r.MaxDispatches, nil
}

// RecordDispatch consumes one budget slot at now
func (l *Limiter) RecordDispatch(ctx context.Context, ruleID int64, now time.Time) error {
	return l.store.AppendDispatchLog(ctx, ruleID, now.Unix())
}

// Admit checks the budget and, if there is room, consumes a slot. Check and
// record happen under the rule's lock; callers must not dispatch for a rule
// unless Admit returned true.
func (l *Limiter) Admit(ctx context.Context, r *rule.Rule, now time.Time) (bool, error) {
	lock := l.ruleLock(r.ID)
	lock.Lock()
	defer lock.Unlock()

	ok, err := l.MayDispatch(ctx, r, now)
	if err != nil || !ok {
		return false, err
	}

	if err := l.RecordDispatch(ctx, r.ID, now); err != nil {
		return false, err
	}
	return true, nil
}
