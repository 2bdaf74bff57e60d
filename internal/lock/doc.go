// Package lock provides the per-session critical section used by the
// checklist mutation engine.
//
// KeyedMutex serializes holders of the same key inside one process and lets
// different keys proceed in parallel. RedisLocker extends the same guarantee
// across replicas with a token-checked Redis lock that expires after a TTL,
// so a crashed holder cannot wedge a session. Both honor context deadlines:
// a caller waits for a key at most until its context is done.
package lock

import "errors"

// ErrTimeout is returned when a lock could not be acquired before the
// caller's context was done.
var ErrTimeout = errors.New("lock not acquired before deadline")
