package leaselock

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"merchbot/internal/database"
	"merchbot/internal/database/models"

	"github.com/getsentry/sentry-go"
)

// LeaseKey is the fixed _id of the single coordination row.
const LeaseKey = "ingest_lease"

// minRenewInterval is the floor for the renewal period regardless of TTL.
const minRenewInterval = 10 * time.Second

// Lock elects a single active ingestion instance across redundant
// deployments via a TTL lease row. It prefers availability over strict
// exclusivity: if the lease store is unreachable, the caller proceeds as
// if it had won, on the assumption that a broken store likely means the
// competing instances cannot coordinate anyway.
type Lock struct {
	repo  database.LeaseRepository
	owner Owner
	ttl   time.Duration
	alive Liveness

	mu         sync.Mutex
	held       bool
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewLock creates a lease lock for the given owner. alive defaults to
// PIDAlive when nil.
func NewLock(repo database.LeaseRepository, owner Owner, ttl time.Duration, alive Liveness) *Lock {
	if repo == nil {
		panic("leaselock: nil repository passed to NewLock")
	}
	if alive == nil {
		alive = PIDAlive
	}
	return &Lock{repo: repo, owner: owner, ttl: ttl, alive: alive}
}

// Held reports whether this process currently believes it holds the lease.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Acquire attempts to take the lease. It returns true when this process
// may run the ingestion loop. A true result starts the background
// renewal loop; Release must be called eventually.
//
// The lease is reclaimable when it has expired, or immediately when the
// recorded owner is a process on this host that is verifiably not
// running anymore.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return true, nil
	}

	now := time.Now().Unix()
	me := l.owner.String()

	lease, err := l.repo.Get(ctx, LeaseKey)
	if err != nil {
		log.Printf("[LeaseLock Acquire] Lease store unreachable, proceeding without exclusivity: %v", err)
		sentry.CaptureException(err)
		l.markHeldLocked()
		return true, nil
	}

	if lease == nil {
		err = l.repo.TryInsert(ctx, &models.Lease{Key: LeaseKey, Owner: me, ExpiresAt: now + int64(l.ttl.Seconds())})
		if errors.Is(err, database.ErrLeaseHeld) {
			return false, nil
		}
		if err != nil {
			log.Printf("[LeaseLock Acquire] Lease insert failed, proceeding without exclusivity: %v", err)
			sentry.CaptureException(err)
		}
		l.markHeldLocked()
		return true, nil
	}

	if lease.Owner == me {
		// Our own row survived a restart with the same PID.
		l.markHeldLocked()
		return true, nil
	}

	if !l.reclaimable(lease, now) {
		return false, nil
	}

	err = l.repo.Replace(ctx, &models.Lease{Key: LeaseKey, Owner: me, ExpiresAt: now + int64(l.ttl.Seconds())}, lease.Owner)
	if errors.Is(err, database.ErrLeaseHeld) {
		// Someone else reclaimed it between our read and write.
		return false, nil
	}
	if err != nil {
		log.Printf("[LeaseLock Acquire] Lease takeover failed, proceeding without exclusivity: %v", err)
		sentry.CaptureException(err)
	}
	log.Printf("[LeaseLock Acquire] Took over lease from %s", lease.Owner)
	l.markHeldLocked()
	return true, nil
}

// reclaimable decides whether a foreign lease row may be taken over.
func (l *Lock) reclaimable(lease *models.Lease, now int64) bool {
	if lease.ExpiresAt <= now {
		return true
	}
	prev, err := ParseOwner(lease.Owner)
	if err != nil {
		log.Printf("[LeaseLock] Malformed lease owner %q, waiting for TTL expiry: %v", lease.Owner, err)
		return false
	}
	if prev.Host == l.owner.Host && !l.alive(prev.PID) {
		log.Printf("[LeaseLock] Lease owner %s is dead on this host, reclaiming early", lease.Owner)
		return true
	}
	return false
}

func (l *Lock) markHeldLocked() {
	loopCtx, cancel := context.WithCancel(context.Background())
	l.held = true
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go l.renewLoop(loopCtx, l.loopDone)
}

// renewLoop extends the lease until cancelled. Losing the lease to
// another owner stops renewal; transient store errors do not.
func (l *Lock) renewLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := l.ttl / 2
	if interval < minRenewInterval {
		interval = minRenewInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := l.repo.UpdateExpiry(renewCtx, LeaseKey, l.owner.String(), time.Now().Unix()+int64(l.ttl.Seconds()))
			cancel()
			if errors.Is(err, database.ErrLeaseHeld) {
				log.Printf("[LeaseLock Renew] Lease lost to another owner, stopping renewal")
				sentry.CaptureException(err)
				l.mu.Lock()
				l.held = false
				l.mu.Unlock()
				return
			}
			if err != nil {
				log.Printf("[LeaseLock Renew] Failed to renew lease: %v", err)
			}
		}
	}
}

// Release stops renewal and, when the lease is still held, deletes the
// row so a successor does not have to wait out the TTL. After a renewal
// loss the row belongs to the new holder and is left alone. Best effort.
func (l *Lock) Release(ctx context.Context) {
	l.mu.Lock()
	if !l.held && l.cancelLoop == nil {
		l.mu.Unlock()
		return
	}
	wasHeld := l.held
	cancel, done := l.cancelLoop, l.loopDone
	l.held = false
	l.cancelLoop = nil
	l.loopDone = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if !wasHeld {
		return
	}
	if err := l.repo.Delete(ctx, LeaseKey); err != nil {
		log.Printf("[LeaseLock Release] Failed to delete lease row: %v", err)
	}
}
