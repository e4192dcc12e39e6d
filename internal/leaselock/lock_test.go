package leaselock

import (
	"context"
	"testing"
	"time"

	"merchbot/internal/database"
	"merchbot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockLeaseRepo struct {
	mock.Mock
}

func (m *MockLeaseRepo) Get(ctx context.Context, key string) (*models.Lease, error) {
	args := m.Called(ctx, key)
	lease, _ := args.Get(0).(*models.Lease)
	return lease, args.Error(1)
}

func (m *MockLeaseRepo) TryInsert(ctx context.Context, lease *models.Lease) error {
	args := m.Called(ctx, lease)
	return args.Error(0)
}

func (m *MockLeaseRepo) Replace(ctx context.Context, lease *models.Lease, previousOwner string) error {
	args := m.Called(ctx, lease, previousOwner)
	return args.Error(0)
}

func (m *MockLeaseRepo) UpdateExpiry(ctx context.Context, key, owner string, expiresAt int64) error {
	args := m.Called(ctx, key, owner, expiresAt)
	return args.Error(0)
}

func (m *MockLeaseRepo) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// --- Tests ---

func alwaysAlive(int) bool { return true }
func neverAlive(int) bool  { return false }

func TestLock_AcquireEmptyStore(t *testing.T) {
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(nil, nil)
	repo.On("TryInsert", mock.Anything, mock.MatchedBy(func(l *models.Lease) bool {
		return l.Key == LeaseKey && l.Owner == "hostA:111" && l.ExpiresAt > time.Now().Unix()
	})).Return(nil)
	repo.On("Delete", mock.Anything, LeaseKey).Return(nil)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, alwaysAlive)
	ok, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, lock.Held())

	lock.Release(context.Background())
	assert.False(t, lock.Held())
	repo.AssertExpectations(t)
}

func TestLock_ContentionBeforeExpiry(t *testing.T) {
	// A live remote owner with an unexpired lease keeps everyone else out.
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(&models.Lease{
		Key:       LeaseKey,
		Owner:     "hostB:42",
		ExpiresAt: time.Now().Unix() + 60,
	}, nil)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, alwaysAlive)
	ok, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, lock.Held())
	repo.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "TryInsert", mock.Anything, mock.Anything)
}

func TestLock_TakeoverExpiredLease(t *testing.T) {
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(&models.Lease{
		Key:       LeaseKey,
		Owner:     "hostB:42",
		ExpiresAt: time.Now().Unix() - 5,
	}, nil)
	repo.On("Replace", mock.Anything, mock.Anything, "hostB:42").Return(nil)
	repo.On("Delete", mock.Anything, LeaseKey).Return(nil)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, alwaysAlive)
	ok, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)

	lock.Release(context.Background())
	repo.AssertExpectations(t)
}

func TestLock_TakeoverDeadLocalOwnerBeforeExpiry(t *testing.T) {
	// Same host, dead PID: reclaim immediately even though the TTL has
	// not run out yet.
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(&models.Lease{
		Key:       LeaseKey,
		Owner:     "hostA:111",
		ExpiresAt: time.Now().Unix() + 90,
	}, nil)
	repo.On("Replace", mock.Anything, mock.MatchedBy(func(l *models.Lease) bool {
		return l.Owner == "hostA:222"
	}), "hostA:111").Return(nil)
	repo.On("Delete", mock.Anything, LeaseKey).Return(nil)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 222}, 120*time.Second, neverAlive)
	ok, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)

	lock.Release(context.Background())
	repo.AssertExpectations(t)
}

func TestLock_DeadOwnerOnOtherHostMustWait(t *testing.T) {
	// Liveness is only checkable locally; a remote owner keeps the lease
	// until its TTL runs out no matter what.
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(&models.Lease{
		Key:       LeaseKey,
		Owner:     "hostB:42",
		ExpiresAt: time.Now().Unix() + 90,
	}, nil)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, neverAlive)
	ok, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_LostRaceOnInsert(t *testing.T) {
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(nil, nil)
	repo.On("TryInsert", mock.Anything, mock.Anything).Return(database.ErrLeaseHeld)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, alwaysAlive)
	ok, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_StoreDownProceedsWithoutExclusivity(t *testing.T) {
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(nil, assert.AnError)
	repo.On("Delete", mock.Anything, LeaseKey).Return(assert.AnError)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, alwaysAlive)
	ok, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)

	// Release stays best effort even when the store is still down.
	lock.Release(context.Background())
	assert.False(t, lock.Held())
}

func TestLock_AcquireIsIdempotentWhileHeld(t *testing.T) {
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(nil, nil).Once()
	repo.On("TryInsert", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("Delete", mock.Anything, LeaseKey).Return(nil)

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, alwaysAlive)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Second call must not hit the store again.
	ok, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	lock.Release(context.Background())
	repo.AssertExpectations(t)
}

func TestLock_ReleaseAfterRenewalLossKeepsSuccessorRow(t *testing.T) {
	repo := new(MockLeaseRepo)
	repo.On("Get", mock.Anything, LeaseKey).Return(nil, nil).Once()
	repo.On("TryInsert", mock.Anything, mock.Anything).Return(nil).Once()

	lock := NewLock(repo, Owner{Host: "hostA", PID: 111}, 120*time.Second, alwaysAlive)
	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// The renewal loop clears held when another owner took the row over.
	lock.mu.Lock()
	lock.held = false
	lock.mu.Unlock()

	// The row now belongs to the new holder; Release must not touch it.
	lock.Release(context.Background())
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestOwnerRoundTrip(t *testing.T) {
	owner := Owner{Host: "worker-3.internal", PID: 4711}
	parsed, err := ParseOwner(owner.String())
	require.NoError(t, err)
	assert.Equal(t, owner, parsed)

	_, err = ParseOwner("garbage")
	assert.Error(t, err)
	_, err = ParseOwner("host:notanumber")
	assert.Error(t, err)
}
