package credit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, standard, premium int64) *Ledger {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	if standard > 0 {
		require.NoError(t, store.Grant(ctx, PoolStandard, standard))
	}
	if premium > 0 {
		require.NoError(t, store.Grant(ctx, PoolPremium, premium))
	}
	t.Cleanup(func() { store.Close() })
	return NewLedger(store)
}

func TestReserveConfirm(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 3, 0)

	res, err := ledger.Reserve(ctx, PoolStandard, 1)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)

	// The hold is visible immediately but nothing was durably spent.
	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, Balance{Available: 3, Reserved: 1}, bal)
	assert.Equal(t, int64(2), bal.Usable())

	require.NoError(t, ledger.Confirm(ctx, res))
	assert.True(t, res.Confirmed())

	bal, err = ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, Balance{Available: 2, Reserved: 0}, bal)
	assert.Equal(t, 0, ledger.Outstanding())
}

func TestReserveRefund(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 3, 0)

	res, err := ledger.Reserve(ctx, PoolStandard, 1)
	require.NoError(t, err)

	ledger.Refund(res)
	assert.False(t, res.Confirmed())

	// Refund restores the usable balance exactly; Available never moved.
	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, Balance{Available: 3, Reserved: 0}, bal)
}

func TestReserveInsufficient(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 1, 0)

	_, err := ledger.Reserve(ctx, PoolStandard, 1)
	require.NoError(t, err)

	// The outstanding hold blocks a second reservation even though
	// Available is still 1.
	_, err = ledger.Reserve(ctx, PoolStandard, 1)
	require.Error(t, err)
	assert.True(t, IsInsufficient(err))

	var ice *InsufficientCreditError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, PoolStandard, ice.Pool)
	assert.Equal(t, int64(1), ice.Available)
	assert.Equal(t, int64(1), ice.Reserved)

	// A denial changes nothing.
	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, Balance{Available: 1, Reserved: 1}, bal)
}

func TestReserveZeroBalance(t *testing.T) {
	ledger := newTestLedger(t, 0, 0)
	_, err := ledger.Reserve(context.Background(), PoolStandard, 1)
	assert.True(t, IsInsufficient(err))
}

func TestPoolsIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 0, 2)

	_, err := ledger.Reserve(ctx, PoolStandard, 1)
	assert.True(t, IsInsufficient(err))

	res, err := ledger.Reserve(ctx, PoolPremium, 1)
	require.NoError(t, err)
	require.NoError(t, ledger.Confirm(ctx, res))

	bal, err := ledger.Balance(ctx, PoolPremium)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Available)
}

func TestConfirmIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 3, 0)

	res, err := ledger.Reserve(ctx, PoolStandard, 1)
	require.NoError(t, err)

	require.NoError(t, ledger.Confirm(ctx, res))
	require.NoError(t, ledger.Confirm(ctx, res))

	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal.Available, "double confirm must not double spend")
}

func TestRefundIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 3, 0)

	res, err := ledger.Reserve(ctx, PoolStandard, 1)
	require.NoError(t, err)

	ledger.Refund(res)
	ledger.Refund(res)

	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, Balance{Available: 3, Reserved: 0}, bal)
}

func TestConfirmAfterRefund(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 3, 0)

	res, err := ledger.Reserve(ctx, PoolStandard, 1)
	require.NoError(t, err)

	ledger.Refund(res)
	err = ledger.Confirm(ctx, res)
	assert.ErrorIs(t, err, ErrReservationRefunded)

	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bal.Available)
}

func TestRefundAfterConfirm(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 3, 0)

	res, err := ledger.Reserve(ctx, PoolStandard, 1)
	require.NoError(t, err)
	require.NoError(t, ledger.Confirm(ctx, res))

	// Settled means settled: the spend stands.
	ledger.Refund(res)

	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, Balance{Available: 2, Reserved: 0}, bal)
}

func TestConfirmUnknownHandle(t *testing.T) {
	ledger := newTestLedger(t, 3, 0)
	err := ledger.Confirm(context.Background(), &Reservation{ID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownReservation)

	err = ledger.Confirm(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnknownReservation)
}

func TestReserveValidation(t *testing.T) {
	ledger := newTestLedger(t, 3, 0)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, Pool("gold"), 1)
	assert.ErrorIs(t, err, ErrUnknownPool)

	_, err = ledger.Reserve(ctx, PoolStandard, 0)
	assert.Error(t, err)

	_, err = ledger.Reserve(ctx, PoolStandard, -2)
	assert.Error(t, err)
}

func TestGrant(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 0, 0)

	require.NoError(t, ledger.Grant(ctx, PoolStandard, 5))

	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.Available)

	assert.Error(t, ledger.Grant(ctx, PoolStandard, 0))
	assert.ErrorIs(t, ledger.Grant(ctx, Pool("gold"), 1), ErrUnknownPool)
}

func TestConcurrentReserveNoOvercommit(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, 10, 0)

	var wg sync.WaitGroup
	granted := make(chan *Reservation, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := ledger.Reserve(ctx, PoolStandard, 1); err == nil {
				granted <- res
			}
		}()
	}
	wg.Wait()
	close(granted)

	var handles []*Reservation
	for res := range granted {
		handles = append(handles, res)
	}
	assert.Len(t, handles, 10, "exactly the available amount may be reserved")

	for _, res := range handles {
		require.NoError(t, ledger.Confirm(ctx, res))
	}

	bal, err := ledger.Balance(ctx, PoolStandard)
	require.NoError(t, err)
	assert.Equal(t, Balance{Available: 0, Reserved: 0}, bal)
}
