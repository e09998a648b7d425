package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4rchr4y/moss/internal/fault"
)

type testID uint64

func newTestArena() *Arena[testID] {
	return New[testID]("entity", NewSequence())
}

func TestSequence_SharedAcrossArenas(t *testing.T) {
	seq := NewSequence()
	a := New[testID]("entity", seq)
	b := New[testID]("node", seq)

	s1 := a.Reserve()
	s2 := b.Reserve()
	s3 := a.Reserve()

	assert.Equal(t, testID(1), s1.ID())
	assert.Equal(t, testID(2), s2.ID())
	assert.Equal(t, testID(3), s3.ID())
}

func TestArena_ReserveThenInsert(t *testing.T) {
	a := newTestArena()

	slot := a.Reserve()
	assert.False(t, a.IsPopulated(slot.ID()))
	assert.Equal(t, 1, a.StrongCount(slot.ID()))

	h := a.Insert(slot, "value")
	assert.True(t, a.IsPopulated(h.ID()))
	assert.Equal(t, "value", a.Read(h.ID()))
}

func TestArena_ReadUnpopulatedPanics(t *testing.T) {
	a := newTestArena()
	slot := a.Reserve()

	err := fault.Catch(func() { a.Read(slot.ID()) })
	assert.True(t, fault.Is(err, fault.CodeUnpopulatedSlot))
}

func TestArena_WeakHandleBeforePopulate(t *testing.T) {
	a := newTestArena()
	slot := a.Reserve()
	weak := slot.Downgrade()

	h := a.Insert(slot, 42)

	up, ok := weak.Upgrade()
	require.True(t, ok)
	assert.Equal(t, h.ID(), up.ID())
	assert.Equal(t, 2, h.StrongCount())
}

func TestArena_LeaseRemovesValue(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), 1)

	lease := a.Lease(h)
	assert.True(t, a.IsLeased(h.ID()))
	assert.Equal(t, 1, lease.Value())

	lease.Set(2)
	a.EndLease(lease)

	assert.False(t, a.IsLeased(h.ID()))
	assert.Equal(t, 2, a.Read(h.ID()))
}

func TestArena_DoubleLeaseFailsEveryTime(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")

	lease := a.Lease(h)
	defer a.EndLease(lease)

	for i := 0; i < 5; i++ {
		err := fault.Catch(func() { a.Lease(h) })
		require.Error(t, err)
		assert.True(t, fault.IsReentrantAccess(err), "attempt %d", i)
	}
}

func TestArena_ReadWhileLeasedPanics(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")

	lease := a.Lease(h)
	defer a.EndLease(lease)

	err := fault.Catch(func() { a.Read(h.ID()) })
	assert.True(t, fault.IsReentrantAccess(err))
}

func TestArena_EndLeaseTwicePanics(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")

	lease := a.Lease(h)
	a.EndLease(lease)

	err := fault.Catch(func() { a.EndLease(lease) })
	assert.True(t, fault.IsReentrantAccess(err))
}

func TestArena_EndLeaseOnPanicPath(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")

	assert.Panics(t, func() {
		lease := a.Lease(h)
		defer a.EndLease(lease)
		panic("callback failed")
	})

	assert.False(t, a.IsLeased(h.ID()))
	assert.Equal(t, "v", a.Read(h.ID()))
}

func TestArena_TakeDroppedExactlyOnce(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "final")
	clone := h.Clone()

	h.Release()
	assert.Empty(t, a.TakeDropped(), "one strong handle still alive")

	clone.Release()
	dropped := a.TakeDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, h.ID(), dropped[0].ID)
	assert.Equal(t, "final", dropped[0].Value)

	assert.Empty(t, a.TakeDropped())
	assert.Equal(t, 0, a.Len())
}

func TestArena_RemovedSlotNotReportedAgain(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), 7)
	id := h.ID()

	h.Release()
	assert.Equal(t, 7, a.Remove(id))

	assert.Empty(t, a.TakeDropped())
	assert.Equal(t, 0, a.Len())
}

func TestArena_RemoveKeepsOtherDroppedSlots(t *testing.T) {
	a := newTestArena()
	first := a.Insert(a.Reserve(), "first")
	second := a.Insert(a.Reserve(), "second")

	first.Release()
	second.Release()
	a.Remove(first.ID())

	dropped := a.TakeDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, second.ID(), dropped[0].ID)
	assert.Equal(t, "second", dropped[0].Value)
}

func TestArena_ReleaseIsIdempotent(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")
	other := h.Clone()

	h.Release()
	h.Release()

	assert.Equal(t, 1, other.StrongCount())
	assert.Empty(t, a.TakeDropped())
}

func TestArena_CloneReleasedPanics(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")
	keep := h.Clone()
	defer keep.Release()

	h.Release()

	err := fault.Catch(func() { h.Clone() })
	assert.True(t, fault.Is(err, fault.CodeReleasedHandle))

	err = fault.Catch(func() { a.Lease(h) })
	assert.True(t, fault.Is(err, fault.CodeReleasedHandle))
}

func TestArena_UpgradeAfterDropFails(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")
	weak := h.Downgrade()

	h.Release()

	// Count is zero before the drain as well.
	_, ok := weak.Upgrade()
	assert.False(t, ok)

	a.TakeDropped()
	_, ok = weak.Upgrade()
	assert.False(t, ok)
}

func TestArena_ZeroWeakHandleUpgradeFails(t *testing.T) {
	var weak WeakHandle[testID]
	_, ok := weak.Upgrade()
	assert.False(t, ok)
}

func TestArena_RemoveReferencedPanics(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")
	h2 := h.Clone()
	defer h2.Release()
	defer h.Release()

	err := fault.Catch(func() { a.Remove(h.ID()) })
	require.Error(t, err)
	assert.True(t, fault.IsInvalidRemoval(err))
	assert.Contains(t, err.Error(), "2 strong references")
}

func TestArena_TakeDroppedWaitsForLease(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")
	id := h.ID()

	lease := a.LeaseID(id)
	h.Release()

	assert.Empty(t, a.TakeDropped(), "leased slot must not be drained")

	lease.Set("last")
	a.EndLease(lease)

	dropped := a.TakeDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, "last", dropped[0].Value)
}

func TestArena_AbandonedReservation(t *testing.T) {
	a := newTestArena()
	slot := a.Reserve()

	slot.Abandon()

	dropped := a.TakeDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, slot.ID(), dropped[0].ID)
	assert.Nil(t, dropped[0].Value)
}

func TestArena_InsertAbandonedSlotPanics(t *testing.T) {
	a := newTestArena()
	slot := a.Reserve()
	slot.Abandon()

	err := fault.Catch(func() { a.Insert(slot, 1) })
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeReleasedHandle))
	assert.False(t, a.IsPopulated(slot.ID()))

	dropped := a.TakeDropped()
	require.Len(t, dropped, 1)
	assert.Nil(t, dropped[0].Value)
}

func TestArena_InsertTwicePanics(t *testing.T) {
	a := newTestArena()
	slot := a.Reserve()
	h := a.Insert(slot, "first")
	defer h.Release()

	err := fault.Catch(func() { a.Insert(slot, "second") })
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodePopulatedSlot))
	assert.Equal(t, "first", a.Read(h.ID()))
	assert.Equal(t, 1, h.StrongCount())
}

func TestArena_InsertWhileLeasedPanics(t *testing.T) {
	a := newTestArena()
	slot := a.Reserve()
	h := a.Insert(slot, "v")
	defer h.Release()

	lease := a.Lease(h)
	defer a.EndLease(lease)

	err := fault.Catch(func() { a.Insert(slot, "other") })
	assert.True(t, fault.Is(err, fault.CodePopulatedSlot))
}

func TestArena_ReadHandle(t *testing.T) {
	a := newTestArena()
	h := a.Insert(a.Reserve(), "v")
	keep := h.Clone()
	defer keep.Release()

	assert.Equal(t, "v", a.ReadHandle(h))

	h.Release()
	err := fault.Catch(func() { a.ReadHandle(h) })
	assert.True(t, fault.Is(err, fault.CodeReleasedHandle))
	assert.Equal(t, "v", a.ReadHandle(keep))
}
