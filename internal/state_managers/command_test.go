package state_managers

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandSlot_TakeOnEmptyReturnsImmediately(t *testing.T) {
	slot := NewCommandSlot(256)

	done := make(chan struct{})
	go func() {
		msg, ok := slot.TakeIfPresent()
		assert.False(t, ok)
		assert.Nil(t, msg)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TakeIfPresent blocked on an empty slot")
	}
}

func TestCommandSlot_OfferThenTake(t *testing.T) {
	slot := NewCommandSlot(256)

	assert.Equal(t, OfferAccepted, slot.Offer([]byte("first")))
	assert.True(t, slot.Pending())

	msg, ok := slot.TakeIfPresent()
	require.True(t, ok)
	assert.Equal(t, []byte("first"), msg)
	assert.False(t, slot.Pending())

	_, ok = slot.TakeIfPresent()
	assert.False(t, ok)
}

func TestCommandSlot_DropsWhileOccupied(t *testing.T) {
	slot := NewCommandSlot(256)

	assert.Equal(t, OfferAccepted, slot.Offer([]byte("first")))
	assert.Equal(t, OfferDroppedBusy, slot.Offer([]byte("second")))

	msg, ok := slot.TakeIfPresent()
	require.True(t, ok)
	assert.Equal(t, []byte("first"), msg)

	_, ok = slot.TakeIfPresent()
	assert.False(t, ok)
}

func TestCommandSlot_DropsOversized(t *testing.T) {
	slot := NewCommandSlot(4)

	assert.Equal(t, OfferDroppedOversized, slot.Offer([]byte("too long")))
	assert.False(t, slot.Pending())
	assert.Equal(t, OfferAccepted, slot.Offer([]byte("fits")))
}

func TestCommandSlot_CopiesMessage(t *testing.T) {
	slot := NewCommandSlot(256)
	msg := []byte("original")

	slot.Offer(msg)
	copy(msg, "mutated!")

	got, ok := slot.TakeIfPresent()
	require.True(t, ok)
	assert.Equal(t, []byte("original"), got)
}

func TestCommandSlot_ReadySignal(t *testing.T) {
	slot := NewCommandSlot(256)

	select {
	case <-slot.Ready():
		t.Fatal("ready signalled on an empty slot")
	default:
	}

	slot.Offer([]byte("x"))
	select {
	case <-slot.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready not signalled after offer")
	}
}

func TestCommandSlot_ConcurrentOffersNeverTear(t *testing.T) {
	slot := NewCommandSlot(256)
	payloads := [][]byte{
		bytes.Repeat([]byte("a"), 200),
		bytes.Repeat([]byte("b"), 200),
		bytes.Repeat([]byte("c"), 200),
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					slot.Offer(p)
				}
			}
		}(p)
	}

	for i := 0; i < 1000; i++ {
		msg, ok := slot.TakeIfPresent()
		if !ok {
			continue
		}
		require.Len(t, msg, 200)
		assert.Equal(t, bytes.Repeat(msg[:1], 200), msg)
	}

	close(stop)
	wg.Wait()
}
