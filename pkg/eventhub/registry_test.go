package eventhub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type damaged struct {
	Amount int
	Source string
}

type spawned struct {
	ID int
}

// recorder collects handler invocations in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string) Handler[damaged] {
	return HandlerOf(func(damaged) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
	})
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func newTestRegistry[E any]() *Registry[E] {
	return NewRegistry[E](WithCoordinator(NewCoordinator()))
}

func slotCount[E any](r *Registry[E]) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func dispatchDepth[E any](r *Registry[E]) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth
}

func TestRegistry_DeliversPayload(t *testing.T) {
	r := newTestRegistry[damaged]()

	var received []damaged
	require.NoError(t, r.Subscribe(HandlerOf(func(d damaged) {
		received = append(received, d)
	})))

	require.NoError(t, r.Publish(damaged{Amount: 25, Source: "Fire"}))

	require.Len(t, received, 1)
	assert.Equal(t, damaged{Amount: 25, Source: "Fire"}, received[0])
}

func TestRegistry_ReverseOrder(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	require.NoError(t, r.Subscribe(rec.handler("A")))
	require.NoError(t, r.Subscribe(rec.handler("B")))
	require.NoError(t, r.Subscribe(rec.handler("C")))

	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, []string{"C", "B", "A"}, rec.got())
}

func TestRegistry_PublishWithoutHandlers(t *testing.T) {
	r := newTestRegistry[damaged]()
	assert.NoError(t, r.Publish(damaged{Amount: 1}))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_InvalidHandler(t *testing.T) {
	r := newTestRegistry[damaged]()

	t.Run("nil handler", func(t *testing.T) {
		assert.ErrorIs(t, r.Subscribe(nil), ErrInvalidHandler)
		assert.ErrorIs(t, r.Unsubscribe(nil), ErrInvalidHandler)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("typed nil pointer", func(t *testing.T) {
		var h *funcHandler[damaged]
		assert.ErrorIs(t, r.Subscribe(h), ErrInvalidHandler)
	})

	t.Run("non comparable handler", func(t *testing.T) {
		assert.ErrorIs(t, r.Subscribe(sliceHandler{}), ErrInvalidHandler)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("nil action", func(t *testing.T) {
		assert.ErrorIs(t, r.SubscribeAction(nil), ErrInvalidHandler)
		assert.ErrorIs(t, r.UnsubscribeAction(nil), ErrInvalidHandler)
	})

	t.Run("HandlerOf nil func", func(t *testing.T) {
		assert.Nil(t, HandlerOf[damaged](nil))
		assert.Nil(t, ActionOf(nil))
	})
}

// sliceHandler has a non-comparable dynamic type.
type sliceHandler []int

func (sliceHandler) Handle(damaged) {}

func TestRegistry_InvalidEvent(t *testing.T) {
	t.Run("nil pointer event", func(t *testing.T) {
		r := newTestRegistry[*damaged]()
		called := false
		require.NoError(t, r.Subscribe(HandlerOf(func(*damaged) { called = true })))

		assert.ErrorIs(t, r.Publish(nil), ErrInvalidEvent)
		assert.False(t, called)

		assert.NoError(t, r.Publish(&damaged{Amount: 3}))
		assert.True(t, called)
	})

	t.Run("nil interface event", func(t *testing.T) {
		r := newTestRegistry[error]()
		require.NoError(t, r.Subscribe(HandlerOf(func(error) {})))
		assert.ErrorIs(t, r.Publish(nil), ErrInvalidEvent)
	})

	t.Run("nil map event", func(t *testing.T) {
		r := newTestRegistry[map[string]int]()
		assert.ErrorIs(t, r.Publish(nil), ErrInvalidEvent)
	})

	t.Run("value events are never nil", func(t *testing.T) {
		r := newTestRegistry[damaged]()
		assert.NoError(t, r.Publish(damaged{}))

		s := newTestRegistry[[]int]()
		assert.NoError(t, s.Publish(nil))
	})
}

func TestRegistry_UnsubscribeUnknownIsNoop(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}
	a := rec.handler("A")
	require.NoError(t, r.Subscribe(a))

	assert.NoError(t, r.Unsubscribe(rec.handler("other")))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Unsubscribe(a))
	assert.NoError(t, r.Unsubscribe(a))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DuplicateSubscriptions(t *testing.T) {
	r := newTestRegistry[damaged]()
	count := 0
	h := HandlerOf(func(damaged) { count++ })

	require.NoError(t, r.Subscribe(h))
	require.NoError(t, r.Subscribe(h))
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, 2, count)

	require.NoError(t, r.Unsubscribe(h))
	assert.Equal(t, 1, r.Len())

	count = 0
	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, 1, count)
}

func TestRegistry_UnsubscribeRemovesOldest(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}
	a := rec.handler("A")
	b := rec.handler("B")

	require.NoError(t, r.Subscribe(a))
	require.NoError(t, r.Subscribe(b))
	require.NoError(t, r.Subscribe(a))

	require.NoError(t, r.Unsubscribe(a))
	require.NoError(t, r.Publish(damaged{}))

	// The later registration of A survives, so it still runs first.
	assert.Equal(t, []string{"A", "B"}, rec.got())
}

func TestRegistry_FinalSetAfterMixedOperations(t *testing.T) {
	r := newTestRegistry[damaged]()
	counts := map[string]int{}
	mk := func(name string) Handler[damaged] {
		return HandlerOf(func(damaged) { counts[name]++ })
	}
	a, b, c, d := mk("a"), mk("b"), mk("c"), mk("d")

	require.NoError(t, r.Subscribe(a))
	require.NoError(t, r.Subscribe(b))
	require.NoError(t, r.Unsubscribe(a))
	require.NoError(t, r.Subscribe(c))
	require.NoError(t, r.Subscribe(a))
	require.NoError(t, r.Unsubscribe(b))
	require.NoError(t, r.Unsubscribe(d))
	require.NoError(t, r.Subscribe(d))
	require.NoError(t, r.Unsubscribe(c))

	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, map[string]int{"a": 1, "d": 1}, counts)
}

func TestRegistry_SelfUnsubscribeDuringPublish(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	require.NoError(t, r.Subscribe(rec.handler("A")))

	var self Handler[damaged]
	selfCalls := 0
	self = HandlerOf(func(damaged) {
		selfCalls++
		require.NoError(t, r.Unsubscribe(self))
	})
	require.NoError(t, r.Subscribe(self))
	require.NoError(t, r.Subscribe(rec.handler("C")))

	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, 1, selfCalls)
	assert.Equal(t, []string{"C", "A"}, rec.got())
	assert.Equal(t, 2, r.Len())

	rec.reset()
	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, 1, selfCalls)
	assert.Equal(t, []string{"C", "A"}, rec.got())
}

func TestRegistry_UnsubscribeEarlierHandlerDuringPublish(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	a := rec.handler("A")
	require.NoError(t, r.Subscribe(a))
	require.NoError(t, r.Subscribe(rec.handler("B")))
	require.NoError(t, r.Subscribe(HandlerOf(func(damaged) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, "C")
		rec.mu.Unlock()
		require.NoError(t, r.Unsubscribe(a))
	})))

	require.NoError(t, r.Publish(damaged{}))

	// A was removed before its turn; nothing runs twice.
	assert.Equal(t, []string{"C", "B"}, rec.got())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_SubscribeDuringPublishJoinsNextPublish(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}
	late := rec.handler("late")

	added := false
	require.NoError(t, r.Subscribe(HandlerOf(func(damaged) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, "adder")
		rec.mu.Unlock()
		if !added {
			added = true
			require.NoError(t, r.Subscribe(late))
		}
	})))

	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, []string{"adder"}, rec.got())

	rec.reset()
	require.NoError(t, r.Publish(damaged{}))
	assert.Equal(t, []string{"late", "adder"}, rec.got())
}

func TestRegistry_NestedPublish(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	a := rec.handler("A")
	require.NoError(t, r.Subscribe(a))
	require.NoError(t, r.Subscribe(HandlerOf(func(d damaged) {
		if d.Amount == 0 {
			require.NoError(t, r.Unsubscribe(a))
			require.NoError(t, r.Publish(damaged{Amount: 1}))
		}
	})))

	require.NoError(t, r.Publish(damaged{}))

	// The inner publish skips the removed A, and so does the outer one.
	assert.Empty(t, rec.got())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ClearDuringPublish(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	require.NoError(t, r.Subscribe(rec.handler("A")))
	require.NoError(t, r.Subscribe(HandlerOf(func(damaged) { r.Clear() })))

	require.NoError(t, r.Publish(damaged{}))
	assert.Empty(t, rec.got())
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Publish(damaged{}))
	assert.Empty(t, rec.got())
}

func TestRegistry_PanicPropagates(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	require.NoError(t, r.Subscribe(rec.handler("A")))
	require.NoError(t, r.Subscribe(HandlerOf(func(damaged) { panic("boom") })))
	require.NoError(t, r.Subscribe(rec.handler("C")))

	assert.PanicsWithValue(t, "boom", func() {
		_ = r.Publish(damaged{})
	})
	// C ran before the failure; A was never reached.
	assert.Equal(t, []string{"C"}, rec.got())

	// The registry is usable afterwards and removals still take effect.
	rec.reset()
	var removeMe Handler[damaged]
	removeMe = HandlerOf(func(damaged) { _ = r.Unsubscribe(removeMe) })
	require.NoError(t, r.Subscribe(removeMe))
	assert.Panics(t, func() { _ = r.Publish(damaged{}) })
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, slotCount(r))
	assert.Equal(t, 0, dispatchDepth(r))
}

func TestRegistry_ChurnWhilePublishesOverlap(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	removed := rec.handler("removed")
	require.NoError(t, r.Subscribe(removed))
	require.NoError(t, r.Subscribe(HandlerOf(func(damaged) {
		entered <- struct{}{}
		<-release
	})))

	// Two dispatches stay in flight for the whole churn below.
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_ = r.Publish(damaged{})
		}()
	}
	<-entered
	<-entered

	h := HandlerOf(func(damaged) {})
	for i := 0; i < 1000; i++ {
		require.NoError(t, r.Subscribe(h))
		require.NoError(t, r.Unsubscribe(h))
		require.LessOrEqual(t, slotCount(r), 3)
	}
	require.NoError(t, r.Unsubscribe(removed))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, slotCount(r))

	close(release)
	wg.Wait()

	// Both in-flight dispatches saw the removal made after they started.
	assert.Empty(t, rec.got())
	assert.Equal(t, 0, dispatchDepth(r))
}

func TestRegistry_ConcurrentActionChurn(t *testing.T) {
	r := newTestRegistry[damaged]()

	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			a := ActionOf(func() {})
			for j := 0; j < 200; j++ {
				_ = r.SubscribeAction(a)
				_ = r.Publish(damaged{})
				_ = r.UnsubscribeAction(a)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	r.mu.Lock()
	assert.Empty(t, r.actions)
	r.mu.Unlock()
}

func TestRegistry_RemovalReleasesReferences(t *testing.T) {
	r := newTestRegistry[damaged]()
	a1, a2 := ActionOf(func() {}), ActionOf(func() {})
	h := HandlerOf(func(damaged) {})

	require.NoError(t, r.SubscribeAction(a1))
	require.NoError(t, r.SubscribeAction(a2))
	require.NoError(t, r.Subscribe(h))
	require.NoError(t, r.UnsubscribeAction(a1))
	require.NoError(t, r.Unsubscribe(h))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.actions[len(r.actions):cap(r.actions)] {
		assert.Nil(t, e.action)
		assert.Nil(t, e.wrapper)
	}
	for _, s := range r.slots[len(r.slots):cap(r.slots)] {
		assert.Nil(t, s)
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := newTestRegistry[damaged]()
	rec := &recorder{}

	r.Clear() // empty registry is fine

	require.NoError(t, r.Subscribe(rec.handler("A")))
	require.NoError(t, r.SubscribeAction(ActionOf(func() {})))
	assert.Equal(t, 2, r.Len())

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.actions)

	require.NoError(t, r.Publish(damaged{}))
	assert.Empty(t, rec.got())
}

func TestRegistry_Actions(t *testing.T) {
	r := newTestRegistry[damaged]()
	count := 0
	a := ActionOf(func() { count++ })

	require.NoError(t, r.SubscribeAction(a))
	require.NoError(t, r.Publish(damaged{Amount: 5}))
	assert.Equal(t, 1, count)

	t.Run("unknown action is a no-op", func(t *testing.T) {
		assert.NoError(t, r.UnsubscribeAction(ActionOf(func() {})))
		assert.Equal(t, 1, r.Len())
	})

	t.Run("removal by original reference", func(t *testing.T) {
		require.NoError(t, r.UnsubscribeAction(a))
		assert.Equal(t, 0, r.Len())
		assert.Empty(t, r.actions)

		require.NoError(t, r.Publish(damaged{}))
		assert.Equal(t, 1, count)
	})

	t.Run("duplicates removed one at a time", func(t *testing.T) {
		count = 0
		require.NoError(t, r.SubscribeAction(a))
		require.NoError(t, r.SubscribeAction(a))
		require.NoError(t, r.UnsubscribeAction(a))

		require.NoError(t, r.Publish(damaged{}))
		assert.Equal(t, 1, count)
		require.NoError(t, r.UnsubscribeAction(a))
	})

	t.Run("mixed with typed handlers keeps order", func(t *testing.T) {
		var order []string
		h := HandlerOf(func(damaged) { order = append(order, "typed") })
		act := ActionOf(func() { order = append(order, "action") })

		require.NoError(t, r.Subscribe(h))
		require.NoError(t, r.SubscribeAction(act))
		require.NoError(t, r.Publish(damaged{}))
		assert.Equal(t, []string{"action", "typed"}, order)
	})
}

func TestRegistry_EventType(t *testing.T) {
	assert.Equal(t, "eventhub.damaged", newTestRegistry[damaged]().EventType())
	assert.Equal(t, "*eventhub.spawned", newTestRegistry[*spawned]().EventType())
}

func TestRegistry_JoinsCoordinatorOnce(t *testing.T) {
	c := NewCoordinator()
	r := NewRegistry[damaged](WithCoordinator(c))

	assert.Equal(t, 0, c.Len(), "registry joins lazily")

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Subscribe(HandlerOf(func(damaged) {})))
	}
	require.NoError(t, r.SubscribeAction(ActionOf(func() {})))
	assert.Equal(t, 1, c.Len())

	t.Run("failed subscribe does not join", func(t *testing.T) {
		c2 := NewCoordinator()
		r2 := NewRegistry[damaged](WithCoordinator(c2))
		assert.Error(t, r2.Subscribe(nil))
		assert.Equal(t, 0, c2.Len())
	})

	t.Run("nil coordinator opts out", func(t *testing.T) {
		r3 := NewRegistry[damaged](WithCoordinator(nil))
		require.NoError(t, r3.Subscribe(HandlerOf(func(damaged) {})))
		assert.Equal(t, 1, r3.Len())
	})
}

func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	c := NewCoordinator()
	r := NewRegistry[damaged](WithCoordinator(c))

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = r.Subscribe(HandlerOf(func(damaged) {}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, goroutines, r.Len())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := newTestRegistry[damaged]()

	const goroutines = 20
	const ops = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			h := HandlerOf(func(damaged) {})
			for j := 0; j < ops; j++ {
				switch j % 4 {
				case 0:
					_ = r.Subscribe(h)
				case 1, 2:
					_ = r.Publish(damaged{Amount: id})
				case 3:
					_ = r.Unsubscribe(h)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_PublishDoesNotAllocate(t *testing.T) {
	r := newTestRegistry[damaged]()
	total := 0
	for i := 0; i < 8; i++ {
		require.NoError(t, r.Subscribe(HandlerOf(func(d damaged) { total += d.Amount })))
	}
	require.NoError(t, r.SubscribeAction(ActionOf(func() {})))

	evt := damaged{Amount: 1, Source: "Fire"}
	allocs := testing.AllocsPerRun(100, func() {
		_ = r.Publish(evt)
	})
	assert.Zero(t, allocs)
	assert.Positive(t, total)
}
