// Package eventhub provides a typed, in-process publish/subscribe
// dispatcher for real-time loops.
//
// # Overview
//
// Components exchange strongly typed notifications without holding
// references to each other:
//
//   - Registry[E] holds the subscribers for one event type
//   - Handler[E] and Action are the two subscriber shapes (with and
//     without payload)
//   - Coordinator reaches every registry for a global reset
//   - Binding[E] owns subscriptions and releases them exactly once
//   - Hub addresses registries by type parameter
//
// # Registries
//
// A registry is created once per event type and kept in a variable. It is
// the only state involved in a Publish, so dispatch does no lookup and no
// allocation:
//
//	type Damaged struct {
//	    Amount int
//	    Source string
//	}
//
//	var OnDamaged = eventhub.NewRegistry[Damaged]()
//
//	h := eventhub.HandlerOf(func(d Damaged) { hp -= d.Amount })
//	OnDamaged.Subscribe(h)
//	OnDamaged.Publish(Damaged{Amount: 25, Source: "Fire"})
//	OnDamaged.Unsubscribe(h)
//
// Handlers are matched by identity, not content. HandlerOf and ActionOf
// return a new identity on every call, so keep the returned value.
//
// # Dispatch Order
//
// Publish runs handlers synchronously on the caller's goroutine, newest
// subscription first. A handler may subscribe or unsubscribe any handler
// while it runs:
//
//   - removed handlers that have not run yet are skipped
//   - handlers added during a Publish run from the next Publish on
//   - every other handler runs exactly once
//
// A panicking handler propagates to the publisher; the remaining handlers
// of that Publish do not run.
//
// # Bindings
//
// A Binding ties several subscriptions to one owner:
//
//	b, err := OnDamaged.Bind(eventhub.HandlerOf(flashScreen))
//	if err != nil {
//	    return err
//	}
//	b.Add(eventhub.HandlerOf(playSound))
//	b.AddAction(eventhub.ActionOf(shakeCamera))
//	defer b.Dispose() // removes all three, once
//
// # Clear All
//
// Every registry joins a Coordinator on its first subscribe (the
// DefaultCoordinator unless WithCoordinator says otherwise). ClearAll
// resets all of them in registration order. A reset that panics is logged
// and the rest are still cleared.
//
// # Hub
//
// Hub is a facade for code that prefers type parameters to variables:
//
//	hub := eventhub.NewHub(eventhub.WithLogger(logger))
//	eventhub.Subscribe(hub, eventhub.HandlerOf(onDamaged))
//	eventhub.Publish(hub, Damaged{Amount: 25, Source: "Fire"})
//	hub.ClearAll()
//
// PublishContext adds a trace span and metrics around a dispatch.
//
// # Thread Safety
//
// Registry, Coordinator, Binding and Hub are safe for concurrent use.
// No lock is held while a handler runs, so handlers may call back into
// any of them.
package eventhub
