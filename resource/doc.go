// Package resource provides Component Model resource handle management.
//
// Two tables cooperate:
//
//	Table     - per component instance; guests see its indices. Each entry
//	            records the resource type, the i32 rep, whether the handle
//	            is owned or borrowed, and how many borrows are lent out.
//	HostTable - host-side Go values. When a host resource reaches a guest,
//	            the guest's Table entry stores the host handle as its rep.
//
// # Resource Lifecycle
//
//	own<T>    - ownership transfer (TakeOwned on the giving side)
//	borrow<T> - temporary access (Borrow/EndBorrow track lends)
//	drop      - Remove; fails while borrows are outstanding
//
// Handle 0 is never valid in either table. Freed slots are reused.
//
// Host values implementing Dropper are notified when their handle is
// removed, and observers registered with Subscribe see every create and
// drop:
//
//	table := resource.NewHostTable()
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %s %d", e.Kind, e.Type, e.Handle)
//	}))
package resource
