package gmap

import "slices"

// Listener is notified about changes of the mirrored map state. Notifications
// carry no payload, read the new value back from the map.
//
// Listeners are compared by identity when removed, so implementations should be
// pointers.
type Listener interface {
	CenterChanged()
	ZoomChanged()
	AddressResolved()
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
//
//	m.AddListener(&gmap.ListenerFuncs{OnZoom: func() { ... }})
type ListenerFuncs struct {
	OnCenter  func()
	OnZoom    func()
	OnAddress func()
}

func (l *ListenerFuncs) CenterChanged() {
	if l.OnCenter != nil {
		l.OnCenter()
	}
}

func (l *ListenerFuncs) ZoomChanged() {
	if l.OnZoom != nil {
		l.OnZoom()
	}
}

func (l *ListenerFuncs) AddressResolved() {
	if l.OnAddress != nil {
		l.OnAddress()
	}
}

// listenerList keeps listeners in insertion order.
type listenerList struct {
	items []Listener
}

func (ll *listenerList) add(l Listener) {
	if l == nil || slices.Index(ll.items, l) != -1 {
		return
	}
	ll.items = append(ll.items, l)
}

func (ll *listenerList) remove(l Listener) {
	if i := slices.Index(ll.items, l); i != -1 {
		ll.items = slices.Delete(ll.items, i, i+1)
	}
}

func (ll *listenerList) len() int {
	return len(ll.items)
}

// snapshot is iterated while firing so listeners may add or remove
// listeners, or call back into the map.
func (ll *listenerList) snapshot() []Listener {
	return append([]Listener(nil), ll.items...)
}

func (ll *listenerList) clear() {
	ll.items = nil
}
