package auth

import "fmt"

// LifecycleEvent is a host lifecycle transition the registry follows.
type LifecycleEvent int

const (
	EventCreate LifecycleEvent = iota + 1
	EventDestroy
)

func (e LifecycleEvent) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventDestroy:
		return "destroy"
	default:
		return fmt.Sprintf("LifecycleEvent(%d)", int(e))
	}
}

// LifecycleObserver is implemented by anything the host drives through its
// create/destroy lifecycle.
type LifecycleObserver interface {
	OnLifecycleEvent(ev LifecycleEvent)
}

var _ LifecycleObserver = (*Registry)(nil)

// OnLifecycleEvent runs Init on EventCreate and Destroy on EventDestroy.
// Other events are ignored.
func (r *Registry) OnLifecycleEvent(ev LifecycleEvent) {
	switch ev {
	case EventCreate:
		r.Init()
	case EventDestroy:
		r.Destroy()
	default:
		r.logger.Warn("unknown lifecycle event ignored", "event", ev.String())
	}
}
