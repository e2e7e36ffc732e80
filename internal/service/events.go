package service

import (
	"fmt"
	"sync"

	"github.com/atinyakov/CoOrganizer/internal/models"
	"go.uber.org/zap"
)

// GroupListener is told about membership changes after they are persisted.
type GroupListener interface {
	OnGroupAdded(g models.Group)
	OnGroupRemoved(g models.Group)
}

// ListenerFuncs adapts plain functions to GroupListener. Nil fields are skipped.
type ListenerFuncs struct {
	Added   func(models.Group)
	Removed func(models.Group)
}

func (f ListenerFuncs) OnGroupAdded(g models.Group) {
	if f.Added != nil {
		f.Added(g)
	}
}

func (f ListenerFuncs) OnGroupRemoved(g models.Group) {
	if f.Removed != nil {
		f.Removed(g)
	}
}

type subscription struct {
	id int
	l  GroupListener
}

// GroupEvents fans group changes out to subscribers synchronously. A
// listener that panics is logged and skipped; the others still run and the
// change that triggered the event stands.
type GroupEvents struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
	log    *zap.Logger
}

// NewGroupEvents creates an empty subject.
func NewGroupEvents(log *zap.Logger) *GroupEvents {
	if log == nil {
		log = zap.NewNop()
	}
	return &GroupEvents{log: log}
}

// Subscribe registers l and returns a function that removes it again.
func (e *GroupEvents) Subscribe(l GroupListener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, l: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (e *GroupEvents) snapshot() []subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]subscription(nil), e.subs...)
}

func (e *GroupEvents) groupAdded(g models.Group) {
	for _, s := range e.snapshot() {
		e.call("added", g, s.l.OnGroupAdded)
	}
}

func (e *GroupEvents) groupRemoved(g models.Group) {
	for _, s := range e.snapshot() {
		e.call("removed", g, s.l.OnGroupRemoved)
	}
}

func (e *GroupEvents) call(event string, g models.Group, fn func(models.Group)) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("group listener failed",
				zap.String("event", event),
				zap.String("fingerprint", g.Fingerprint.String()),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(g)
}
