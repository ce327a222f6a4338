package notestore

// EventKind names a store change.
type EventKind string

const (
	EventNotesChanged     EventKind = "notes.changed"
	EventNoteUpdated      EventKind = "note.updated"
	EventNoteDeleted      EventKind = "note.deleted"
	EventCurrentChanged   EventKind = "current.changed"
	EventFoldersChanged   EventKind = "folders.changed"
	EventFolderDeleted    EventKind = "folder.deleted"
	EventFilterChanged    EventKind = "filter.changed"
	EventSelectionChanged EventKind = "selection.changed"
)

// Event is delivered to subscribers after the mutation that caused it has
// been applied and the store lock released. ID is empty for collection-wide
// events.
type Event struct {
	Kind EventKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// Subscribe registers fn for every future event and returns a function that
// removes it. fn runs on the mutating goroutine and may call back into the
// store.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
