// Package store holds the local, ordered mirror of an administrator's notifications along with the
// unread and total counters reported by the server.
//
// Every exported mutation is a single state transition. Creations are the only transitions that
// adjust the counters locally; every other transition adopts the counters supplied by the server.
// The store never deduplicates: if the server emits the same creation twice, both copies are kept.
package store

import (
	"sync"

	"github.com/freshbasket/notification-sync/model"
)

// Snapshot is a point-in-time copy of the store's state.
type Snapshot struct {
	Notifications []model.Notification `json:"notifications"`
	TotalUnread   int64                `json:"totalUnread"`
	TotalDoc      int64                `json:"totalDoc"`
	Loading       bool                 `json:"loading"`
}

// Store is the in-memory notification mirror for a single session.
type Store struct {
	mu            sync.RWMutex
	notifications []model.Notification
	totalUnread   int64
	totalDoc      int64
	loads         int
}

// New returns an empty store.
func New() *Store {
	return &Store{notifications: []model.Notification{}}
}

// ApplyCreate places a newly created notification at the head of the list and increments both
// counters.
func (s *Store) ApplyCreate(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]model.Notification, 0, len(s.notifications)+1)
	updated = append(updated, n)
	s.notifications = append(updated, s.notifications...)
	s.totalUnread++
	s.totalDoc++
}

// ApplyUpdate replaces the notification with the same identifier. Updates for notifications that
// aren't in the list are dropped. The unread counter is always set to totalUnread.
func (s *Store) ApplyUpdate(n model.Notification, totalUnread int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == n.ID {
			s.notifications[i] = n
		}
	}
	s.totalUnread = totalUnread
}

// ApplyDelete removes the notification with the given identifier, if present, and adopts the
// server's counters either way.
func (s *Store) ApplyDelete(id string, totalUnread, totalDoc int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = s.filter(func(n model.Notification) bool { return n.ID != id })
	s.totalUnread = totalUnread
	s.totalDoc = totalDoc
}

// ApplyBulkUpdate sets the status of every listed notification and adopts the server's unread
// counter.
func (s *Store) ApplyBulkUpdate(ids []string, status model.Status, totalUnread int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := idSet(ids)
	for i := range s.notifications {
		if _, ok := wanted[s.notifications[i].ID]; ok {
			s.notifications[i].Status = status
		}
	}
	s.totalUnread = totalUnread
}

// ApplyBulkDelete removes every listed notification and adopts the server's counters.
func (s *Store) ApplyBulkDelete(ids []string, totalUnread, totalDoc int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := idSet(ids)
	s.notifications = s.filter(func(n model.Notification) bool {
		_, ok := wanted[n.ID]
		return !ok
	})
	s.totalUnread = totalUnread
	s.totalDoc = totalDoc
}

// LoadPage incorporates a page fetched from the API. The first page replaces the list; later pages
// are appended to it. The server's counters are adopted in both cases.
func (s *Store) LoadPage(page int, notifications []model.Notification, totalUnread, totalDoc int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if page <= 1 {
		s.notifications = append([]model.Notification{}, notifications...)
	} else {
		s.notifications = append(s.notifications, notifications...)
	}
	s.totalUnread = totalUnread
	s.totalDoc = totalDoc
}

// BeginLoad records the start of a page load. Every call must be matched by a call to EndLoad.
func (s *Store) BeginLoad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
}

// EndLoad records the end of a page load.
func (s *Store) EndLoad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loads > 0 {
		s.loads--
	}
}

// Loading returns true while at least one page load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads > 0
}

// Notifications returns a copy of the notification list, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Notification{}, s.notifications...)
}

// TotalUnread returns the unread counter.
func (s *Store) TotalUnread() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalUnread
}

// TotalDoc returns the total counter.
func (s *Store) TotalDoc() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalDoc
}

// Len returns the number of notifications currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

// Snapshot returns a consistent copy of the entire state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Notifications: append([]model.Notification{}, s.notifications...),
		TotalUnread:   s.totalUnread,
		TotalDoc:      s.totalDoc,
		Loading:       s.loads > 0,
	}
}

// filter must be called with the lock held.
func (s *Store) filter(keep func(model.Notification) bool) []model.Notification {
	result := make([]model.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if keep(n) {
			result = append(result, n)
		}
	}
	return result
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
