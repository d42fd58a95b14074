package geostream

import (
	"sort"
	"sync"
)

type (
	// requestStore keeps the queued requests grouped by kind.
	requestStore struct {
		sync.RWMutex
		kinds map[Kind]*requestCollection
	}

	// requestCollection contains the requests of one kind.
	requestCollection struct {
		mux      sync.Mutex
		requests map[UUID]Entry
	}
)

func newRequestStore() *requestStore {
	return &requestStore{
		kinds: make(map[Kind]*requestCollection),
	}
}

func newRequestCollection() *requestCollection {
	return &requestCollection{
		requests: make(map[UUID]Entry),
	}
}

// Load returns the collection of a kind.
func (rs *requestStore) Load(kind Kind) (*requestCollection, bool) {
	rs.RLock()
	collection, ok := rs.kinds[kind]
	rs.RUnlock()

	return collection, ok
}

// Store inserts the request unless one with the same id is queued for the kind.
func (rs *requestStore) Store(entry Entry) bool {
	rs.Lock()
	defer rs.Unlock()

	collection, ok := rs.kinds[entry.Kind()]
	if !ok {
		collection = newRequestCollection()
		rs.kinds[entry.Kind()] = collection
	}

	return collection.AppendIfAbsent(entry)
}

// Remove deletes the request and reports whether it was queued.
func (rs *requestStore) Remove(kind Kind, id UUID) (Entry, bool) {
	rs.Lock()
	defer rs.Unlock()

	collection, ok := rs.kinds[kind]
	if !ok {
		return nil, false
	}

	entry, ok := collection.Delete(id)
	if collection.Length() == 0 {
		delete(rs.kinds, kind)
	}

	return entry, ok
}

// Lookup returns a queued request.
func (rs *requestStore) Lookup(kind Kind, id UUID) (Entry, bool) {
	collection, ok := rs.Load(kind)
	if !ok {
		return nil, false
	}

	return collection.Get(id)
}

// Snapshot returns the requests of a kind, safe to iterate while the store changes.
func (rs *requestStore) Snapshot(kind Kind) []Entry {
	collection, ok := rs.Load(kind)
	if !ok {
		return []Entry{}
	}

	entries := make([]Entry, 0, collection.Length())
	for entry := range collection.Iterator() {
		entries = append(entries, entry)
	}

	return entries
}

// Kinds returns the kinds having at least one request, sorted.
func (rs *requestStore) Kinds() []Kind {
	rs.RLock()
	kinds := make([]Kind, 0, len(rs.kinds))
	for kind := range rs.kinds {
		kinds = append(kinds, kind)
	}
	rs.RUnlock()

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// Length returns the number of queued requests across kinds.
func (rs *requestStore) Length() int {
	rs.RLock()
	defer rs.RUnlock()

	length := 0
	for _, collection := range rs.kinds {
		length += collection.Length()
	}

	return length
}

func (rc *requestCollection) AppendIfAbsent(entry Entry) bool {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	if _, ok := rc.requests[entry.ID()]; ok {
		return false
	}
	rc.requests[entry.ID()] = entry

	return true
}

func (rc *requestCollection) Get(id UUID) (Entry, bool) {
	rc.mux.Lock()
	entry, ok := rc.requests[id]
	rc.mux.Unlock()

	return entry, ok
}

func (rc *requestCollection) Delete(id UUID) (Entry, bool) {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	entry, ok := rc.requests[id]
	delete(rc.requests, id)

	return entry, ok
}

func (rc *requestCollection) Length() int {
	rc.mux.Lock()
	length := len(rc.requests)
	rc.mux.Unlock()

	return length
}

func (rc *requestCollection) Iterator() <-chan Entry {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	c := make(chan Entry, len(rc.requests))
	for _, entry := range rc.requests {
		c <- entry
	}
	close(c)

	return c
}
