package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upsertCall struct {
	roomID int64
	shapes []string
}

// recordingStore captures upserts and signals each one on a channel
// so tests can wait for the worker without sleeping.
type recordingStore struct {
	mu    sync.Mutex
	calls []upsertCall
	ch    chan upsertCall
	err   error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{ch: make(chan upsertCall, 16)}
}

func (s *recordingStore) UpsertRoomState(_ context.Context, roomID int64, shapes []string) error {
	s.mu.Lock()
	s.calls = append(s.calls, upsertCall{roomID: roomID, shapes: shapes})
	s.mu.Unlock()
	s.ch <- upsertCall{roomID: roomID, shapes: shapes}
	return s.err
}

func (s *recordingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordingStore) waitForCall(t *testing.T) upsertCall {
	t.Helper()
	select {
	case call := <-s.ch:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("no upsert arrived")
		return upsertCall{}
	}
}

func TestPersister_ReserializesEachShape(t *testing.T) {
	store := newRecordingStore()
	p := NewPersister(store)
	go p.Run()
	defer p.Stop()

	p.Enqueue(42, `["shapeA", {"type":"rect","x":1}]`)

	call := store.waitForCall(t)
	assert.Equal(t, int64(42), call.roomID)
	require.Len(t, call.shapes, 2)
	assert.Equal(t, `"shapeA"`, call.shapes[0])
	assert.JSONEq(t, `{"type":"rect","x":1}`, call.shapes[1])
}

func TestPersister_EmptySequence(t *testing.T) {
	store := newRecordingStore()
	p := NewPersister(store)
	go p.Run()
	defer p.Stop()

	p.Enqueue(7, `[]`)

	call := store.waitForCall(t)
	assert.Equal(t, int64(7), call.roomID)
	assert.Empty(t, call.shapes)
}

func TestPersister_SwallowsBadPayload(t *testing.T) {
	store := newRecordingStore()
	p := NewPersister(store)
	go p.Run()

	p.Enqueue(42, `not json at all`)
	p.Enqueue(42, `{"an":"object, not a sequence"}`)
	p.Stop()

	assert.Zero(t, store.callCount())
}

func TestPersister_StoreFailureDoesNotStopWorker(t *testing.T) {
	store := newRecordingStore()
	store.err = context.DeadlineExceeded
	p := NewPersister(store)
	go p.Run()
	defer p.Stop()

	p.Enqueue(1, `["a"]`)
	store.waitForCall(t)

	// Worker survives the failed upsert and keeps draining.
	p.Enqueue(2, `["b"]`)
	call := store.waitForCall(t)
	assert.Equal(t, int64(2), call.roomID)
}

func TestPersister_StopDrainsQueue(t *testing.T) {
	store := newRecordingStore()
	p := NewPersister(store)

	p.Enqueue(1, `["a"]`)
	p.Enqueue(2, `["b"]`)

	go p.Run()
	p.Stop()

	assert.Equal(t, 2, store.callCount())
}
