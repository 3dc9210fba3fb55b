package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	persistQueueSize = 64
	persistTimeout   = 10 * time.Second
)

// StateStore is the durable per-room state store the persister writes
// through. The production implementation lives in internal/store.
type StateStore interface {
	UpsertRoomState(ctx context.Context, roomID int64, shapes []string) error
}

type stateSnapshot struct {
	roomID  int64
	payload string
}

// Persister applies room-state snapshots to the store off the relay
// hot path. Enqueue never blocks; a full queue drops the snapshot
// with a log line, and a store failure never reaches the session that
// triggered the save.
type Persister struct {
	store    StateStore
	queue    chan stateSnapshot
	done     chan struct{}
	stopOnce sync.Once
}

func NewPersister(store StateStore) *Persister {
	return &Persister{
		store: store,
		queue: make(chan stateSnapshot, persistQueueSize),
		done:  make(chan struct{}),
	}
}

// Run drains the queue until Stop is called. Meant to run on its own
// goroutine, like the hub pumps.
func (p *Persister) Run() {
	defer close(p.done)
	for snap := range p.queue {
		p.save(snap)
	}
}

// Stop closes the queue and waits for the worker to finish the
// snapshots already buffered.
func (p *Persister) Stop() {
	p.stopOnce.Do(func() {
		close(p.queue)
	})
	<-p.done
}

// Enqueue hands a snapshot to the worker without blocking the caller.
func (p *Persister) Enqueue(roomID int64, payload string) {
	select {
	case p.queue <- stateSnapshot{roomID: roomID, payload: payload}:
	default:
		log.Printf("persister: queue full, dropping snapshot for room %d", roomID)
	}
}

// save parses the payload as an ordered sequence of shape records and
// overwrites the room's stored state with the full sequence. The
// shape contents are opaque: each element is re-serialized as-is, no
// semantic validation.
func (p *Persister) save(snap stateSnapshot) {
	var records []interface{}
	if err := json.Unmarshal([]byte(snap.payload), &records); err != nil {
		log.Printf("persister: bad payload for room %d: %v", snap.roomID, err)
		return
	}

	shapes := make([]string, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			log.Printf("persister: reserialize shape for room %d: %v", snap.roomID, err)
			return
		}
		shapes = append(shapes, string(data))
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.store.UpsertRoomState(ctx, snap.roomID, shapes); err != nil {
		log.Printf("persister: upsert room %d failed: %v", snap.roomID, err)
	}
}
