// Package locking implements the logical locking algorithm and replica
// state table: it computes and commits the before/after replica-status
// diff that makes a write-open's exclusive hold visible to other
// agents, and reverses or finalizes that diff on close.
package locking

import (
	"encoding/json"
	"strconv"

	"github.com/dataforge/objectcore/pkg/replica"
)

// ReplicaDiff pairs a replica's snapshot before and after a state-table
// mutation. Both start identical at entry construction; only After is
// ever mutated, to keep the before/after JSON payload an honest diff.
type ReplicaDiff struct {
	Before *replica.Replica
	After  *replica.Replica
}

// Entry is one replica-state-table row, keyed by logical path in Table.
// It snapshots object-level fields once (they're invariant across the
// object's replicas) alongside the per-replica before/after pairs.
type Entry struct {
	DataID       int64
	CollectionID int64
	LogicalPath  string
	DataName     string
	OwnerUser    string
	OwnerZone    string

	Replicas []*ReplicaDiff
}

func (e *Entry) diffByNumber(n int) *ReplicaDiff {
	for _, d := range e.Replicas {
		if d.After.ReplicaNumber == n {
			return d
		}
	}
	return nil
}

func (e *Entry) objectView(pick func(*ReplicaDiff) *replica.Replica) *replica.Object {
	obj := &replica.Object{
		DataID:       e.DataID,
		CollectionID: e.CollectionID,
		LogicalPath:  e.LogicalPath,
		DataName:     e.DataName,
		OwnerUser:    e.OwnerUser,
		OwnerZone:    e.OwnerZone,
	}
	for _, d := range e.Replicas {
		obj.Replicas = append(obj.Replicas, pick(d))
	}
	return obj
}

// finalizePayload is the data_object_finalize envelope: one before/after
// pair per replica, plus the object's data_id.
type finalizePayload struct {
	DataID   string       `json:"data_id"`
	Replicas []replicaPair `json:"replicas"`
}

type replicaPair struct {
	Before replica.Canonical `json:"before"`
	After  replica.Canonical `json:"after"`
}

// ToJSON builds the data_object_finalize payload for e.
func (e *Entry) ToJSON() (json.RawMessage, error) {
	beforeProxy := replica.NewProxy(e.objectView(func(d *ReplicaDiff) *replica.Replica { return d.Before }))
	afterProxy := replica.NewProxy(e.objectView(func(d *ReplicaDiff) *replica.Replica { return d.After }))

	pairs := make([]replicaPair, len(e.Replicas))
	for i, d := range e.Replicas {
		pairs[i] = replicaPair{
			Before: beforeProxy.Canonical(d.Before),
			After:  afterProxy.Canonical(d.After),
		}
	}
	return json.Marshal(finalizePayload{
		DataID:   strconv.FormatInt(e.DataID, 10),
		Replicas: pairs,
	})
}
