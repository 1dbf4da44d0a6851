package replica

import (
	"encoding/json"
	"strconv"
)

// Proxy is a non-owning typed view over a LogicalObject's replicas. It
// exists to give callers a single place to mutate object-level fields
// (logical path, collection id, owner) across every replica at once, and
// to serialize a replica into the canonical finalize-payload field names.
// Proxy never copies Replicas out of Object; it operates on the slice in
// place.
type Proxy struct {
	Object *Object
}

// NewProxy wraps obj in a Proxy.
func NewProxy(obj *Object) *Proxy {
	return &Proxy{Object: obj}
}

// SetLogicalPath propagates a new logical path to the object and is a
// no-op on individual replicas, since path is an object-level field; it
// exists alongside SetOwner/SetCollectionID so callers have one mutator
// per object-level field instead of writing to Object directly.
func (p *Proxy) SetLogicalPath(path string) {
	p.Object.LogicalPath = path
}

// SetOwner propagates owner user/zone to the object. Every replica of
// an object shares the same owner_user/owner_zone, so owner identity is
// not duplicated onto Replica; it lives solely on Object and is read
// from there when building the canonical payload.
func (p *Proxy) SetOwner(user, zone string) {
	p.Object.OwnerUser = user
	p.Object.OwnerZone = zone
}

// SetCollectionID propagates a new collection id to the object.
func (p *Proxy) SetCollectionID(collID int64) {
	p.Object.CollectionID = collID
}

// Canonical is the canonical finalize-payload shape. All values are
// strings, matching the catalog's own string-typed columns; numeric
// Replica/Object fields are formatted on the way out.
type Canonical struct {
	DataID        string `json:"data_id"`
	CollID        string `json:"coll_id"`
	DataName      string `json:"data_name"`
	DataReplNum   string `json:"data_repl_num"`
	DataVersion   string `json:"data_version"`
	DataTypeName  string `json:"data_type_name"`
	DataSize      string `json:"data_size"`
	RescName      string `json:"resc_name"`
	DataPath      string `json:"data_path"`
	DataOwnerName string `json:"data_owner_name"`
	DataOwnerZone string `json:"data_owner_zone"`
	DataIsDirty   string `json:"data_is_dirty"`
	DataStatus    string `json:"data_status"`
	DataChecksum  string `json:"data_checksum"`
	DataExpiryTS  string `json:"data_expiry_ts"`
	DataMapID     string `json:"data_map_id"`
	DataMode      string `json:"data_mode"`
	RComment      string `json:"r_comment"`
	CreateTS      string `json:"create_ts"`
	ModifyTS      string `json:"modify_ts"`
	RescHier      string `json:"resc_hier"`
	RescID        string `json:"resc_id"`
}

// isDirty reports the data_is_dirty flag iRODS derives from status:
// anything other than GOOD/STALE (i.e. a replica mid-transition) is
// "dirty". The lock-acquire payload serializes INTERMEDIATE and
// WRITE_LOCK_ON_REPLICA after-images, so those carry "1"; a replica
// settled at GOOD or STALE carries "0".
func isDirty(s Status) string {
	if s == Good || s == Stale {
		return "0"
	}
	return "1"
}

// Canonical builds the canonical field set for one replica of p.Object.
func (p *Proxy) Canonical(r *Replica) Canonical {
	o := p.Object
	return Canonical{
		DataID:        strconv.FormatInt(o.DataID, 10),
		CollID:        strconv.FormatInt(o.CollectionID, 10),
		DataName:      o.DataName,
		DataReplNum:   strconv.Itoa(r.ReplicaNumber),
		DataVersion:   r.Version,
		DataTypeName:  r.TypeName,
		DataSize:      strconv.FormatInt(r.Size, 10),
		RescName:      r.RescName(),
		DataPath:      r.PhysicalPath,
		DataOwnerName: o.OwnerUser,
		DataOwnerZone: o.OwnerZone,
		DataIsDirty:   isDirty(r.StatusVal),
		DataStatus:    strconv.Itoa(int(r.StatusVal)),
		DataChecksum:  r.Checksum,
		DataExpiryTS:  r.ExpiryTS,
		DataMapID:     strconv.FormatInt(r.MapID, 10),
		DataMode:      r.Mode,
		RComment:      r.Comment,
		CreateTS:      r.CreateTS,
		ModifyTS:      r.ModifyTS,
		RescHier:      r.ResourceHierarchy,
		RescID:        strconv.FormatInt(r.LeafResourceID, 10),
	}
}

// ToJSON serializes every replica of p.Object into its canonical form
// and marshals the resulting slice. pkg/locking does not use it: it
// pairs "before" and "after" snapshots into the data_object_finalize
// envelope by calling Canonical once per replica.
func (p *Proxy) ToJSON() (json.RawMessage, error) {
	out := make([]Canonical, 0, len(p.Object.Replicas))
	for _, r := range p.Object.Replicas {
		out = append(out, p.Canonical(r))
	}
	return json.Marshal(out)
}
