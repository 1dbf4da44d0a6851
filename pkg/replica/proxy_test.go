package replica

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedObject() *Object {
	return &Object{
		DataID:       4021,
		CollectionID: 10,
		LogicalPath:  "/tempZone/home/rods/foo",
		DataName:     "foo",
		OwnerUser:    "rods",
		OwnerZone:    "tempZone",
		Replicas: []*Replica{
			{
				DataID:            4021,
				ReplicaNumber:     0,
				ResourceHierarchy: "demoResc",
				LeafResourceID:    1,
				Size:              7,
				Checksum:          "sha2:abc",
				PhysicalPath:      "/var/lib/irods/Vault/foo",
				Mode:              "0644",
				TypeName:          "generic",
				Version:           "1",
				StatusVal:         Good,
				CreateTS:          "01700000000",
				ModifyTS:          "01700000000",
			},
		},
	}
}

func TestProxySetters(t *testing.T) {
	p := NewProxy(seedObject())

	p.SetLogicalPath("/tempZone/home/rods/bar")
	p.SetOwner("alice", "tempZone")
	p.SetCollectionID(11)

	assert.Equal(t, "/tempZone/home/rods/bar", p.Object.LogicalPath)
	assert.Equal(t, "alice", p.Object.OwnerUser)
	assert.Equal(t, int64(11), p.Object.CollectionID)
}

func TestProxyCanonical(t *testing.T) {
	p := NewProxy(seedObject())
	c := p.Canonical(p.Object.Replicas[0])

	assert.Equal(t, "4021", c.DataID)
	assert.Equal(t, "10", c.CollID)
	assert.Equal(t, "foo", c.DataName)
	assert.Equal(t, "0", c.DataReplNum)
	assert.Equal(t, "7", c.DataSize)
	assert.Equal(t, "demoResc", c.RescName)
	assert.Equal(t, "1", c.DataStatus) // Good == 1
	assert.Equal(t, "0", c.DataIsDirty)
	assert.Equal(t, "rods", c.DataOwnerName)
	assert.Equal(t, "tempZone", c.DataOwnerZone)
	assert.Equal(t, "1", c.RescID)
}

func TestProxyCanonicalDirtyDuringIntermediate(t *testing.T) {
	p := NewProxy(seedObject())
	p.Object.Replicas[0].StatusVal = Intermediate
	c := p.Canonical(p.Object.Replicas[0])
	assert.Equal(t, "1", c.DataIsDirty)
}

func TestProxyToJSONRoundTrips(t *testing.T) {
	p := NewProxy(seedObject())
	raw, err := p.ToJSON()
	require.NoError(t, err)

	var decoded []Canonical
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "4021", decoded[0].DataID)
	assert.Equal(t, "demoResc", decoded[0].RescHier)
}
