package entities

import (
	"testing"

	"github.com/matryer/is"
)

func TestMergePrefersRequestedValueRegardlessOfOrder(t *testing.T) {
	is := is.New(t)

	requested := Requested[any]("value")
	placeholder := NotRequested[any]()

	merged := placeholder.Merge(requested)
	v, ok := merged.Value()
	is.True(ok)
	is.Equal(v, "value")

	merged = requested.Merge(placeholder)
	v, ok = merged.Value()
	is.True(ok) // an existing requested value survives an incoming placeholder
	is.Equal(v, "value")
}

func TestMergeOfTwoRequestedValuesKeepsTheIncomingOne(t *testing.T) {
	is := is.New(t)

	older := Requested[any]("older")
	newer := Requested[any]("newer")

	v, ok := older.Merge(newer).Value()
	is.True(ok)
	is.Equal(v, "newer")
}

func TestRecordMergeCombinesFields(t *testing.T) {
	is := is.New(t)

	model := NewRecordModel("Device")
	id := NewIdentifier()

	existing := NewRecord(id, "Device", F("name", "sensor"), Placeholder("description"))
	incoming := NewRecord(id, "Device", Placeholder("name"), F("description", "a sensor"))

	merged := model.Merge(existing, incoming)

	name, ok := merged.Field("name")
	is.True(ok)
	is.Equal(name, "sensor")

	description, ok := merged.Field("description")
	is.True(ok)
	is.Equal(description, "a sensor")
}

func TestRecordMergeKeepsRemoteConfirmation(t *testing.T) {
	is := is.New(t)

	model := NewRecordModel("Device")
	id := NewIdentifier()

	existing := NewRecord(id, "Device")
	incoming := NewRecord(id.WithRemote("remote-1"), "Device")

	merged := model.Merge(existing, incoming)
	is.True(merged.Identifier().IsSynced())
}

func TestRecordRoundTripsThroughJSON(t *testing.T) {
	is := is.New(t)

	model := NewRecordModel("Device", PathSpec{Name: "owner", TargetType: "Person"})
	owner := NewSyncedIdentifier("urn:person:1")

	r := NewRecord(NewIdentifier(), "Device", F("name", "sensor"), R("owner", owner))

	data, err := model.EncodeSlice([]*Record{r})
	is.NoErr(err)

	decoded, err := model.DecodeSlice(data)
	is.NoErr(err)
	is.Equal(len(decoded), 1)
	is.True(decoded[0].Identifier().Equals(r.Identifier()))

	name, ok := decoded[0].Field("name")
	is.True(ok)
	is.Equal(name, "sensor")

	related := decoded[0].Related("owner")
	is.Equal(len(related), 1)
	is.True(related[0].Equals(owner))
}

func TestDecodeSliceRejectsNullElements(t *testing.T) {
	is := is.New(t)

	model := NewRecordModel("Device")

	for _, payload := range []string{"[null]", "[{},null]"} {
		_, err := model.DecodeSlice([]byte(payload))
		is.True(err != nil) // null elements surface as errors, never a panic
	}
}

func TestIdenticalRecords(t *testing.T) {
	is := is.New(t)

	model := NewRecordModel("Device")
	id := NewIdentifier()

	a := NewRecord(id, "Device", F("name", "sensor"))
	b := NewRecord(id, "Device", F("name", "sensor"))
	c := NewRecord(id, "Device", F("name", "other"))

	is.True(model.Identical(a, b))
	is.True(!model.Identical(a, c))
}
