package query

import (
	"errors"
	"testing"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/matryer/is"
)

var deviceModel = entities.NewRecordModel("Device")

func device(name string, value float64) *entities.Record {
	return entities.NewRecord(
		entities.NewLocalIdentifier(name), "Device",
		entities.F("name", name), entities.F("value", value),
	)
}

func TestMatchesFieldAgainstConstant(t *testing.T) {
	is := is.New(t)

	q := Where[*entities.Record](Eq(Field("name"), Value("sensor-1")))

	match, err := q.Match(deviceModel, device("sensor-1", 1))
	is.NoErr(err)
	is.True(match)

	match, err = q.Match(deviceModel, device("sensor-2", 1))
	is.NoErr(err)
	is.True(!match)
}

func TestMatchesNumericComparisonsAcrossTypes(t *testing.T) {
	is := is.New(t)

	q := Where[*entities.Record](Compare(Field("value"), GreaterThan, Value(int(10))))

	match, err := q.Match(deviceModel, device("a", 10.5))
	is.NoErr(err)
	is.True(match) // 10.5 > 10 across float/int operands

	match, err = q.Match(deviceModel, device("b", 9))
	is.NoErr(err)
	is.True(!match)
}

func TestMatchesBooleanCombinators(t *testing.T) {
	is := is.New(t)

	q := Where[*entities.Record](And(
		Compare(Field("value"), GreaterOrEqual, Value(1.0)),
		Not(Eq(Field("name"), Value("excluded"))),
	))

	match, err := q.Match(deviceModel, device("included", 1))
	is.NoErr(err)
	is.True(match)

	match, err = q.Match(deviceModel, device("excluded", 5))
	is.NoErr(err)
	is.True(!match)
}

func TestContainmentMatchesOnIdentifierEquality(t *testing.T) {
	is := is.New(t)

	local := entities.NewLocalIdentifier("local-1")
	synced := local.WithRemote("remote-1")

	e := entities.NewRecord(synced, "Device")

	q := Where[*entities.Record](MemberOf(entities.NewSyncedIdentifier("remote-1")))
	match, err := q.Match(deviceModel, e)
	is.NoErr(err)
	is.True(match) // membership matches on the remote component

	q = Where[*entities.Record](MemberOf(entities.NewSyncedIdentifier("remote-2")))
	match, err = q.Match(deviceModel, e)
	is.NoErr(err)
	is.True(!match)
}

func TestCaseInsensitiveSubstringAndRegex(t *testing.T) {
	is := is.New(t)

	e := device("Water Sensor", 1)

	match, err := Where[*entities.Record](Compare(Field("name"), Contains, Value("water"))).Match(deviceModel, e)
	is.NoErr(err)
	is.True(match)

	match, err = Where[*entities.Record](Compare(Field("name"), Matches, Value("^water.*sensor$"))).Match(deviceModel, e)
	is.NoErr(err)
	is.True(match)
}

func TestIdentifierComparisonsHaveNoOrder(t *testing.T) {
	is := is.New(t)

	q := Where[*entities.Record](Compare(Identity(), LessThan, ID(entities.NewLocalIdentifier("x"))))

	_, err := q.Match(deviceModel, device("a", 1))
	is.True(errors.Is(err, ErrNotSupported))
}

func TestEmptyIdentifierSetShortCircuits(t *testing.T) {
	is := is.New(t)

	q := Where[*entities.Record](MemberOf())
	is.True(q.MatchesNothing())

	q = Where[*entities.Record](And(Eq(Field("name"), Value("a")), MemberOf()))
	is.True(q.MatchesNothing()) // conjunction with an empty set is unsatisfiable

	q = Where[*entities.Record](Or(Eq(Field("name"), Value("a")), MemberOf()))
	is.True(!q.MatchesNothing())

	q = Where[*entities.Record](MemberOf(entities.NewIdentifier()))
	is.True(!q.MatchesNothing())
}

func TestSortAppliesKeysLeftToRight(t *testing.T) {
	is := is.New(t)

	a := device("a", 2)
	b := device("b", 1)
	c := device("c", 1)

	items := []*entities.Record{a, b, c}

	q := All[*entities.Record]().OrderBy(Ascending("value"), Descending("name"))
	q.Sort(deviceModel, items)

	is.Equal(names(items), []string{"c", "b", "a"})
}

func TestSortByExplicitIdentifierList(t *testing.T) {
	is := is.New(t)

	a := device("a", 1)
	b := device("b", 2)
	c := device("c", 3)
	d := device("d", 4)

	items := []*entities.Record{a, b, c, d}

	order := []entities.Identifier{c.Identifier(), a.Identifier()}
	All[*entities.Record]().OrderBy(InOrderOf(order)).Sort(deviceModel, items)

	// listed entities first in list order, absentees keep their
	// relative original order after them
	is.Equal(names(items), []string{"c", "a", "b", "d"})
}

func TestCanonicalFormIsDeterministic(t *testing.T) {
	is := is.New(t)

	build := func() Query[*entities.Record] {
		return Where[*entities.Record](And(
			Eq(Field("name"), Value("sensor")),
			MemberOf(entities.NewLocalIdentifier("local-1")),
		)).OrderBy(Ascending("name"))
	}

	is.Equal(build().Canonical(), build().Canonical())
}

func names(items []*entities.Record) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		name, _ := item.Field("name")
		result = append(result, name.(string))
	}
	return result
}
