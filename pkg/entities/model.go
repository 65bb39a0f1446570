package entities

// PathSpec declares a named relationship path from one entity type
// to another.
type PathSpec struct {
	Name       string
	TargetType string
}

// Model is the per type trait that the store stack dispatches
// through. Implementations decide how entities of type E expose
// their identity, their filterable fields, their relationships and
// how two versions with the same identifier are combined.
type Model[E any] interface {
	EntityType() string

	Identity(e E) Identifier

	// Value returns the value of a filterable field, and whether the
	// field is present and has been requested.
	Value(e E, field string) (any, bool)

	// Merge combines an existing and an incoming version carrying
	// the same identifier and returns the version to keep.
	Merge(existing, incoming E) E

	// Identical reports whether two versions are field for field the
	// same, which allows a caching tier to skip redundant writes.
	Identical(a, b E) bool

	RelationshipPaths() []PathSpec

	// Related returns the identifiers an entity holds for the named
	// relationship path.
	Related(e E, path string) []Identifier

	EncodeSlice(items []E) ([]byte, error)
	DecodeSlice(data []byte) ([]E, error)
}
