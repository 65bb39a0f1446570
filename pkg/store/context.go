package store

// DataSourcePolicy decides which tiers a read is allowed to touch.
type DataSourcePolicy int

const (
	// SourceLocal reads from the local tiers only.
	SourceLocal DataSourcePolicy = iota
	// SourceRemote reads from the remote tier only.
	SourceRemote
	// SourceRemoteThenLocal reads from the remote tier and persists
	// the response into the local tiers before returning it.
	SourceRemoteThenLocal
	// SourceRemoteOrLocal reads from the remote tier, falling back
	// to the local tiers when the remote read fails.
	SourceRemoteOrLocal
)

type PersistencePolicy int

const (
	Persist PersistencePolicy = iota
	DoNotPersist
)

// MergePolicy decides how a caching tier treats a write for an
// identifier it already holds a value for.
type MergePolicy int

const (
	// ReplaceExisting writes the incoming value as is, skipping the
	// durable write when the incoming value is identical to the one
	// already cached.
	ReplaceExisting MergePolicy = iota
	// MergeByIdentifier always writes, combining the existing and
	// incoming versions through the entity's merge operation first.
	MergeByIdentifier
)

// ReadContext is the immutable configuration carried through a read.
type ReadContext struct {
	Source   DataSourcePolicy
	Contract Contract

	// Known carries caller supplied response metadata from an
	// earlier request, letting the remote tier issue a conditional
	// request instead of a full round trip.
	Known *ResponseMetadata

	// TrustRemoteFiltering accepts a remote response as is instead
	// of re-filtering it against the server declared root set.
	// Responses replayed from a cache are always re-filtered.
	TrustRemoteFiltering bool
}

// WriteContext is the immutable configuration carried through a
// write.
type WriteContext struct {
	Persistence PersistencePolicy
	Merge       MergePolicy
	Contract    Contract
}
