package entities

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// ErrNotSynced is returned when a remote only operation is addressed
// with an identifier that has not yet been confirmed by the remote.
var ErrNotSynced = errors.New("identifier not synced")

type SyncState int

const (
	OutOfSync SyncState = iota
	Synced
)

// Identifier is the dual component key for an entity. The local
// component is generated on the client and is stable before the
// remote has acknowledged the entity. The remote component is
// assigned by the server.
type Identifier struct {
	local  string
	remote string
	state  SyncState
}

// NewIdentifier returns a client generated identifier that has not
// been confirmed by the remote yet.
func NewIdentifier() Identifier {
	return Identifier{local: uuid.NewString(), state: OutOfSync}
}

func NewLocalIdentifier(local string) Identifier {
	return Identifier{local: local, state: OutOfSync}
}

// NewSyncedIdentifier returns an identifier for an entity that is
// already known to the remote.
func NewSyncedIdentifier(remote string) Identifier {
	return Identifier{remote: remote, state: Synced}
}

func NewPairedIdentifier(local, remote string) Identifier {
	return Identifier{local: local, remote: remote, state: Synced}
}

func (i Identifier) Local() string {
	return i.local
}

// Remote returns the server assigned component, or ErrNotSynced if
// the identifier has not been confirmed by the remote.
func (i Identifier) Remote() (string, error) {
	if i.remote == "" {
		return "", ErrNotSynced
	}
	return i.remote, nil
}

func (i Identifier) IsSynced() bool {
	return i.state == Synced && i.remote != ""
}

// WithRemote returns a copy of the identifier confirmed by the
// remote under the given server assigned component.
func (i Identifier) WithRemote(remote string) Identifier {
	i.remote = remote
	i.state = Synced
	return i
}

// Equals implements the remote first equality rule: two identifiers
// are equal if their remote components match, or, absent a remote
// match, if their local components match.
func (i Identifier) Equals(other Identifier) bool {
	if i.remote != "" && other.remote != "" {
		return i.remote == other.remote
	}
	return i.local != "" && i.local == other.local
}

// Key returns a stable map key for the identifier, preferring the
// remote component when present.
func (i Identifier) Key() string {
	if i.remote != "" {
		return i.remote
	}
	return i.local
}

func (i Identifier) IsZero() bool {
	return i.local == "" && i.remote == ""
}

func (i Identifier) String() string {
	return i.Key()
}

type identifierJSON struct {
	Local  string `json:"local,omitempty"`
	Remote string `json:"remote,omitempty"`
}

func (i Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(identifierJSON{Local: i.local, Remote: i.remote})
}

func (i *Identifier) UnmarshalJSON(data []byte) error {
	repr := identifierJSON{}

	err := json.Unmarshal(data, &repr)
	if err != nil {
		return err
	}

	i.local = repr.Local
	i.remote = repr.Remote
	i.state = OutOfSync

	if i.remote != "" {
		i.state = Synced
	}

	return nil
}
