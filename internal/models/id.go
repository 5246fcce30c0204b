package models

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ID identifies a conversation or message. It is either Remote (assigned by
// the backend) or Local (minted on the client before the backend confirms).
type ID struct {
	remote int64
	local  uuid.UUID
}

func RemoteID(id int64) ID {
	return ID{remote: id}
}

func LocalID() ID {
	return ID{local: uuid.New()}
}

// ParseID accepts the decimal form of a server id.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return ID{}, fmt.Errorf("invalid id %q", s)
	}
	return RemoteID(n), nil
}

func (id ID) IsZero() bool {
	return id.remote == 0 && id.local == uuid.Nil
}

func (id ID) IsLocal() bool {
	return id.local != uuid.Nil
}

// Remote returns the server id, or false for local and zero ids.
func (id ID) Remote() (int64, bool) {
	if id.IsLocal() || id.remote == 0 {
		return 0, false
	}
	return id.remote, true
}

func (id ID) String() string {
	switch {
	case id.IsLocal():
		return "local:" + id.local.String()
	case id.remote != 0:
		return strconv.FormatInt(id.remote, 10)
	default:
		return "<none>"
	}
}

// Less orders remote ids numerically before local ids.
func (id ID) Less(other ID) bool {
	if id.IsLocal() != other.IsLocal() {
		return !id.IsLocal()
	}
	if id.IsLocal() {
		return id.local.String() < other.local.String()
	}
	return id.remote < other.remote
}
