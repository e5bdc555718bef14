package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Owner identifies who plays a session: a guest or a registered account
type Owner struct {
	id      int64
	account bool
}

// Guest returns the anonymous owner
func Guest() Owner {
	return Owner{}
}

// Account returns an owner backed by a user account
func Account(id int64) Owner {
	return Owner{id: id, account: true}
}

// OwnerFromID returns Account(*id), or Guest for nil
func OwnerFromID(id *int64) Owner {
	if id == nil {
		return Guest()
	}
	return Account(*id)
}

// ParseOwner decides the owner from a client-supplied user id.
// Anything that is not a positive integer is a guest.
func ParseOwner(raw string) Owner {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return Guest()
	}
	return Account(id)
}

// AccountID returns the account id and whether the owner has one
func (o Owner) AccountID() (int64, bool) {
	return o.id, o.account
}

// IsGuest reports whether the session is anonymous
func (o Owner) IsGuest() bool {
	return !o.account
}

// IDPtr returns the account id as a pointer, nil for guests
func (o Owner) IDPtr() *int64 {
	if !o.account {
		return nil
	}
	id := o.id
	return &id
}

func (o Owner) String() string {
	if !o.account {
		return "guest"
	}
	return fmt.Sprintf("account:%d", o.id)
}

// MarshalJSON encodes guests as null and accounts as their id
func (o Owner) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.IDPtr())
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	var id *int64
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	*o = OwnerFromID(id)
	return nil
}
