package syncmodel

import "github.com/akarpov87/taskhive/internal/common"

// Op is the intended operation of a LocalChange.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// LocalChange is one queued client-side mutation awaiting push. Exactly one
// of Created/Updated/Deleted is set. ID is the client-local id; ServerID is
// present once the record has been pushed successfully at least once.
type LocalChange struct {
	Table    Table  `json:"table"`
	ID       string `json:"id"`
	ServerID string `json:"serverId,omitempty"`
	Created  Record `json:"created,omitempty"`
	Updated  Record `json:"updated,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// Op returns the operation this change encodes. A change that sets none or
// more than one of created/updated/deleted is malformed.
func (c *LocalChange) Op() (Op, error) {
	var (
		n  int
		op Op
	)
	if c.Created != nil {
		n++
		op = OpCreate
	}
	if c.Updated != nil {
		n++
		op = OpUpdate
	}
	if c.Deleted {
		n++
		op = OpDelete
	}
	if n != 1 {
		return 0, common.ErrMalformedChange
	}
	return op, nil
}

// TargetID is the server-side row id the change applies to: the reconciled
// server id when known, otherwise the local id (which becomes the server id
// on first successful create).
func (c *LocalChange) TargetID() string {
	if c.ServerID != "" {
		return c.ServerID
	}
	return c.ID
}
