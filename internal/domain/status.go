package domain

import (
	"strings"

	customError "github.com/unilib/circulation-engine/pkg/errors"
)

// Status is the canonical lifecycle state of a borrow record, independent
// of how it is spelled in storage.
type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
	StatusRenewed  Status = "renewed"
)

// storageLabels holds the one legacy label written to the database for each
// canonical status. Historical rows were written under this vocabulary and
// new writes keep using it so the column stays uniform going forward.
var storageLabels = map[Status]string{
	StatusBorrowed: "借阅中",
	StatusReturned: "已归还",
	StatusOverdue:  "已逾期",
	StatusRenewed:  "已续借",
}

// statusAliases lists every spelling accepted when reading a status from
// storage: the canonical English token, the storage label, and the legacy
// variants observed in imported data. Lookup is trimmed and case-folded.
var statusAliases = map[Status][]string{
	StatusBorrowed: {"borrowed", "借阅中", "正在借阅", "current", "在借"},
	StatusReturned: {"returned", "已归还", "归还", "已还"},
	StatusOverdue:  {"overdue", "已逾期", "逾期", "逾期归还"},
	StatusRenewed:  {"renewed", "已续借", "续借"},
}

var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]Status {
	index := make(map[string]Status)
	for status, aliases := range statusAliases {
		for _, alias := range aliases {
			index[strings.ToLower(alias)] = status
		}
	}
	return index
}

// ParseStatus resolves a raw storage or request value to its canonical
// status. Values outside the known vocabulary fail with an
// ErrUnrecognizedStatus-wrapped validation error; the raw value is never
// passed through as if it were canonical.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", customError.WrapUnrecognizedStatus(raw)
	}
	status, ok := aliasIndex[normalized]
	if !ok {
		return "", customError.WrapUnrecognizedStatus(raw)
	}
	return status, nil
}

// StorageLabel returns the exact string written to the database for this
// status.
func (s Status) StorageLabel() string {
	return storageLabels[s]
}

// CompatibleStorageValues returns every string that should be interpreted
// as this status when found in storage. Used to build "status = ANY(...)"
// filters that match rows written under either vocabulary.
func (s Status) CompatibleStorageValues() []string {
	aliases := statusAliases[s]
	values := make([]string, len(aliases))
	copy(values, aliases)
	return values
}

// IsAdminAssignable reports whether staff may set this status directly.
// Renewed is reached only through the renew operation.
func (s Status) IsAdminAssignable() bool {
	switch s {
	case StatusBorrowed, StatusReturned, StatusOverdue:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
