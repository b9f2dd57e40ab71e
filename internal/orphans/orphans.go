// Package orphans holds the tracked-orphan data model shared by the scanner,
// the record store and the reconciliation engine.
package orphans

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a tracked record.
type Status int

const (
	StatusPending Status = iota
	StatusIgnored
	StatusDeleted
	StatusRestored
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusIgnored:
		return "Ignored"
	case StatusDeleted:
		return "Deleted"
	case StatusRestored:
		return "Restored"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus accepts a status name or its numeric code.
func ParseStatus(s string) (Status, error) {
	for st := StatusPending; st <= StatusRestored; st++ {
		if strings.EqualFold(s, st.String()) || s == fmt.Sprint(int(st)) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// Reason classifies why a row was flagged.
type Reason int

const (
	ReasonForeignKey Reason = iota
	ReasonMissingInstance
	ReasonMissingModule
	ReasonMissingCourse
	ReasonMissingSection
)

func (r Reason) String() string {
	switch r {
	case ReasonForeignKey:
		return "ForeignKey"
	case ReasonMissingInstance:
		return "MissingInstance"
	case ReasonMissingModule:
		return "MissingModule"
	case ReasonMissingCourse:
		return "MissingCourse"
	case ReasonMissingSection:
		return "MissingSection"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// ParseReason accepts a reason name or its numeric code.
func ParseReason(s string) (Reason, error) {
	for r := ReasonForeignKey; r <= ReasonMissingSection; r++ {
		if strings.EqualFold(s, r.String()) || s == fmt.Sprint(int(r)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown reason %q", s)
}

// ReasonText is the operator-facing description of a reason.
func ReasonText(r Reason, reffields, reftable string) string {
	switch r {
	case ReasonForeignKey:
		return fmt.Sprintf("Potential foreign key violation against table %q with field(s) %q", reftable, reffields)
	case ReasonMissingInstance:
		return "Missing activity instance record"
	case ReasonMissingModule:
		return "Missing course module record"
	case ReasonMissingCourse:
		return "Missing course record"
	case ReasonMissingSection:
		return "Missing course section record"
	default:
		return r.String()
	}
}

// Action is an operator decision applied to one tracked record.
type Action string

const (
	ActionIgnore  Action = "ignore"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionPending Action = "pending"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionIgnore, ActionDelete, ActionRestore, ActionPending:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Target is the status an action moves a record to.
func (a Action) Target() Status {
	switch a {
	case ActionIgnore:
		return StatusIgnored
	case ActionDelete:
		return StatusDeleted
	case ActionRestore:
		return StatusRestored
	default:
		return StatusPending
	}
}

// FieldSeparator joins multi-column reference lists in reffields.
const FieldSeparator = "|"

// JoinFields renders a column list the way reffields stores it.
func JoinFields(cols []string) string {
	return strings.Join(cols, FieldSeparator)
}

// Record is one tracked orphan.
// OrphanRow holds the encoded snapshot, empty until the record is first deleted.
type Record struct {
	ID           int64     `json:"id"`
	OrphanTable  string    `json:"orphan_table"`
	OrphanID     int64     `json:"orphan_id"`
	Reason       Reason    `json:"reason"`
	RefFields    string    `json:"reffields"`
	RefTable     string    `json:"reftable"`
	Status       Status    `json:"status"`
	OrphanRow    string    `json:"orphan_row,omitempty"`
	TimeCreated  time.Time `json:"time_created"`
	TimeModified time.Time `json:"time_modified"`
}

// Filter selects tracked records. Zero-valued fields do not constrain.
type Filter struct {
	OrphanTable   string
	OrphanID      *int64
	Reason        *Reason
	RefFields     string
	RefTable      string
	Status        *Status
	ExcludeStatus *Status
	AfterID       int64
	Limit         int
}

var (
	ErrNotFound      = errors.New("orphaned record not found")
	ErrDataIntegrity = errors.New("orphaned record has no usable snapshot")
	ErrInvalidAction = errors.New("invalid action")
	ErrCannotRestore = errors.New("record cannot be restored")
)
