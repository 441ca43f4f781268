package entities

import "time"

type LoanAction string

const (
	LoanActionRequest    LoanAction = "request"
	LoanActionApprove    LoanAction = "approve"
	LoanActionReject     LoanAction = "reject"
	LoanActionLend       LoanAction = "lend"
	LoanActionReturn     LoanAction = "return"
	LoanActionBookDelete LoanAction = "book_delete"
	// LoanActionReconcile marks state an operator has to repair by hand.
	LoanActionReconcile LoanAction = "reconcile"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// LoanEvent is one entry of the audit journal.
type LoanEvent struct {
	ID        string      `json:"id"`
	Action    LoanAction  `json:"action"`
	UserID    string      `json:"user_id,omitempty"`
	BookID    string      `json:"book_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	RecordID  string      `json:"record_id,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"` // admin who performed the action, if any
	Status    AuditStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
