package authorization

import (
	"context"
	"errors"
)

const (
	ObjectMeter          = "meter"
	ObjectAgent          = "agent"
	ObjectAgentSelf      = "agent_self"
	ObjectAssignment     = "assignment"
	ObjectAssignmentSelf = "assignment_self"
	ObjectApproval       = "approval"
	ObjectReading        = "reading"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionMeterList   = "meter.list"
	ActionMeterView   = "meter.view"
	ActionMeterCreate = "meter.create"
	ActionMeterUpdate = "meter.update"
	ActionMeterDelete = "meter.delete"

	ActionAgentList   = "agent.list"
	ActionAgentView   = "agent.view"
	ActionAgentCreate = "agent.create"
	ActionAgentUpdate = "agent.update"
	ActionAgentStats  = "agent.stats"

	ActionAgentSelfView   = "agent_self.view"
	ActionAgentSelfUpdate = "agent_self.update"

	ActionAssignmentList   = "assignment.list"
	ActionAssignmentView   = "assignment.view"
	ActionAssignmentCreate = "assignment.create"
	ActionAssignmentUpdate = "assignment.update"

	ActionAssignmentSelfView   = "assignment_self.view"
	ActionAssignmentSelfUpdate = "assignment_self.update"

	ActionApprovalSubmit = "approval.submit"
	ActionApprovalView   = "approval.view"
	ActionApprovalReview = "approval.review"

	ActionReadingCreate = "reading.create"
	ActionReadingView   = "reading.view"
	ActionReadingVerify = "reading.verify"
	ActionReadingUpdate = "reading.update"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

type Service interface {
	// Authorize returns ErrForbidden unless role may perform action on object.
	Authorize(ctx context.Context, role string, object string, action string) error
}
