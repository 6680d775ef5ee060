package models

import (
	"time"

	"github.com/google/uuid"
)

// ParentAction is the single action a parent must take for a task.
type ParentAction string

const (
	ParentActionNone      ParentAction = "NONE"
	ParentActionSubmit    ParentAction = "SUBMIT"
	ParentActionSign      ParentAction = "SIGN"
	ParentActionPay       ParentAction = "PAY"
	ParentActionPurchase  ParentAction = "PURCHASE"
	ParentActionAttend    ParentAction = "ATTEND"
	ParentActionTransport ParentAction = "TRANSPORT"
	ParentActionVolunteer ParentAction = "VOLUNTEER"
	ParentActionOther     ParentAction = "OTHER"
)

// StudentAction is the single action a student must take for a task.
type StudentAction string

const (
	StudentActionNone    StudentAction = "NONE"
	StudentActionSubmit  StudentAction = "SUBMIT"
	StudentActionAttend  StudentAction = "ATTEND"
	StudentActionSetup   StudentAction = "SETUP"
	StudentActionBring   StudentAction = "BRING"
	StudentActionPrepare StudentAction = "PREPARE"
	StudentActionWear    StudentAction = "WEAR"
	StudentActionCollect StudentAction = "COLLECT"
	StudentActionOther   StudentAction = "OTHER"
)

// RequirementLevel describes how binding an action is.
type RequirementLevel string

const (
	RequirementNone      RequirementLevel = "NONE"
	RequirementOptional  RequirementLevel = "OPTIONAL"
	RequirementVolunteer RequirementLevel = "VOLUNTEER"
	RequirementMandatory RequirementLevel = "MANDATORY"
)

// TaskStatus represents the lifecycle state of a task.
// Only open tasks participate in reconciliation; completion happens
// outside this pipeline.
type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "OPEN"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

// ParentActions lists the valid parent_action enum members.
var ParentActions = []ParentAction{
	ParentActionNone, ParentActionSubmit, ParentActionSign, ParentActionPay,
	ParentActionPurchase, ParentActionAttend, ParentActionTransport,
	ParentActionVolunteer, ParentActionOther,
}

// StudentActions lists the valid student_action enum members.
var StudentActions = []StudentAction{
	StudentActionNone, StudentActionSubmit, StudentActionAttend,
	StudentActionSetup, StudentActionBring, StudentActionPrepare,
	StudentActionWear, StudentActionCollect, StudentActionOther,
}

// RequirementLevels lists the valid requirement-level enum members.
var RequirementLevels = []RequirementLevel{
	RequirementNone, RequirementOptional, RequirementVolunteer,
	RequirementMandatory,
}

// Task is one actionable item extracted from email content.
// Nullable fields stay nil when the model omitted them or supplied a
// value outside the enum/format contract.
type Task struct {
	ID                      int64             `json:"id"`
	UserID                  uuid.UUID         `json:"user_id"`
	EmailID                 *int64            `json:"email_id,omitempty"`
	Title                   string            `json:"title"`
	Description             *string           `json:"description"`
	DueDate                 *string           `json:"due_date"`
	ConsequenceIfIgnore     *string           `json:"consequence_if_ignore"`
	ParentAction            *ParentAction     `json:"parent_action"`
	ParentRequirementLevel  *RequirementLevel `json:"parent_requirement_level"`
	StudentAction           *StudentAction    `json:"student_action"`
	StudentRequirementLevel *RequirementLevel `json:"student_requirement_level"`
	Status                  TaskStatus        `json:"status"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// TaskPayload is the wire shape of a task as it is shown to the model:
// just the content fields, no identifiers or timestamps.
type TaskPayload struct {
	Title                   string            `json:"title"`
	Description             *string           `json:"description"`
	DueDate                 *string           `json:"due_date"`
	ConsequenceIfIgnore     *string           `json:"consequence_if_ignore"`
	ParentAction            *ParentAction     `json:"parent_action"`
	ParentRequirementLevel  *RequirementLevel `json:"parent_requirement_level"`
	StudentAction           *StudentAction    `json:"student_action"`
	StudentRequirementLevel *RequirementLevel `json:"student_requirement_level"`
}

// Payload strips a task down to the fields the model sees.
func (t *Task) Payload() TaskPayload {
	return TaskPayload{
		Title:                   t.Title,
		Description:             t.Description,
		DueDate:                 t.DueDate,
		ConsequenceIfIgnore:     t.ConsequenceIfIgnore,
		ParentAction:            t.ParentAction,
		ParentRequirementLevel:  t.ParentRequirementLevel,
		StudentAction:           t.StudentAction,
		StudentRequirementLevel: t.StudentRequirementLevel,
	}
}
