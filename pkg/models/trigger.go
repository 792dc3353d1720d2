package models

// TriggerSource identifies how an orchestrator run was requested.
type TriggerSource string

const (
	TriggerDirect   TriggerSource = "direct"
	TriggerQueue    TriggerSource = "queue"
	TriggerRecovery TriggerSource = "recovery"
)

// Trigger is the intake payload sent by the frame-extraction collaborator
// once frames are available. Field names follow the upstream wire format.
type Trigger struct {
	JobID   string `json:"analysis_id" validate:"required,max=128"`
	OwnerID string `json:"user_id"     validate:"required,max=128"`
	Status  string `json:"status"      validate:"required,oneof=COMPLETED READY_FOR_AI"`

	Source TriggerSource `json:"source,omitempty"`
	// ClaimedVersion is set by the recovery path after it has moved the job to
	// AI_PROCESSING; the run only proceeds if the record still holds that version.
	ClaimedVersion int64 `json:"claimed_version,omitempty"`
}
