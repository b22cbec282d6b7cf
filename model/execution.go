package model

import (
	"fmt"
	"time"
)

type ExecutionStatus string

const PENDING ExecutionStatus = "pending"
const RUNNING ExecutionStatus = "running"
const PAUSED ExecutionStatus = "paused"
const COMPLETED ExecutionStatus = "completed"
const FAILED ExecutionStatus = "failed"
const STOPPED ExecutionStatus = "stopped"

var transitions = map[ExecutionStatus][]ExecutionStatus{
	PENDING: {RUNNING},
	RUNNING: {PAUSED, COMPLETED, FAILED, STOPPED},
	PAUSED:  {RUNNING, STOPPED},
}

func (s ExecutionStatus) IsTerminal() bool {
	return s == COMPLETED || s == FAILED || s == STOPPED
}

func (s ExecutionStatus) CanTransition(to ExecutionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type InvalidTransitionError struct {
	From ExecutionStatus
	To   ExecutionStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

type WorkflowExecution struct {
	Id               string           `json:"id"`
	TemplateId       string           `json:"template_id"`
	TemplateVersion  int              `json:"template_version"`
	ProjectId        string           `json:"project_id,omitempty"`
	WorkspaceId      string           `json:"workspace_id,omitempty"`
	UserId           string           `json:"user_id,omitempty"`
	Status           ExecutionStatus  `json:"status"`
	ProgressPercent  int              `json:"progress_percent"`
	CurrentNodeId    string           `json:"current_node_id,omitempty"`
	ExecutionContext ExecutionContext `json:"execution_context"`
	InputConfig      map[string]any   `json:"input_config,omitempty"`
	Usage            Usage            `json:"usage"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	RunOwner         string           `json:"run_owner,omitempty"`
	RunLeaseUntil    *time.Time       `json:"run_lease_until,omitempty"`
}

// Claimed reports whether some runner other than owner holds a live lease.
func (e *WorkflowExecution) Claimed(owner string, now time.Time) bool {
	return e.RunOwner != "" && e.RunOwner != owner && e.RunLeaseUntil != nil && now.Before(*e.RunLeaseUntil)
}

// Release drops the run lease when owner still holds it.
func (e *WorkflowExecution) Release(owner string) bool {
	if e.RunOwner != owner {
		return false
	}
	e.RunOwner = ""
	e.RunLeaseUntil = nil
	return true
}

// Transition moves the execution to a new status, stamping started/completed
// times. Completed runs are forced to 100% progress.
func (e *WorkflowExecution) Transition(to ExecutionStatus, now time.Time) error {
	if !e.Status.CanTransition(to) {
		return InvalidTransitionError{From: e.Status, To: to}
	}
	if to == RUNNING && e.StartedAt == nil {
		t := now
		e.StartedAt = &t
	}
	if to.IsTerminal() {
		t := now
		e.CompletedAt = &t
	}
	if to == COMPLETED {
		e.ProgressPercent = 100
	}
	e.Status = to
	return nil
}

type JobStatus string

const JOB_PENDING JobStatus = "pending"
const JOB_RUNNING JobStatus = "running"
const JOB_COMPLETED JobStatus = "completed"
const JOB_FAILED JobStatus = "failed"

// JOB_HALTED marks an attempt cut short by a pause, stop or shutdown.
const JOB_HALTED JobStatus = "halted"

// AgentJob is the audit row written for every node execution attempt.
type AgentJob struct {
	Id             string         `json:"id"`
	ExecutionId    string         `json:"execution_id"`
	NodeId         string         `json:"node_id"`
	NodeType       NodeType       `json:"node_type"`
	ExecutionOrder int            `json:"execution_order"`
	Iteration      int            `json:"iteration"`
	Status         JobStatus      `json:"status"`
	Output         map[string]any `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NodeOutput is the durable copy of a completed node's field map, replayed
// into the fast tier on restore.
type NodeOutput struct {
	Id             string         `json:"id"`
	ExecutionId    string         `json:"execution_id"`
	NodeId         string         `json:"node_id"`
	NodeType       NodeType       `json:"node_type"`
	Name           string         `json:"name"`
	ExecutionOrder int            `json:"execution_order"`
	Iteration      int            `json:"iteration"`
	Outputs        map[string]any `json:"outputs"`
	CreatedAt      time.Time      `json:"created_at"`
}
