package model

// LaunchRequest creates a new execution of a template.
type LaunchRequest struct {
	TemplateId  string         `json:"template_id"`
	ProjectId   string         `json:"project_id,omitempty"`
	WorkspaceId string         `json:"workspace_id,omitempty"`
	UserId      string         `json:"user_id,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Async       *bool          `json:"async,omitempty"`
}

func (r LaunchRequest) IsAsync() bool {
	return r.Async == nil || *r.Async
}

// ResumeRequest carries optional reviewer data for a paused review gate.
type ResumeRequest struct {
	Approved *bool          `json:"approved,omitempty"`
	Feedback string         `json:"feedback,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (r ResumeRequest) IsEmpty() bool {
	return r.Approved == nil && r.Feedback == "" && len(r.Data) == 0
}
