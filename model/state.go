package model

// ExecutionContext maps node id to that node's output field map.
type ExecutionContext map[string]map[string]any

func (c ExecutionContext) Has(nodeId string) bool {
	_, ok := c[nodeId]
	return ok
}

func (c ExecutionContext) Clone() ExecutionContext {
	out := make(ExecutionContext, len(c))
	for k, v := range c {
		fields := make(map[string]any, len(v))
		for fk, fv := range v {
			fields[fk] = fv
		}
		out[k] = fields
	}
	return out
}

// ExecutionState is the fast-tier snapshot of a live run.
type ExecutionState struct {
	Status           ExecutionStatus  `json:"status"`
	ProgressPercent  int              `json:"progress_percent"`
	CurrentNodeId    string           `json:"current_node_id"`
	ExecutionContext ExecutionContext `json:"execution_context"`
	Usage            Usage            `json:"usage"`
	ErrorMessage     string           `json:"error_message,omitempty"`
}

func NewExecutionState(exec *WorkflowExecution) *ExecutionState {
	ctx := exec.ExecutionContext.Clone()
	return &ExecutionState{
		Status:           exec.Status,
		ProgressPercent:  exec.ProgressPercent,
		CurrentNodeId:    exec.CurrentNodeId,
		ExecutionContext: ctx,
		Usage:            exec.Usage,
		ErrorMessage:     exec.ErrorMessage,
	}
}
