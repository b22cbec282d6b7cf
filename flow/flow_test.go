package flow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/action"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/conditional"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/loop"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence/memory"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/state"
)

const linearTemplate = `{
  "id": "linear",
  "name": "Linear copy",
  "version": 1,
  "nodes": [
    {"id": "start", "type": "start", "config": {"variables": {"topic": "default"}}},
    {"id": "gen", "type": "text_generation", "config": {"prompt": "Write about {{start.topic}}", "model": "m"}},
    {"id": "finish", "type": "finish", "config": {"title": "Final"}}
  ],
  "edges": [
    {"source": "start", "target": "gen"},
    {"source": "gen", "target": "finish"}
  ]
}`

const branchTemplate = `{
  "id": "branch",
  "name": "Branching",
  "version": 1,
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "check", "type": "conditional", "config": {"condition": {"left": "{{start.score}}", "operator": ">", "right": 50}}},
    {"id": "hi", "type": "text_generation", "config": {"prompt": "high score", "model": "m"}},
    {"id": "lo", "type": "text_generation", "config": {"prompt": "low score", "model": "m"}},
    {"id": "finish", "type": "finish"}
  ],
  "edges": [
    {"source": "start", "target": "check"},
    {"source": "check", "target": "hi", "branch": "true"},
    {"source": "check", "target": "lo", "branch": "false"},
    {"source": "hi", "target": "finish"},
    {"source": "lo", "target": "finish"}
  ]
}`

const loopTemplate = `{
  "id": "loop",
  "name": "Per item",
  "version": 1,
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "each", "type": "loop", "config": {"collection": "{{start.items}}", "body": ["gen"]}},
    {"id": "gen", "type": "text_generation", "config": {"prompt": "Item {{each.loop_current_item}}", "model": "m", "save_as_document": false}},
    {"id": "finish", "type": "finish"}
  ],
  "edges": [
    {"source": "start", "target": "each"},
    {"source": "each", "target": "finish"}
  ]
}`

const reviewTemplate = `{
  "id": "review",
  "name": "Reviewed copy",
  "version": 1,
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "gen", "type": "text_generation", "config": {"prompt": "Draft for {{start.topic}}", "model": "m"}},
    {"id": "review", "type": "review", "config": {"instructions": "check tone"}},
    {"id": "finish", "type": "finish"}
  ],
  "edges": [
    {"source": "start", "target": "gen"},
    {"source": "gen", "target": "review"},
    {"source": "review", "target": "finish"}
  ]
}`

type recordingLauncher struct {
	mu       sync.Mutex
	launched []string
}

func (l *recordingLauncher) Launch(executionId string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, executionId)
	return nil
}

func (l *recordingLauncher) Start()      {}
func (l *recordingLauncher) Stop() error { return nil }

// hookText runs a hook before answering, standing in for an out-of-band
// caller acting while a node is in flight.
type hookText struct {
	provider.TextProvider
	hook func()
}

func (h *hookText) Complete(ctx context.Context, req provider.TextRequest) (*provider.TextResponse, error) {
	if h.hook != nil {
		h.hook()
	}
	return h.TextProvider.Complete(ctx, req)
}

type harness struct {
	templates *memory.TemplateStorage
	store     *memory.ExecutionStore
	state     *state.Manager
	docs      *provider.MemoryDocumentStore
	executor  *Executor
	service   *Service
	launcher  *recordingLauncher
}

func newHarness(t *testing.T, text provider.TextProvider) *harness {
	h := &harness{
		templates: memory.NewTemplateStorage(),
		store:     memory.NewExecutionStore(),
		docs:      provider.NewMemoryDocumentStore(),
		launcher:  &recordingLauncher{},
	}
	h.state = state.NewManager(memory.NewStateStore(), h.store, time.Hour)
	if text == nil {
		text = provider.NewEchoTextProvider()
	}
	set := provider.Set{
		Text:      text,
		Image:     provider.NewPlaceholderImageProvider(""),
		Context:   h.docs,
		Documents: h.docs,
		Notifier:  provider.NewLogNotifier(),
	}
	conditions := conditional.NewExecutor()
	nodes := action.NewExecutor(h.store, set, conditions, loop.NewExecutor(0, conditions))
	h.executor = NewExecutor(h.templates, h.store, h.state, nodes)
	h.service = NewService(h.templates, h.store, h.state, h.executor, h.launcher)
	for _, raw := range []string{linearTemplate, branchTemplate, loopTemplate, reviewTemplate} {
		var tpl model.WorkflowTemplate
		require.NoError(t, json.Unmarshal([]byte(raw), &tpl))
		require.NoError(t, h.templates.SaveTemplate(tpl))
	}
	return h
}

func (h *harness) launch(t *testing.T, templateId string, input map[string]any) *model.WorkflowExecution {
	async := false
	exec, err := h.service.Launch(context.Background(), model.LaunchRequest{
		TemplateId: templateId,
		ProjectId:  "p1",
		UserId:     "u1",
		Input:      input,
		Async:      &async,
	})
	require.NoError(t, err)
	require.Equal(t, model.PENDING, exec.Status)
	return exec
}

func (h *harness) run(t *testing.T, executionId string) ([]model.ProgressEvent, error) {
	var events []model.ProgressEvent
	err := h.executor.Run(context.Background(), executionId, func(ev model.ProgressEvent) {
		events = append(events, ev)
	})
	return events, err
}

func (h *harness) get(t *testing.T, executionId string) *model.WorkflowExecution {
	exec, err := h.store.GetExecution(context.Background(), executionId)
	require.NoError(t, err)
	return exec
}

func (h *harness) jobNodes(t *testing.T, executionId string) []string {
	jobs, err := h.store.ListJobs(context.Background(), executionId)
	require.NoError(t, err)
	nodes := make([]string, 0, len(jobs))
	for _, j := range jobs {
		nodes = append(nodes, j.NodeId)
	}
	return nodes
}

func TestRunToCompletion(t *testing.T) {
	h := newHarness(t, nil)
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})
	require.Empty(t, h.launcher.launched)

	events, err := h.run(t, exec.Id)
	require.NoError(t, err)

	done := h.get(t, exec.Id)
	require.Equal(t, model.COMPLETED, done.Status)
	require.Equal(t, 100, done.ProgressPercent)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
	require.Equal(t, "Write about summer", done.ExecutionContext["gen"]["content"])
	require.Equal(t, 3, done.Usage.InputTokens)
	require.EqualValues(t, 1, done.ExecutionContext["finish"]["finalized"])
	require.Empty(t, done.RunOwner)
	require.Nil(t, done.RunLeaseUntil)

	types := make([]model.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Equal(t, []model.EventType{
		model.EVENT_PROGRESS, model.EVENT_NODE_COMPLETE,
		model.EVENT_PROGRESS, model.EVENT_NODE_COMPLETE,
		model.EVENT_PROGRESS, model.EVENT_NODE_COMPLETE,
		model.EVENT_COMPLETE,
	}, types)
	require.Equal(t, 100, events[len(events)-1].Progress)

	rows, err := h.store.ListNodeOutputs(context.Background(), exec.Id)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"start", "gen", "finish"}, []string{rows[0].NodeId, rows[1].NodeId, rows[2].NodeId})

	st, err := h.state.LoadState(context.Background(), exec.Id)
	require.NoError(t, err)
	require.Nil(t, st)

	_, err = h.run(t, exec.Id)
	require.Error(t, err)
}

func TestNodeFailureFailsRun(t *testing.T) {
	h := newHarness(t, nil)
	var tpl model.WorkflowTemplate
	require.NoError(t, json.Unmarshal([]byte(linearTemplate), &tpl))
	tpl.Id = "broken"
	tpl.Nodes[1].Config.(*model.TextGenerationConfig).Prompt = "   "
	require.NoError(t, h.templates.SaveTemplate(tpl))

	exec := h.launch(t, "broken", nil)
	events, err := h.run(t, exec.Id)
	require.Error(t, err)

	failed := h.get(t, exec.Id)
	require.Equal(t, model.FAILED, failed.Status)
	require.Contains(t, failed.ErrorMessage, "empty prompt")
	require.NotNil(t, failed.CompletedAt)
	require.Contains(t, failed.ExecutionContext, "start")
	require.NotContains(t, failed.ExecutionContext, "finish")
	require.Equal(t, model.EVENT_ERROR, events[len(events)-1].Type)
	require.Equal(t, []string{"start", "gen"}, h.jobNodes(t, exec.Id))
}

func TestLaunchRejectsInvalidTemplate(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.templates.SaveTemplate(model.WorkflowTemplate{
		Id:    "invalid",
		Nodes: []model.Node{{Id: "gen", Type: model.NODE_TYPE_TEXT_GENERATION, Config: &model.TextGenerationConfig{}}},
	}))
	_, err := h.service.Launch(context.Background(), model.LaunchRequest{TemplateId: "invalid"})
	require.ErrorAs(t, err, &metadata.ValidationError{})

	_, err = h.service.Launch(context.Background(), model.LaunchRequest{TemplateId: "missing"})
	require.Error(t, err)
}

func TestResumeSkipsRecordedNodes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})

	_, err := h.store.UpdateExecution(ctx, exec.Id, func(e *model.WorkflowExecution) error {
		e.ExecutionContext["start"] = map[string]any{"topic": "summer"}
		e.ExecutionContext["gen"] = map[string]any{"content": "already written", "document_ids": []any{}}
		return e.Transition(model.RUNNING, time.Now())
	})
	require.NoError(t, err)
	// fast tier lost
	require.NoError(t, h.state.DeleteState(ctx, exec.Id))

	_, err = h.run(t, exec.Id)
	require.NoError(t, err)

	done := h.get(t, exec.Id)
	require.Equal(t, model.COMPLETED, done.Status)
	require.Equal(t, "already written", done.ExecutionContext["gen"]["content"])
	require.Equal(t, []string{"finish"}, h.jobNodes(t, exec.Id))
}

func TestPauseAndResume(t *testing.T) {
	var h *harness
	var executionId string
	text := &hookText{TextProvider: provider.NewEchoTextProvider()}
	text.hook = func() {
		_, err := h.service.Pause(context.Background(), executionId)
		require.NoError(t, err)
	}
	h = newHarness(t, text)
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})
	executionId = exec.Id

	_, err := h.run(t, exec.Id)
	require.ErrorIs(t, err, ErrHalted)

	paused := h.get(t, exec.Id)
	require.Equal(t, model.PAUSED, paused.Status)
	require.Contains(t, paused.ExecutionContext, "gen")
	require.NotContains(t, paused.ExecutionContext, "finish")

	_, err = h.service.Pause(context.Background(), exec.Id)
	require.ErrorAs(t, err, &model.InvalidTransitionError{})

	text.hook = nil
	_, err = h.service.Resume(context.Background(), exec.Id, model.ResumeRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{exec.Id}, h.launcher.launched)

	_, err = h.run(t, exec.Id)
	require.NoError(t, err)
	require.Equal(t, model.COMPLETED, h.get(t, exec.Id).Status)
	require.Equal(t, []string{"start", "gen", "finish"}, h.jobNodes(t, exec.Id))
}

func TestStop(t *testing.T) {
	var h *harness
	var executionId string
	text := &hookText{TextProvider: provider.NewEchoTextProvider()}
	text.hook = func() {
		_, err := h.service.Stop(context.Background(), executionId)
		require.NoError(t, err)
	}
	h = newHarness(t, text)
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})
	executionId = exec.Id

	_, err := h.run(t, exec.Id)
	require.ErrorIs(t, err, ErrHalted)
	stopped := h.get(t, exec.Id)
	require.Equal(t, model.STOPPED, stopped.Status)
	require.NotNil(t, stopped.CompletedAt)

	_, err = h.service.Resume(context.Background(), exec.Id, model.ResumeRequest{})
	require.ErrorAs(t, err, &model.InvalidTransitionError{})

	_, err = h.run(t, exec.Id)
	require.ErrorIs(t, err, ErrHalted)
}

func TestCompletedRejectsResume(t *testing.T) {
	h := newHarness(t, nil)
	exec := h.launch(t, "linear", nil)
	_, err := h.run(t, exec.Id)
	require.NoError(t, err)

	_, err = h.service.Resume(context.Background(), exec.Id, model.ResumeRequest{})
	var invalid model.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, model.COMPLETED, invalid.From)
	require.Equal(t, model.RUNNING, invalid.To)
}

func TestConditionalBranch(t *testing.T) {
	scenarios := map[string]struct {
		score    float64
		taken    string
		notTaken string
	}{
		"true branch":  {score: 70, taken: "hi", notTaken: "lo"},
		"false branch": {score: 20, taken: "lo", notTaken: "hi"},
	}
	for name, scenario := range scenarios {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			exec := h.launch(t, "branch", map[string]any{"score": scenario.score})
			events, err := h.run(t, exec.Id)
			require.NoError(t, err)

			done := h.get(t, exec.Id)
			require.Equal(t, model.COMPLETED, done.Status)
			require.Contains(t, done.ExecutionContext, scenario.taken)
			require.NotContains(t, done.ExecutionContext, scenario.notTaken)
			require.Contains(t, done.ExecutionContext, "finish")
			require.NotContains(t, h.jobNodes(t, exec.Id), scenario.notTaken)

			skipped := false
			for _, ev := range events {
				if ev.NodeId == scenario.notTaken && ev.Message == "Skipped "+scenario.notTaken {
					skipped = true
				}
			}
			require.True(t, skipped)
		})
	}
}

func TestLoopBody(t *testing.T) {
	h := newHarness(t, nil)
	exec := h.launch(t, "loop", map[string]any{"items": []any{"a", "b", "c"}})
	_, err := h.run(t, exec.Id)
	require.NoError(t, err)

	done := h.get(t, exec.Id)
	require.Equal(t, model.COMPLETED, done.Status)
	require.EqualValues(t, 3, done.ExecutionContext["each"]["iterations"])
	require.Equal(t, loop.STOPPED_COMPLETED, done.ExecutionContext["each"]["stopped_reason"])
	require.Equal(t, "Item c", done.ExecutionContext["gen"]["content"])

	jobs, err := h.store.ListJobs(context.Background(), exec.Id)
	require.NoError(t, err)
	var iterations []int
	for _, j := range jobs {
		if j.NodeId == "gen" {
			iterations = append(iterations, j.Iteration)
		}
	}
	require.Equal(t, []int{0, 1, 2}, iterations)

	rows, err := h.store.ListNodeOutputs(context.Background(), exec.Id)
	require.NoError(t, err)
	var ids []string
	var genRows []string
	for _, row := range rows {
		ids = append(ids, row.NodeId)
		if row.NodeId == "gen" {
			genRows = append(genRows, row.Outputs["content"].(string))
			require.Equal(t, len(genRows)-1, row.Iteration)
		}
	}
	require.Equal(t, []string{"start", "gen", "gen", "gen", "each", "finish"}, ids)
	require.Equal(t, []string{"Item a", "Item b", "Item c"}, genRows)
}

func TestLaunchRejectsReviewInLoop(t *testing.T) {
	h := newHarness(t, nil)
	var tpl model.WorkflowTemplate
	require.NoError(t, json.Unmarshal([]byte(loopTemplate), &tpl))
	tpl.Id = "loop-review"
	tpl.Nodes = append(tpl.Nodes, model.Node{Id: "approve", Type: model.NODE_TYPE_REVIEW, Config: &model.ReviewConfig{}})
	tpl.Nodes[1].Config.(*model.LoopConfig).Body = []string{"gen", "approve"}
	require.NoError(t, h.templates.SaveTemplate(tpl))

	_, err := h.service.Launch(context.Background(), model.LaunchRequest{TemplateId: "loop-review"})
	var invalid metadata.ValidationError
	require.ErrorAs(t, err, &invalid)
	require.Contains(t, invalid.Error(), "cannot run review node approve")
}

func TestPauseInsideLoopBody(t *testing.T) {
	for scenario, tc := range map[string]struct {
		halt   func(h *harness, executionId string) error
		status model.ExecutionStatus
	}{
		"pause": {
			halt: func(h *harness, executionId string) error {
				_, err := h.service.Pause(context.Background(), executionId)
				return err
			},
			status: model.PAUSED,
		},
		"stop": {
			halt: func(h *harness, executionId string) error {
				_, err := h.service.Stop(context.Background(), executionId)
				return err
			},
			status: model.STOPPED,
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			var h *harness
			var executionId string
			calls := 0
			text := &hookText{TextProvider: provider.NewEchoTextProvider()}
			text.hook = func() {
				calls++
				if calls == 2 {
					require.NoError(t, tc.halt(h, executionId))
				}
			}
			h = newHarness(t, text)
			exec := h.launch(t, "loop", map[string]any{"items": []any{"a", "b", "c"}})
			executionId = exec.Id

			_, err := h.run(t, exec.Id)
			require.ErrorIs(t, err, ErrHalted)

			halted := h.get(t, exec.Id)
			require.Equal(t, tc.status, halted.Status)
			require.Empty(t, halted.ErrorMessage)
			require.Empty(t, halted.RunOwner)
			require.NotContains(t, halted.ExecutionContext, "each")

			jobs, err := h.store.ListJobs(context.Background(), exec.Id)
			require.NoError(t, err)
			statuses := map[string][]model.JobStatus{}
			for _, j := range jobs {
				statuses[j.NodeId] = append(statuses[j.NodeId], j.Status)
			}
			require.Equal(t, []model.JobStatus{model.JOB_HALTED}, statuses["each"])
			require.Equal(t, []model.JobStatus{model.JOB_COMPLETED, model.JOB_COMPLETED}, statuses["gen"])

			if tc.status == model.STOPPED {
				return
			}
			text.hook = nil
			_, err = h.service.Resume(context.Background(), exec.Id, model.ResumeRequest{})
			require.NoError(t, err)
			_, err = h.run(t, exec.Id)
			require.NoError(t, err)
			done := h.get(t, exec.Id)
			require.Equal(t, model.COMPLETED, done.Status)
			require.EqualValues(t, 3, done.ExecutionContext["each"]["iterations"])
		})
	}
}

func TestReviewGate(t *testing.T) {
	h := newHarness(t, nil)
	exec := h.launch(t, "review", map[string]any{"topic": "summer"})

	events, err := h.run(t, exec.Id)
	require.ErrorIs(t, err, ErrHalted)
	require.Equal(t, model.EVENT_NODE_COMPLETE, events[len(events)-1].Type)
	require.Equal(t, "review", events[len(events)-1].NodeId)

	paused := h.get(t, exec.Id)
	require.Equal(t, model.PAUSED, paused.Status)
	require.Equal(t, "review", paused.CurrentNodeId)
	require.Equal(t, action.REVIEW_AWAITING, paused.ExecutionContext["review"]["status"])

	approved := true
	_, err = h.service.Resume(context.Background(), exec.Id, model.ResumeRequest{Approved: &approved, Feedback: "looks good"})
	require.NoError(t, err)

	_, err = h.run(t, exec.Id)
	require.NoError(t, err)

	done := h.get(t, exec.Id)
	require.Equal(t, model.COMPLETED, done.Status)
	require.Equal(t, true, done.ExecutionContext["review"]["approved"])
	require.Equal(t, "looks good", done.ExecutionContext["review"]["feedback"])
	require.Equal(t, []string{"start", "gen", "review", "finish"}, h.jobNodes(t, exec.Id))

	rows, err := h.store.ListNodeOutputs(context.Background(), exec.Id)
	require.NoError(t, err)
	require.Len(t, rows, 5)
}

func TestStream(t *testing.T) {
	h := newHarness(t, nil)
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})
	var last model.ProgressEvent
	count := 0
	events, err := h.executor.Stream(context.Background(), exec.Id)
	require.NoError(t, err)
	for ev := range events {
		last = ev
		count++
	}
	require.Equal(t, 7, count)
	require.Equal(t, model.EVENT_COMPLETE, last.Type)
	require.Equal(t, model.COMPLETED, h.get(t, exec.Id).Status)
}

func TestGetOverlaysFastTierProgress(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	exec := h.launch(t, "linear", nil)
	_, err := h.store.UpdateExecution(ctx, exec.Id, func(e *model.WorkflowExecution) error {
		return e.Transition(model.RUNNING, time.Now())
	})
	require.NoError(t, err)
	require.NoError(t, h.state.SaveState(ctx, exec.Id, &model.ExecutionState{
		Status: model.RUNNING, ProgressPercent: 66, CurrentNodeId: "gen", ExecutionContext: model.ExecutionContext{},
	}, 0))

	got, err := h.service.Get(ctx, exec.Id)
	require.NoError(t, err)
	require.Equal(t, 66, got.ProgressPercent)
	require.Equal(t, "gen", got.CurrentNodeId)
}

func TestInvalidTemplateFailsRun(t *testing.T) {
	h := newHarness(t, nil)
	exec := h.launch(t, "linear", nil)
	require.NoError(t, h.templates.SaveTemplate(model.WorkflowTemplate{
		Id:    "linear",
		Nodes: []model.Node{{Id: "finish", Type: model.NODE_TYPE_FINISH, Config: &model.FinishConfig{}}},
	}))

	events, err := h.run(t, exec.Id)
	require.ErrorAs(t, err, &metadata.ValidationError{})
	failed := h.get(t, exec.Id)
	require.Equal(t, model.FAILED, failed.Status)
	require.Contains(t, failed.ErrorMessage, "start node")
	require.Empty(t, h.jobNodes(t, exec.Id))
	require.Equal(t, model.EVENT_ERROR, events[len(events)-1].Type)
}

func TestResumeMergesFastTierOutputs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})
	_, err := h.store.UpdateExecution(ctx, exec.Id, func(e *model.WorkflowExecution) error {
		return e.Transition(model.RUNNING, time.Now())
	})
	require.NoError(t, err)
	// the gen output landed but the state blob was not rewritten after it
	require.NoError(t, h.state.SaveState(ctx, exec.Id, &model.ExecutionState{
		Status:           model.RUNNING,
		ExecutionContext: model.ExecutionContext{"start": {"topic": "summer"}},
	}, 0))
	require.NoError(t, h.state.SaveNodeOutput(ctx, exec.Id, "gen", "gen",
		map[string]any{"content": "from the hash", "document_ids": []any{}}))

	_, err = h.run(t, exec.Id)
	require.NoError(t, err)

	done := h.get(t, exec.Id)
	require.Equal(t, model.COMPLETED, done.Status)
	require.Equal(t, "from the hash", done.ExecutionContext["gen"]["content"])
	require.Equal(t, []string{"finish"}, h.jobNodes(t, exec.Id))
}

func TestCancelledRunFinishesNodeAndPauses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	text := &hookText{TextProvider: provider.NewEchoTextProvider(), hook: cancel}
	h := newHarness(t, text)
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})

	err := h.executor.Run(ctx, exec.Id, nil)
	require.ErrorIs(t, err, ErrHalted)

	paused := h.get(t, exec.Id)
	require.Equal(t, model.PAUSED, paused.Status)
	require.Empty(t, paused.ErrorMessage)
	require.Empty(t, paused.RunOwner)
	require.Equal(t, "Write about summer", paused.ExecutionContext["gen"]["content"])
	jobs, err := h.store.ListJobs(context.Background(), exec.Id)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, model.JOB_COMPLETED, jobs[1].Status)

	text.hook = nil
	_, err = h.service.Resume(context.Background(), exec.Id, model.ResumeRequest{})
	require.NoError(t, err)
	_, err = h.run(t, exec.Id)
	require.NoError(t, err)
	require.Equal(t, model.COMPLETED, h.get(t, exec.Id).Status)
	require.Equal(t, []string{"start", "gen", "finish"}, h.jobNodes(t, exec.Id))
}

func TestSecondRunnerIsTurnedAway(t *testing.T) {
	var h *harness
	var executionId string
	text := &hookText{TextProvider: provider.NewEchoTextProvider()}
	text.hook = func() {
		_, err := h.run(t, executionId)
		require.ErrorIs(t, err, ErrRunClaimed)
		_, err = h.executor.Stream(context.Background(), executionId)
		require.ErrorIs(t, err, ErrRunClaimed)
	}
	h = newHarness(t, text)
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})
	executionId = exec.Id

	_, err := h.run(t, exec.Id)
	require.NoError(t, err)
	done := h.get(t, exec.Id)
	require.Equal(t, model.COMPLETED, done.Status)
	require.Empty(t, done.ErrorMessage)
	require.Equal(t, []string{"start", "gen", "finish"}, h.jobNodes(t, exec.Id))
}

func TestResumeWhileNodeInFlight(t *testing.T) {
	var h *harness
	var executionId string
	text := &hookText{TextProvider: provider.NewEchoTextProvider()}
	text.hook = func() {
		ctx := context.Background()
		_, err := h.service.Pause(ctx, executionId)
		require.NoError(t, err)
		_, err = h.service.Resume(ctx, executionId, model.ResumeRequest{})
		require.NoError(t, err)
		// the relaunch races the run that is still in flight
		_, err = h.run(t, executionId)
		require.ErrorIs(t, err, ErrRunClaimed)
	}
	h = newHarness(t, text)
	exec := h.launch(t, "linear", map[string]any{"topic": "summer"})
	executionId = exec.Id

	_, err := h.run(t, exec.Id)
	require.NoError(t, err)
	require.Equal(t, model.COMPLETED, h.get(t, exec.Id).Status)
	require.Equal(t, []string{"start", "gen", "finish"}, h.jobNodes(t, exec.Id))
}

func TestRunLease(t *testing.T) {
	for scenario, tc := range map[string]struct {
		until time.Duration
		err   error
	}{
		"live lease turns the run away": {until: time.Minute, err: ErrRunClaimed},
		"expired lease is reclaimed":    {until: -time.Second},
	} {
		t.Run(scenario, func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()
			exec := h.launch(t, "linear", nil)
			_, err := h.store.UpdateExecution(ctx, exec.Id, func(e *model.WorkflowExecution) error {
				until := time.Now().Add(tc.until)
				e.RunOwner = "gone-runner"
				e.RunLeaseUntil = &until
				return e.Transition(model.RUNNING, time.Now())
			})
			require.NoError(t, err)

			_, err = h.run(t, exec.Id)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.ErrorIs(t, err, ErrHalted)
				got := h.get(t, exec.Id)
				require.Equal(t, model.RUNNING, got.Status)
				require.Equal(t, "gone-runner", got.RunOwner)
				require.Empty(t, h.jobNodes(t, exec.Id))
				return
			}
			require.NoError(t, err)
			got := h.get(t, exec.Id)
			require.Equal(t, model.COMPLETED, got.Status)
			require.Empty(t, got.RunOwner)
		})
	}
}
