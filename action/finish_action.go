package action

import (
	"context"
	"fmt"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
	"go.uber.org/zap"
)

var _ Action = new(finishAction)

// finishAction finalizes the documents produced by the run. Without explicit
// document nodes every completed node's documents are finalized.
type finishAction struct {
	documents provider.DocumentStore
	notifier  provider.Notifier
}

func NewFinishAction(documents provider.DocumentStore, notifier provider.Notifier) *finishAction {
	return &finishAction{documents: documents, notifier: notifier}
}

func (a *finishAction) Type() model.NodeType {
	return model.NODE_TYPE_FINISH
}

func (a *finishAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.FinishConfig](req)
	if err != nil {
		return nil, err
	}
	sources := cfg.DocumentNodes
	if len(sources) == 0 {
		sources = req.Completed
	}
	var documentIds []string
	seen := map[string]bool{}
	for _, nodeId := range sources {
		for _, id := range ids(req.Context[nodeId]["document_ids"]) {
			if !seen[id] {
				seen[id] = true
				documentIds = append(documentIds, id)
			}
		}
	}
	status := cfg.Status
	if status == "" {
		status = provider.DOCUMENT_STATUS_FINAL
	}
	titles := make([]string, 0, len(documentIds))
	for i, id := range documentIds {
		doc, err := a.documents.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		doc.Status = status
		if cfg.Title != "" {
			doc.Title = cfg.Title
			if len(documentIds) > 1 {
				doc.Title = fmt.Sprintf("%s (%d)", cfg.Title, i+1)
			}
		}
		if err := a.documents.UpdateDocument(ctx, doc); err != nil {
			return nil, err
		}
		titles = append(titles, doc.Title)
	}
	notified := false
	if cfg.Notify && a.notifier != nil {
		note := provider.Notification{
			ExecutionId: req.executionId(),
			Title:       cfg.Title,
			DocumentIds: documentIds,
		}
		if req.Execution != nil {
			note.UserId = req.Execution.UserId
		}
		if err := a.notifier.NotifyCompletion(ctx, note); err != nil {
			logger.Warn("completion notification failed", zap.String("executionId", req.executionId()), zap.Error(err))
		} else {
			notified = true
		}
	}
	if documentIds == nil {
		documentIds = []string{}
	}
	return &Result{Output: map[string]any{
		"document_ids": documentIds,
		"titles":       titles,
		"finalized":    len(documentIds),
		"status":       status,
		"notified":     notified,
	}}, nil
}
