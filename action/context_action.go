package action

import (
	"context"
	"fmt"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
)

var _ Action = new(contextRetrievalAction)

type contextRetrievalAction struct {
	search provider.ContextProvider
}

func NewContextRetrievalAction(search provider.ContextProvider) *contextRetrievalAction {
	return &contextRetrievalAction{search: search}
}

func (a *contextRetrievalAction) Type() model.NodeType {
	return model.NODE_TYPE_CONTEXT_RETRIEVAL
}

func (a *contextRetrievalAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.ContextRetrievalConfig](req)
	if err != nil {
		return nil, err
	}
	projectId := cfg.ProjectId
	if projectId == "" && req.Execution != nil {
		projectId = req.Execution.ProjectId
	}
	resp, err := a.search.Retrieve(ctx, provider.ContextRequest{
		ProjectId:  projectId,
		Query:      cfg.Query,
		FolderIds:  cfg.FolderIds,
		MaxResults: cfg.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("context retrieval failed: %w", err)
	}
	documents := make([]map[string]any, 0, len(resp.Documents))
	documentIds := make([]string, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		documents = append(documents, map[string]any{
			"id":      d.Id,
			"title":   d.Title,
			"content": d.Content,
		})
		documentIds = append(documentIds, d.Id)
	}
	return &Result{Output: map[string]any{
		"documents":   documents,
		"matched_ids": documentIds,
		"count":       len(documents),
		"content":     resp.Text,
		"query":       cfg.Query,
	}}, nil
}
