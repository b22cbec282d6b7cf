package action

import (
	"context"
	"fmt"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
)

var _ Action = new(attachAction)

// attachAction links a document to an image. Each side comes either from a
// connected node's output or from an existing id.
type attachAction struct {
	documents provider.DocumentStore
}

func NewAttachAction(documents provider.DocumentStore) *attachAction {
	return &attachAction{documents: documents}
}

func (a *attachAction) Type() model.NodeType {
	return model.NODE_TYPE_ATTACH
}

func (a *attachAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.AttachConfig](req)
	if err != nil {
		return nil, err
	}
	documentId, err := pick(req.Context, cfg.DocumentSource, cfg.DocumentNode, cfg.DocumentId, "document_ids", "document_id")
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	imageId, err := pick(req.Context, cfg.ImageSource, cfg.ImageNode, cfg.ImageId, "image_ids", "image_id")
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	if _, err := a.documents.GetAsset(ctx, imageId); err != nil {
		return nil, err
	}
	doc, err := a.documents.GetDocument(ctx, documentId)
	if err != nil {
		return nil, err
	}
	attached := false
	if doc.ImageId == "" {
		doc.ImageId = imageId
		if err := a.documents.UpdateDocument(ctx, doc); err != nil {
			return nil, err
		}
		attached = true
	}
	return &Result{Output: map[string]any{
		"document_id":      documentId,
		"image_id":         imageId,
		"attached":         attached,
		"primary_image_id": doc.ImageId,
	}}, nil
}

func pick(execCtx model.ExecutionContext, source, nodeId, id string, keys ...string) (string, error) {
	switch source {
	case model.SOURCE_ASSET:
		if id == "" {
			return "", fmt.Errorf("no id configured")
		}
		return id, nil
	case model.SOURCE_NODE:
		fields, ok := execCtx[nodeId]
		if !ok {
			return "", fmt.Errorf("node %s has no output", nodeId)
		}
		found := firstId(fields, keys...)
		if found == "" {
			return "", fmt.Errorf("node %s output has none of %v", nodeId, keys)
		}
		return found, nil
	}
	return "", fmt.Errorf("unsupported source %q", source)
}
