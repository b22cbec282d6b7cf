package action

import (
	"context"
	"fmt"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/parser"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
	"go.uber.org/zap"
)

const MAX_TITLE_LENGTH = 100

var _ Action = new(textGenerationAction)
var _ Action = new(imageGenerationAction)

type textGenerationAction struct {
	nodeType  model.NodeType
	text      provider.TextProvider
	documents provider.DocumentStore
}

func NewTextGenerationAction(text provider.TextProvider, documents provider.DocumentStore) *textGenerationAction {
	return &textGenerationAction{
		nodeType:  model.NODE_TYPE_TEXT_GENERATION,
		text:      text,
		documents: documents,
	}
}

// As serves the same behavior under another node type.
func (a *textGenerationAction) As(t model.NodeType) *textGenerationAction {
	cp := *a
	cp.nodeType = t
	return &cp
}

func (a *textGenerationAction) Type() model.NodeType {
	return a.nodeType
}

func (a *textGenerationAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.TextGenerationConfig](req)
	if err != nil {
		return nil, err
	}
	resp, err := a.text.Complete(ctx, provider.TextRequest{
		Prompt:       cfg.Prompt,
		SystemPrompt: cfg.SystemPrompt,
		Model:        cfg.Model,
		Temperature:  cfg.TemperatureOrDefault(),
	})
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}
	format := parser.Format(cfg.OutputFormat)
	if format == "" {
		format = parser.FORMAT_TEXT
	}
	out := parser.Parse(resp.Content, format)
	title := cfg.Title
	if title == "" {
		title = parser.ExtractTitle(out, MAX_TITLE_LENGTH)
	}
	documentIds := []string{}
	if cfg.ShouldPersist() {
		doc := &provider.Document{
			ExecutionId: req.executionId(),
			NodeId:      req.Node.Id,
			Title:       title,
			Content:     resp.Content,
			Status:      provider.DOCUMENT_STATUS_DRAFT,
		}
		if req.Execution != nil {
			doc.ProjectId = req.Execution.ProjectId
		}
		if err := a.documents.CreateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("saving document: %w", err)
		}
		documentIds = append(documentIds, doc.Id)
	}
	out[parser.CONTENT_FIELD] = resp.Content
	out["content_length"] = len(resp.Content)
	out["title"] = title
	out["document_ids"] = documentIds
	out["model"] = cfg.Model
	logger.Debug("text generated", zap.String("nodeId", req.Node.Id), zap.Int("outputTokens", resp.Usage.OutputTokens))
	return &Result{Output: out, Usage: resp.Usage}, nil
}

type imageGenerationAction struct {
	images    provider.ImageProvider
	documents provider.DocumentStore
}

func NewImageGenerationAction(images provider.ImageProvider, documents provider.DocumentStore) *imageGenerationAction {
	return &imageGenerationAction{images: images, documents: documents}
}

func (a *imageGenerationAction) Type() model.NodeType {
	return model.NODE_TYPE_IMAGE_GENERATION
}

func (a *imageGenerationAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.ImageGenerationConfig](req)
	if err != nil {
		return nil, err
	}
	resp, err := a.images.Generate(ctx, provider.ImageRequest{
		Prompt:      cfg.Prompt,
		AspectRatio: cfg.AspectRatio,
		Quality:     cfg.Quality,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	title := cfg.Title
	if title == "" {
		title = shorten(cfg.Prompt, 60)
	}
	asset := &provider.Asset{
		ExecutionId:  req.executionId(),
		NodeId:       req.Node.Id,
		Title:        title,
		Prompt:       cfg.Prompt,
		FileUrl:      resp.FileUrl,
		ThumbnailUrl: resp.ThumbnailUrl,
		Metadata:     resp.Metadata,
	}
	if req.Execution != nil {
		asset.ProjectId = req.Execution.ProjectId
	}
	if err := a.documents.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("saving image asset: %w", err)
	}
	return &Result{Output: map[string]any{
		"image_ids":     []string{asset.Id},
		"file_url":      resp.FileUrl,
		"thumbnail_url": resp.ThumbnailUrl,
		"title":         title,
		"prompt":        cfg.Prompt,
	}}, nil
}
