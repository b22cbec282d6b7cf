package provider

import (
	"context"
	"time"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

type TextRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string
	Temperature  float64
}

type TextResponse struct {
	Content string
	Usage   model.Usage
}

type TextProvider interface {
	Complete(ctx context.Context, req TextRequest) (*TextResponse, error)
}

type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Quality     string
}

type ImageResponse struct {
	FileUrl      string
	ThumbnailUrl string
	Metadata     map[string]any
}

type ImageProvider interface {
	Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

type ContextRequest struct {
	ProjectId  string
	Query      string
	FolderIds  []string
	MaxResults int
}

type ContextResponse struct {
	Documents []*Document
	Text      string
}

type ContextProvider interface {
	Retrieve(ctx context.Context, req ContextRequest) (*ContextResponse, error)
}

const DOCUMENT_STATUS_DRAFT = "draft"
const DOCUMENT_STATUS_FINAL = "final"

type Document struct {
	Id          string    `json:"id"`
	ProjectId   string    `json:"project_id,omitempty"`
	FolderId    string    `json:"folder_id,omitempty"`
	ExecutionId string    `json:"execution_id,omitempty"`
	NodeId      string    `json:"node_id,omitempty"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Status      string    `json:"status"`
	ImageId     string    `json:"image_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Asset struct {
	Id           string         `json:"id"`
	ProjectId    string         `json:"project_id,omitempty"`
	ExecutionId  string         `json:"execution_id,omitempty"`
	NodeId       string         `json:"node_id,omitempty"`
	Title        string         `json:"title"`
	Prompt       string         `json:"prompt"`
	FileUrl      string         `json:"file_url"`
	ThumbnailUrl string         `json:"thumbnail_url"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, id string) (*Asset, error)
}

type Notification struct {
	ExecutionId string
	UserId      string
	Title       string
	DocumentIds []string
}

type Notifier interface {
	NotifyCompletion(ctx context.Context, n Notification) error
}

// Set bundles the collaborators a node executor calls out to.
type Set struct {
	Text      TextProvider
	Image     ImageProvider
	Context   ContextProvider
	Documents DocumentStore
	Notifier  Notifier
}

// NewInProcessSet wires the in-process implementations, with the memory
// document store doubling as the context provider.
func NewInProcessSet() Set {
	docs := NewMemoryDocumentStore()
	return Set{
		Text:      NewEchoTextProvider(),
		Image:     NewPlaceholderImageProvider(""),
		Context:   docs,
		Documents: docs,
		Notifier:  NewLogNotifier(),
	}
}
