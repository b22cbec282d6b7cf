package provider

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	c "github.com/patrickmn/go-cache"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/util"
)

const KIND_DOCUMENT = "document"
const KIND_ASSET = "asset"

const documentKeyPrefix = "doc:"
const assetKeyPrefix = "asset:"

const DEFAULT_MAX_RESULTS = 5

var _ DocumentStore = new(MemoryDocumentStore)
var _ ContextProvider = new(MemoryDocumentStore)

// MemoryDocumentStore keeps documents and assets in process and answers
// context queries by term overlap.
type MemoryDocumentStore struct {
	cache     *c.Cache
	docCodec  util.EncoderDecoder[Document]
	assetCode util.EncoderDecoder[Asset]
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		cache:     c.New(c.NoExpiration, 0),
		docCodec:  util.NewJsonEncoderDecoder[Document](),
		assetCode: util.NewJsonEncoderDecoder[Asset](),
	}
}

func (s *MemoryDocumentStore) CreateDocument(_ context.Context, doc *Document) error {
	if doc.Id == "" {
		doc.Id = uuid.New().String()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = DOCUMENT_STATUS_DRAFT
	}
	return s.putDocument(doc)
}

func (s *MemoryDocumentStore) GetDocument(_ context.Context, id string) (*Document, error) {
	v, found := s.cache.Get(documentKeyPrefix + id)
	if !found {
		return nil, persistence.NotFoundError{Kind: KIND_DOCUMENT, Id: id}
	}
	return s.docCodec.Decode(v.([]byte))
}

func (s *MemoryDocumentStore) UpdateDocument(_ context.Context, doc *Document) error {
	if _, found := s.cache.Get(documentKeyPrefix + doc.Id); !found {
		return persistence.NotFoundError{Kind: KIND_DOCUMENT, Id: doc.Id}
	}
	doc.UpdatedAt = time.Now()
	return s.putDocument(doc)
}

func (s *MemoryDocumentStore) putDocument(doc *Document) error {
	data, err := s.docCodec.Encode(*doc)
	if err != nil {
		return persistence.StorageLayerError{Message: "encoding document", Err: err}
	}
	s.cache.Set(documentKeyPrefix+doc.Id, data, c.NoExpiration)
	return nil
}

func (s *MemoryDocumentStore) CreateAsset(_ context.Context, asset *Asset) error {
	if asset.Id == "" {
		asset.Id = uuid.New().String()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	data, err := s.assetCode.Encode(*asset)
	if err != nil {
		return persistence.StorageLayerError{Message: "encoding asset", Err: err}
	}
	s.cache.Set(assetKeyPrefix+asset.Id, data, c.NoExpiration)
	return nil
}

func (s *MemoryDocumentStore) GetAsset(_ context.Context, id string) (*Asset, error) {
	v, found := s.cache.Get(assetKeyPrefix + id)
	if !found {
		return nil, persistence.NotFoundError{Kind: KIND_ASSET, Id: id}
	}
	return s.assetCode.Decode(v.([]byte))
}

type scored struct {
	doc   *Document
	score int
}

// Retrieve ranks the project's documents by how many query terms they
// contain. Ties keep the oldest document first.
func (s *MemoryDocumentStore) Retrieve(_ context.Context, req ContextRequest) (*ContextResponse, error) {
	limit := req.MaxResults
	if limit <= 0 {
		limit = DEFAULT_MAX_RESULTS
	}
	terms := strings.Fields(strings.ToLower(req.Query))
	var hits []scored
	for key, item := range s.cache.Items() {
		if !strings.HasPrefix(key, documentKeyPrefix) {
			continue
		}
		doc, err := s.docCodec.Decode(item.Object.([]byte))
		if err != nil {
			continue
		}
		if req.ProjectId != "" && doc.ProjectId != req.ProjectId {
			continue
		}
		if len(req.FolderIds) > 0 && !util.Contains(req.FolderIds, doc.FolderId) {
			continue
		}
		text := strings.ToLower(doc.Title + " " + doc.Content)
		score := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: doc, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.CreatedAt.Before(hits[j].doc.CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	resp := &ContextResponse{Documents: make([]*Document, 0, len(hits))}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		resp.Documents = append(resp.Documents, h.doc)
		parts = append(parts, "## "+h.doc.Title+"\n\n"+h.doc.Content)
	}
	resp.Text = strings.Join(parts, "\n\n---\n\n")
	return resp, nil
}
