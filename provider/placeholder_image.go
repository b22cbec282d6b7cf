package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var _ ImageProvider = new(PlaceholderImageProvider)

const DEFAULT_IMAGE_BASE_URL = "https://placeholder.local/images"

// PlaceholderImageProvider returns generated urls without rendering anything.
type PlaceholderImageProvider struct {
	baseUrl string
}

func NewPlaceholderImageProvider(baseUrl string) *PlaceholderImageProvider {
	if baseUrl == "" {
		baseUrl = DEFAULT_IMAGE_BASE_URL
	}
	return &PlaceholderImageProvider{baseUrl: strings.TrimSuffix(baseUrl, "/")}
}

func (p *PlaceholderImageProvider) Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = "1:1"
	}
	quality := req.Quality
	if quality == "" {
		quality = "standard"
	}
	id := uuid.New().String()
	return &ImageResponse{
		FileUrl:      fmt.Sprintf("%s/%s.png", p.baseUrl, id),
		ThumbnailUrl: fmt.Sprintf("%s/%s_thumb.png", p.baseUrl, id),
		Metadata: map[string]any{
			"aspect_ratio": aspect,
			"quality":      quality,
		},
	}, nil
}
