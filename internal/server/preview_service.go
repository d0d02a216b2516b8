package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"edmanweb/internal/metrics"
	"edmanweb/internal/models"
	"edmanweb/internal/preview"
)

// Preview modes.
const (
	PreviewModeThumbnail = "thumbnail"
	PreviewModeImage     = "image"
)

// PreviewImage is one rendered image.
type PreviewImage struct {
	Data string
	Ext  string
}

// PreviewService renders the image attachments of a document.
type PreviewService struct {
	attachments *AttachmentService
	renderer    preview.Renderer
	concurrency int
	logger      *slog.Logger
}

// NewPreviewService constructs a PreviewService. concurrency below one
// means candidates are processed one at a time.
func NewPreviewService(attachments *AttachmentService, renderer preview.Renderer, concurrency int, logger *slog.Logger) *PreviewService {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &PreviewService{
		attachments: attachments,
		renderer:    renderer,
		concurrency: concurrency,
		logger:      logger.With("component", "previews"),
	}
}

// BuildPreviews downloads every file whose extension is allowed and renders
// it to fit in size. The first failure aborts the batch.
func (s *PreviewService) BuildPreviews(ctx context.Context, files []preview.File, allowed []string, size preview.Size) (map[string]PreviewImage, error) {
	return s.build(ctx, files, allowed, PreviewModeThumbnail, func(data []byte, ext string) (string, error) {
		return s.renderer.Render(data, ext, size)
	})
}

// BuildImages is BuildPreviews without resizing: the decoded file content
// is returned as is.
func (s *PreviewService) BuildImages(ctx context.Context, files []preview.File, allowed []string) (map[string]PreviewImage, error) {
	return s.build(ctx, files, allowed, PreviewModeImage, func(data []byte, _ string) (string, error) {
		return preview.Encode(data), nil
	})
}

// DocumentPreviews runs BuildPreviews or BuildImages over the attachments
// of one document.
func (s *PreviewService) DocumentPreviews(ctx context.Context, collection, rawID, mode string, allowed []string, size preview.Size) (map[string]PreviewImage, error) {
	blobs, err := s.attachments.ListFiles(ctx, collection, rawID)
	if err != nil {
		return nil, err
	}
	files := filesOf(blobs)
	if mode == PreviewModeImage {
		return s.BuildImages(ctx, files, allowed)
	}
	return s.BuildPreviews(ctx, files, allowed, size)
}

func (s *PreviewService) build(ctx context.Context, files []preview.File, allowed []string, kind string, render func([]byte, string) (string, error)) (map[string]PreviewImage, error) {
	candidates := preview.SelectCandidates(files, allowed)
	out := make(map[string]PreviewImage, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, candidate := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			data, err := s.renderOne(gctx, candidate, render)
			metrics.ObservePreview(kind, started, err)
			if err != nil {
				s.logger.Debug("preview failed", "blob_id", candidate.BlobID, "ext", candidate.Ext, "error", err)
				return err
			}
			mu.Lock()
			out[candidate.BlobID] = PreviewImage{Data: data, Ext: candidate.Ext}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PreviewService) renderOne(ctx context.Context, candidate preview.Candidate, render func([]byte, string) (string, error)) (string, error) {
	content, err := s.attachments.Retrieve(ctx, candidate.BlobID)
	if err != nil {
		return "", err
	}
	data, err := render(content.Data, candidate.Ext)
	if err != nil {
		return "", previewGenerationFailed(err)
	}
	return data, nil
}

func filesOf(blobs []models.Blob) []preview.File {
	files := make([]preview.File, 0, len(blobs))
	for _, blob := range blobs {
		files = append(files, preview.File{BlobID: blob.ID, Filename: blob.Filename})
	}
	return files
}
