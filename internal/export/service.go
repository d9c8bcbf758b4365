package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mapchat/api/internal/geo"
	"mapchat/api/internal/tier"
)

// CommentSource lists every stored comment, newest first.
type CommentSource interface {
	ListAllComments(ctx context.Context) ([]CommentRecord, error)
}

// Options configures a Service.
type Options struct {
	Renderer Renderer
	// Printer is required for PDF exports.
	Printer    Printer
	PageMargin float64
	// OnDenied observes refused exports.
	OnDenied func(kind Kind, t tier.Tier)
	// OnRendered observes successful renders.
	OnRendered func(format Format, elapsed time.Duration)
	Now        func() time.Time
}

// Service provides gated exports of the feature collection
type Service struct {
	gate     Gate
	renderer Renderer
	printer  Printer
	locks    *RegionLocks
	margin   float64
	rendered func(Format, time.Duration)
	now      func() time.Time
}

// NewService creates a new export service
func NewService(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageMargin <= 0 {
		opts.PageMargin = DefaultPageMargin
	}
	return &Service{
		gate:     Gate{OnDenied: opts.OnDenied},
		renderer: opts.Renderer,
		printer:  opts.Printer,
		locks:    NewRegionLocks(),
		margin:   opts.PageMargin,
		rendered: opts.OnRendered,
		now:      opts.Now,
	}
}

// Export generates an export in the requested format. Nothing is produced
// unless the gate admits the caller's tier.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	return s.gate.Run(req.Tier, KindOf(req.Format), func() (*Result, error) {
		switch req.Format {
		case FormatCSV:
			return FeaturesCSV(req.Features)
		case FormatKML:
			return FeaturesKML(req.Features)
		case FormatGeoJSON:
			return FeaturesGeoJSON(req.Features)
		case FormatJSON:
			data := req.Data
			if data == nil {
				data = geo.ToFeatureCollection(req.Features)
			}
			return JSON(data, req.FileBase)
		case FormatPNG:
			return s.exportPNG(ctx, req)
		case FormatPDF:
			return s.exportPDF(ctx, req)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
		}
	})
}

// ExportComments writes every stored comment as CSV.
func (s *Service) ExportComments(ctx context.Context, t tier.Tier, source CommentSource) (*Result, error) {
	return s.gate.Run(t, KindComments, func() (*Result, error) {
		comments, err := source.ListAllComments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		return CommentsCSV(comments, s.now())
	})
}

func (s *Service) exportPNG(ctx context.Context, req Request) (*Result, error) {
	data, err := s.render(ctx, FormatPNG, req.Region)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(req.FileBase) + ".png",
		MimeType: mimePNG,
	}, nil
}

func (s *Service) exportPDF(ctx context.Context, req Request) (*Result, error) {
	if s.printer == nil {
		return nil, fmt.Errorf("%w: no pdf printer configured", ErrRenderDependencyMissing)
	}
	data, err := s.render(ctx, FormatPDF, req.Region)
	if err != nil {
		return nil, err
	}
	return ComposePDF(ctx, s.printer, data, s.margin)
}

// render rasterizes one region, refusing a concurrent render of the same region.
func (s *Service) render(ctx context.Context, format Format, region Region) ([]byte, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("%w: no renderer configured", ErrRenderDependencyMissing)
	}
	release, err := s.locks.Acquire(region.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	start := s.now()
	data, err := s.renderer.Render(ctx, region)
	if err != nil {
		log.Error().Err(err).Str("region", region.ID).Str("format", string(format)).Msg("Render failed")
		if errors.Is(err, ErrRenderFailure) || errors.Is(err, ErrRenderDependencyMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRenderFailure, err)
	}
	if s.rendered != nil {
		s.rendered(format, s.now().Sub(start))
	}
	return data, nil
}
