package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"mapchat/api/internal/export"
	"mapchat/api/internal/geo"
	"mapchat/api/internal/ingest"
	"mapchat/api/internal/logger"
	"mapchat/api/internal/tier"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input     string `short:"i" long:"in"         description:"Input CSV or GeoJSON file. Reads from stdin if empty"`
	InputType string `short:"t" long:"input-type" description:"Input type when reading stdin" choice:"csv" choice:"geojson" default:"geojson"`
	Output    string `short:"o" long:"out"        description:"Output file path. Writes to stdout if empty"`
	Format    string `short:"f" long:"format"     description:"Output format" choice:"csv" choice:"kml" choice:"geojson" choice:"yaml" choice:"png" default:"geojson"`
	Tier      string `long:"tier"                 description:"Subscription tier the export gate checks" choice:"free" choice:"pro" default:"pro"`
	Title     string `long:"title"                description:"Title drawn on PNG output"`
	Width     int    `long:"width"                description:"PNG width in CSS pixels, rendered at 2x" default:"960"`
	Height    int    `long:"height"               description:"PNG height in CSS pixels, rendered at 2x" default:"600"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	if err := run(context.Background(), opts); err != nil {
		var denied *export.DeniedError
		if errors.As(err, &denied) {
			log.Error().Str("tier", string(denied.Tier)).Msg(denied.Title + ": " + denied.Message)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("Export failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts Options) error {
	content, fileName, err := readInput(opts)
	if err != nil {
		return err
	}

	parsed, err := ingest.Ingest(content, fileName)
	if err != nil {
		return fmt.Errorf("read %s: %w", fileName, err)
	}
	title, description := parsed.Summary()
	log.Info().Int("dropped", parsed.Dropped).Msg(title + ": " + description)

	res, err := convert(ctx, parsed.Features, opts)
	if err != nil {
		return err
	}

	if opts.Output == "" {
		_, err := os.Stdout.Write(res.Data)
		return err
	}
	if err := os.WriteFile(opts.Output, res.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.Output, err)
	}
	log.Info().
		Int("features", len(parsed.Features)).
		Str("out", opts.Output).
		Str("format", opts.Format).
		Msg("Export written")
	return nil
}

func readInput(opts Options) ([]byte, string, error) {
	if opts.Input != "" {
		data, err := os.ReadFile(opts.Input)
		if err != nil {
			return nil, "", fmt.Errorf("read input: %w", err)
		}
		return data, filepath.Base(opts.Input), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, "", fmt.Errorf("read stdin: %w", err)
	}
	return data, "stdin." + opts.InputType, nil
}

// convert runs the requested export through the same gate the API uses.
func convert(ctx context.Context, features []geo.Feature, opts Options) (*export.Result, error) {
	t := tier.Normalize(opts.Tier)
	if opts.Format == "yaml" {
		return export.Gate{}.Run(t, export.KindConfig, func() (*export.Result, error) {
			return featuresYAML(features)
		})
	}

	format, err := export.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	service := export.NewService(export.Options{Renderer: export.NewMapRenderer()})
	fileBase := strings.TrimSuffix(filepath.Base(opts.Output), filepath.Ext(opts.Output))
	if fileBase == "" || fileBase == "." {
		fileBase = "map-visualization"
	}
	return service.Export(ctx, export.Request{
		Format:   format,
		Tier:     t,
		Features: features,
		FileBase: fileBase,
		Region: export.Region{
			ID:       "cli",
			Title:    opts.Title,
			Width:    opts.Width,
			Height:   opts.Height,
			Features: features,
		},
	})
}

// featuresYAML writes the GeoJSON document as YAML.
func featuresYAML(features []geo.Feature) (*export.Result, error) {
	data, err := json.Marshal(geo.ToFeatureCollection(features))
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return &export.Result{Data: out, Filename: "features.yaml", MimeType: "application/yaml"}, nil
}
