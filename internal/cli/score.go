package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kirillkom/culture-relevance/internal/core/usecase"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".gif":  {},
	".bmp":  {},
}

func cmdScore() *cli.Command {
	var (
		imagesDir string
		cultures  string
		listName  string
		modelName string
		multi     bool
		output    string
	)

	return &cli.Command{
		Name:  "score",
		Usage: "Score every image of a directory against culture labels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "images",
				Usage:       "Directory with images to score",
				Required:    true,
				Destination: &imagesDir,
			},
			&cli.StringFlag{
				Name:        "cultures",
				Usage:       "Comma-separated culture labels",
				Destination: &cultures,
			},
			&cli.StringFlag{
				Name:        "list",
				Usage:       "Predefined culture list name (used when --cultures is empty)",
				Destination: &listName,
			},
			&cli.StringFlag{
				Name:        "model",
				Usage:       "Judgment model name",
				Sources:     cli.EnvVars("DEFAULT_JUDGMENT_MODEL"),
				Destination: &modelName,
			},
			&cli.BoolFlag{
				Name:        "multi",
				Usage:       "Use several encyclopedia pages as context",
				Destination: &multi,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Write JSON lines here instead of stdout",
				Destination: &output,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			images, err := loadImages(imagesDir)
			if err != nil {
				return err
			}
			if len(images) == 0 {
				return fmt.Errorf("no images found in %s", imagesDir)
			}

			app, err := openApp(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			labels := splitLabels(cultures)
			if len(labels) == 0 {
				if listName == "" {
					return errors.New("either --cultures or --list is required")
				}
				if labels, err = app.Lists.Resolve(listName); err != nil {
					return err
				}
			}

			slog.Info("batch_started", "images", len(images), "cultures", len(labels), "model", modelName, "multi", multi)
			items, err := app.BatchUC.Run(ctx, images, labels, modelName, multi)
			if err != nil {
				return err
			}

			var out io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			if err := writeItems(out, items); err != nil {
				return err
			}

			failed := 0
			for _, item := range items {
				if item.Err != "" {
					failed++
				}
			}
			slog.Info("batch_finished", "images", len(items), "failed", failed)
			return nil
		},
	}
}

// loadImages reads the image files directly inside dir in name order.
func loadImages(dir string) ([]usecase.BatchImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	images := make([]usecase.BatchImage, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", name, err)
		}
		images = append(images, usecase.BatchImage{ID: name, Image: data})
	}
	return images, nil
}

func writeItems(w io.Writer, items []usecase.BatchItem) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("write result for %s: %w", item.ImageID, err)
		}
	}
	return nil
}

func splitLabels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
