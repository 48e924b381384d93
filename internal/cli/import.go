package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kirillkom/culture-relevance/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/vector/qdrant"
)

const maxLineBytes = 16 << 20

func cmdImportCatalog() *cli.Command {
	var (
		sensesPath   string
		entitiesPath string
		batchSize    int
	)

	return &cli.Command{
		Name:  "import-catalog",
		Usage: "Load sense records into postgres and entity image vectors into qdrant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "senses",
				Usage:       "JSON lines of {sense_id, entity_ids, pages, embedding}",
				Destination: &sensesPath,
			},
			&cli.StringFlag{
				Name:        "entities",
				Usage:       "JSON lines of {entity_id, source_url, vector}",
				Destination: &entitiesPath,
			},
			&cli.IntFlag{
				Name:        "batch-size",
				Usage:       "Entity vectors per index upsert",
				Value:       256,
				Destination: &batchSize,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if sensesPath == "" && entitiesPath == "" {
				return errors.New("at least one of --senses or --entities is required")
			}

			app, err := openApp(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			if sensesPath != "" {
				n, err := importSenses(ctx, sensesPath, app.Senses)
				if err != nil {
					return err
				}
				slog.Info("senses_imported", "count", n)
			}
			if entitiesPath != "" {
				n, err := importEntities(ctx, entitiesPath, app.Index, batchSize)
				if err != nil {
					return err
				}
				slog.Info("entities_indexed", "count", n)
			}
			return nil
		},
	}
}

type senseWriter interface {
	UpsertSense(ctx context.Context, rec postgres.SenseRecord) error
}

type entityIndexer interface {
	IndexEntities(ctx context.Context, images []qdrant.EntityImage) error
}

func importSenses(ctx context.Context, path string, repo senseWriter) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open senses: %w", err)
	}
	defer f.Close()

	count := 0
	err = eachJSONLine(f, func(line int, raw []byte) error {
		var rec postgres.SenseRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("senses line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.SenseID) == "" {
			return fmt.Errorf("senses line %d: sense_id is required", line)
		}
		if err := repo.UpsertSense(ctx, rec); err != nil {
			return fmt.Errorf("senses line %d: %w", line, err)
		}
		count++
		return nil
	})
	return count, err
}

func importEntities(ctx context.Context, path string, index entityIndexer, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 256
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open entities: %w", err)
	}
	defer f.Close()

	count := 0
	batch := make([]qdrant.EntityImage, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := index.IndexEntities(ctx, batch); err != nil {
			return fmt.Errorf("index entities: %w", err)
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	}

	err = eachJSONLine(f, func(line int, raw []byte) error {
		var img qdrant.EntityImage
		if err := json.Unmarshal(raw, &img); err != nil {
			return fmt.Errorf("entities line %d: %w", line, err)
		}
		if strings.TrimSpace(img.EntityID) == "" || len(img.Vector) == 0 {
			return fmt.Errorf("entities line %d: entity_id and vector are required", line)
		}
		batch = append(batch, img)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, flush()
}

// eachJSONLine calls fn for every non-blank line; line numbers start at 1.
func eachJSONLine(r io.Reader, fn func(line int, raw []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		if err := fn(line, raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", line+1, err)
	}
	return nil
}
