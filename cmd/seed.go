package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/bargainlabs/dealhound/pkg/chroma"
	"github.com/bargainlabs/dealhound/pkg/openai"
)

var (
	seedFile  string
	seedBatch int
)

// catalogItem is one entry in the seed catalog file.
type catalogItem struct {
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
}

// catalogFile is the YAML document read by the seed command.
type catalogFile struct {
	Items []catalogItem `yaml:"items"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the vector index from a product catalog",
	Long:  "Embeds catalog descriptions and upserts them into the Chroma collection so the frontier estimator has neighbors to retrieve.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		items, err := loadCatalog(seedFile)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return eris.Errorf("seed: catalog %s has no items", seedFile)
		}

		openaiClient := openai.NewClient(cfg.OpenAI.Key, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		chromaClient := chroma.NewClient(cfg.Chroma.BaseURL)

		collection, err := chromaClient.GetOrCreateCollection(ctx, cfg.Chroma.Collection)
		if err != nil {
			return eris.Wrap(err, "resolve chroma collection")
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(2)

		for start := 0; start < len(items); start += seedBatch {
			end := start + seedBatch
			if end > len(items) {
				end = len(items)
			}
			chunk := items[start:end]
			g.Go(func() error {
				return seedChunk(gctx, openaiClient, chromaClient, collection.ID, chunk)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		count, err := chromaClient.Count(ctx, collection.ID)
		if err != nil {
			return eris.Wrap(err, "seed: count collection")
		}

		zap.L().Info("catalog seeded",
			zap.Int("items", len(items)),
			zap.Int("collection_size", count),
			zap.String("collection", cfg.Chroma.Collection),
		)
		fmt.Printf("Seeded %d item(s); collection %q now holds %d.\n", len(items), cfg.Chroma.Collection, count)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "path to YAML catalog (required)")
	seedCmd.Flags().IntVar(&seedBatch, "batch", 100, "items per embedding batch")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}

// loadCatalog reads and validates the YAML catalog.
func loadCatalog(path string) ([]catalogItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: read catalog")
	}

	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "seed: parse catalog")
	}

	for i, item := range doc.Items {
		if item.Description == "" {
			return nil, eris.Errorf("seed: item %d has no description", i)
		}
	}
	return doc.Items, nil
}

// seedChunk embeds one batch of descriptions and upserts them into the
// collection. IDs derive from the description so reseeding upserts in place.
func seedChunk(ctx context.Context, oc openai.Client, cc chroma.Client, collectionID string, chunk []catalogItem) error {
	inputs := make([]string, len(chunk))
	for i, item := range chunk {
		inputs[i] = item.Description
	}

	resp, err := oc.Embed(ctx, openai.EmbeddingRequest{
		Model: cfg.OpenAI.EmbeddingModel,
		Input: inputs,
	})
	if err != nil {
		return eris.Wrap(err, "seed: embed batch")
	}
	if len(resp.Vectors) != len(chunk) {
		return eris.Errorf("seed: embed batch returned %d vectors for %d inputs", len(resp.Vectors), len(chunk))
	}

	docs := make([]chroma.Item, len(chunk))
	for i, item := range chunk {
		docs[i] = chroma.Item{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(item.Description)).String(),
			Embedding: resp.Vectors[i],
			Document:  item.Description,
			Metadata:  map[string]any{"price": item.Price},
		}
	}

	if err := cc.Upsert(ctx, collectionID, docs); err != nil {
		return eris.Wrap(err, "seed: upsert batch")
	}
	return nil
}
