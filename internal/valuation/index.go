package valuation

import (
	"context"

	"github.com/bargainlabs/dealhound/pkg/chroma"
)

// CatalogIndex adapts a Chroma collection to the Index interface, reading
// each neighbor's recorded price out of its metadata.
type CatalogIndex struct {
	client       chroma.Client
	collectionID string
}

// NewCatalogIndex creates an index over an already-resolved collection.
func NewCatalogIndex(client chroma.Client, collectionID string) *CatalogIndex {
	return &CatalogIndex{client: client, collectionID: collectionID}
}

func (x *CatalogIndex) Query(ctx context.Context, embedding []float64, limit int) ([]string, []float64, error) {
	res, err := x.client.Query(ctx, x.collectionID, embedding, limit)
	if err != nil {
		return nil, nil, err
	}

	prices := make([]float64, len(res.Documents))
	for i := range res.Documents {
		if i < len(res.Metadatas) {
			prices[i] = metadataPrice(res.Metadatas[i])
		}
	}
	return res.Documents, prices, nil
}

// metadataPrice pulls the recorded price out of item metadata. Missing or
// unparseable values read as 0.0.
func metadataPrice(meta map[string]any) float64 {
	switch v := meta["price"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		return ParsePrice(v)
	default:
		return 0.0
	}
}
