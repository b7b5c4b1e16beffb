package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestToSearchResult(t *testing.T) {
	t.Run("Should split payload into content and metadata", func(t *testing.T) {
		point := &qdrant.ScoredPoint{
			Id:    qdrant.NewIDUUID("6f1c2f4e-8a5b-4c1e-9a57-1f0e2b3c4d5e"),
			Score: 0.87,
			Payload: map[string]*qdrant.Value{
				"document_id": qdrant.NewValueString("doc-1"),
				"content":     qdrant.NewValueString("返品は到着後7日以内です。"),
				"title":       qdrant.NewValueString("返品ポリシー"),
			},
		}

		r := toSearchResult(point)
		assert.Equal(t, "6f1c2f4e-8a5b-4c1e-9a57-1f0e2b3c4d5e", r.ID)
		assert.Equal(t, "doc-1", r.DocumentID)
		assert.Equal(t, "返品は到着後7日以内です。", r.Content)
		assert.Equal(t, map[string]string{"title": "返品ポリシー"}, r.Metadata)
		assert.InDelta(t, 0.87, r.Score, 1e-6)
	})

	t.Run("Should render numeric ids", func(t *testing.T) {
		r := toSearchResult(&qdrant.ScoredPoint{Id: qdrant.NewIDNum(42)})
		assert.Equal(t, "42", r.ID)
	})
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "tenant_shop-a", collectionName("shop-a"))
}
