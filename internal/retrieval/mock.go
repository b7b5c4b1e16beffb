package retrieval

import (
	"fmt"
	"strings"
)

// mockHits returns fixed placeholder passages. Every id and text is prefixed so
// mock data can never be mistaken for indexed content.
func mockHits(query string) []Hit {
	q := strings.TrimSpace(query)
	return []Hit{
		{
			ID:     "mock-1",
			Text:   fmt.Sprintf("[mock] 「%s」に関するFAQ: 送料は全国一律550円です。5,000円以上のご注文で送料無料になります。", q),
			Score:  1.0,
			Source: SourcePrimaryText,
		},
		{
			ID:     "mock-2",
			Text:   "[mock] 返品は商品到着後7日以内に限り受け付けます。未使用品のみ対象で、返品送料はお客様のご負担です。",
			Score:  0.8,
			Source: SourcePrimaryText,
		},
		{
			ID:     "mock-3",
			Text:   "[mock] ご不明点はお問い合わせフォームからご連絡ください。通常2営業日以内に回答します。",
			Score:  0.6,
			Source: SourcePrimaryText,
		},
	}
}
