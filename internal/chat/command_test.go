package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Command
	}{
		{"view books", "view books", Command{Kind: KindViewCatalog}},
		{"view books mixed case", "View BOOKS", Command{Kind: KindViewCatalog}},
		{"view books padded", "  view books  ", Command{Kind: KindViewCatalog}},
		{"request with title", "request book Dune", Command{Kind: KindRequestItem, Title: "Dune"}},
		{"request keeps title casing", "REQUEST BOOK The Left Hand of Darkness", Command{Kind: KindRequestItem, Title: "The Left Hand of Darkness"}},
		{"request without title", "request book", Command{Kind: KindRequestItem, Title: ""}},
		{"request extra spaces", "request book   Solaris ", Command{Kind: KindRequestItem, Title: "Solaris"}},
		{"unknown", "lend me a book", Command{Kind: KindUnknown}},
		{"empty", "", Command{Kind: KindUnknown}},
		{"view books with suffix is unknown", "view books please", Command{Kind: KindUnknown}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Parse(tc.in))
		})
	}
}
