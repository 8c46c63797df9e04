package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		page   int
		limit  int
		offset int
	}{
		{"defaults", "", 1, DefaultLimit, 0},
		{"second page", "?page=2&limit=10", 2, 10, 10},
		{"garbage falls back", "?page=abc&limit=-3", 1, DefaultLimit, 0},
		{"limit capped", "?limit=5000", 1, MaxLimit, 0},
		{"huge page capped", "?page=9223372036854775807&limit=20", MaxPage, 20, (MaxPage - 1) * 20},
		{"page past int range", "?page=99999999999999999999", 1, DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Pagination
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				got = ParseFromRequest(c)
				return nil
			})
			resp, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.page, got.Page)
			assert.Equal(t, tt.limit, got.Limit)
			assert.Equal(t, tt.offset, got.Offset)
			assert.GreaterOrEqual(t, got.Offset, 0)
		})
	}
}
