package pagination

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClampsValues(t *testing.T) {
	p := Pagination{Page: 0, Limit: 0}.Normalize(20, 100)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.Limit)

	p = Pagination{Page: 3, Limit: 500}.Normalize(20, 100)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 200, p.Offset())
}

func TestNormalizeCapsHugePage(t *testing.T) {
	p := Pagination{Page: 100_000_000_000_000_000, Limit: 100}.Normalize(20, 100)
	assert.Equal(t, MaxPage, p.Page)
	assert.Equal(t, (MaxPage-1)*100, p.Offset())
	assert.Positive(t, p.Offset())

	// Offset saturates even when Normalize was skipped.
	raw := Pagination{Page: 100_000_000_000_000_000, Limit: 1000}
	assert.Equal(t, math.MaxInt, raw.Offset())
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Pagination{Page: 2, Limit: 10}, 25)
	assert.Equal(t, 3, info.Pages)
	assert.True(t, info.HasNext)
	assert.True(t, info.HasPrev)

	info = BuildPageInfo(Pagination{Page: 1, Limit: 10}, 0)
	assert.Equal(t, 0, info.Pages)
	assert.False(t, info.HasNext)
	assert.False(t, info.HasPrev)
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	a, b, c := 1, 2, 3
	info := BuildCursorPageInfo([]*int{&a, &b, &c}, 2, func(v *int) string {
		if *v == 2 {
			return "two"
		}
		return "other"
	})
	assert.True(t, info.HasMore)
	assert.Equal(t, "two", info.NextPageToken)

	info = BuildCursorPageInfo([]*int{&a}, 2, func(*int) string { return "x" })
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestNewPageNeverReturnsNilItems(t *testing.T) {
	page := NewPage[string](nil, Pagination{Page: 1, Limit: 20}, 0)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 0, page.Pagination.Pages)
	assert.False(t, page.Pagination.HasNext)
}
