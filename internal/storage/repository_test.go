package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"file", KindFile},
		{"json", KindFile},
		{" JSON ", KindFile},
		{"relational", KindRelational},
		{"sqlite", KindRelational},
		{"postgres", KindRelational},
		{"PostgreSQL", KindRelational},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseKind("mongo")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestKind_RollsBack(t *testing.T) {
	assert.True(t, KindRelational.RollsBack())
	assert.False(t, KindFile.RollsBack())
}

func TestIOError(t *testing.T) {
	cause := errors.New("disk full")
	err := IOError("write books", cause)

	assert.ErrorIs(t, err, ErrStorageIO)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorageFailure(err))
	assert.Nil(t, IOError("noop", nil))

	assert.True(t, IsStorageFailure(ErrConnection))
	assert.False(t, IsStorageFailure(ErrNotFound))
	assert.False(t, IsStorageFailure(ErrInvalidState))
}

func TestNormalizeISBN(t *testing.T) {
	assert.Nil(t, NormalizeISBN(""))
	assert.Nil(t, NormalizeISBN("   "))
	require.NotNil(t, NormalizeISBN(" 978-0-452-28423-4 "))
	assert.Equal(t, "978-0-452-28423-4", *NormalizeISBN(" 978-0-452-28423-4 "))
}

func TestSampleCatalog(t *testing.T) {
	books := SampleCatalog()
	require.Len(t, books, 8)

	seen := make(map[string]bool)
	for i, book := range books {
		require.NotNil(t, book.ISBN)
		assert.False(t, seen[*book.ISBN])
		seen[*book.ISBN] = true
		assert.Equal(t, "Available", string(book.Status))
		if i > 0 {
			assert.True(t, books[i-1].CreatedAt.Before(book.CreatedAt))
		}
	}
	assert.Equal(t, "1984", books[0].Title)
}
