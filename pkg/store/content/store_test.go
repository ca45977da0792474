package content

import (
	"testing"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentIDForObject(t *testing.T) {
	id := IDForObject(0x1234ABCD)
	assert.Equal(t, ContentID("00001234abcd"), id)

	got, err := id.ObjectID()
	require.NoError(t, err)
	assert.Equal(t, ots.ObjectID(0x1234ABCD), got)

	for _, bad := range []ContentID{"", "xyz", "0000000000zz", "1234"} {
		_, err := bad.ObjectID()
		assert.ErrorIs(t, err, ErrInvalidContentID, "%q", bad)
	}
}

func TestFillAt(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		offset int64
		size   int
		want   []byte
	}{
		{"inside", "abcdef", 1, 3, []byte("bcd")},
		{"straddles end", "abc", 2, 3, []byte{'c', 0, 0}},
		{"past end", "abc", 5, 2, []byte{0, 0}},
		{"empty data", "", 0, 2, []byte{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := []byte("XXXXXXXX")[:tt.size]
			FillAt(p, []byte(tt.data), tt.offset)
			assert.Equal(t, tt.want, p)
		})
	}
}
