package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatPadsToEightDigits(t *testing.T) {
	id, err := Format(KindOrder, 1)
	require.NoError(t, err)
	require.Equal(t, "ORD00000001", id)

	id, err = Format(KindRate, 12345678)
	require.NoError(t, err)
	require.Equal(t, "RATE12345678", id)
}

func TestFormatGrowsBeyondPadding(t *testing.T) {
	id, err := Format(KindMovement, 123456789)
	require.NoError(t, err)
	require.Equal(t, "MOV123456789", id)
}

func TestFormatUnknownKind(t *testing.T) {
	_, err := Format(Kind("widget"), 1)
	require.Error(t, err)
}

func TestPrefixesAreUnique(t *testing.T) {
	seen := make(map[string]Kind, len(prefixes))
	for kind, prefix := range prefixes {
		require.NotEmpty(t, prefix, "kind %s has no prefix", kind)
		prev, dup := seen[prefix]
		require.False(t, dup, "prefix %s shared by %s and %s", prefix, prev, kind)
		seen[prefix] = kind
	}
}

func TestItemSuffix(t *testing.T) {
	require.Equal(t, "ORD00000007-001", ItemSuffix("ORD00000007", 1))
	require.Equal(t, "ORD00000007-012", ItemSuffix("ORD00000007", 12))
	require.Equal(t, "ORD00000007-1234", ItemSuffix("ORD00000007", 1234))
}
