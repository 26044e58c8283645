package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEntityType_Valid_And_Invalid(t *testing.T) {
	req := require.New(t)

	for _, s := range []string{"spotter", "artist", "venue"} {
		parsed, err := ParseEntityType(s)
		req.NoError(err)
		req.True(parsed.Valid())
	}

	_, err := ParseEntityType("promoter")
	req.Error(err)
	req.False(EntityType("promoter").Valid())
}

func TestEntityRef_Equal_Requires_Both_Fields(t *testing.T) {
	req := require.New(t)
	ref := EntityRef{ID: "abc", Type: EntitySpotter}

	req.True(ref.Equal(EntityRef{ID: "abc", Type: EntitySpotter}))
	req.False(ref.Equal(EntityRef{ID: "abc", Type: EntityArtist}))
	req.False(ref.Equal(EntityRef{ID: "xyz", Type: EntitySpotter}))
}

func TestPairKey_Is_Order_Independent(t *testing.T) {
	req := require.New(t)

	req.Equal(PairKey("a", "b"), PairKey("b", "a"))
	req.NotEqual(PairKey("a", "b"), PairKey("a", "c"))
}

func TestMessage_WithOwnership_Derives_Own_Locally(t *testing.T) {
	req := require.New(t)
	viewer := EntityRef{ID: "viewer", Type: EntitySpotter}
	msg := Message{Sender: viewer, Recipient: EntityRef{ID: "other", Type: EntitySpotter}}

	req.True(msg.WithOwnership(viewer).Own)
	req.False(msg.WithOwnership(EntityRef{ID: "other", Type: EntitySpotter}).Own)
}
