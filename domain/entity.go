// Package domain contains core concepts of the messaging system.
// This file defines participant identities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "fmt"

// EntityType is the variant tag of a messaging participant.
// Every participant is exactly one of spotter, artist or venue.
type EntityType string

const (
	EntitySpotter EntityType = "spotter"
	EntityArtist  EntityType = "artist"
	EntityVenue   EntityType = "venue"
)

// EntityTypes returns all valid participant types, in display-tab order.
func EntityTypes() []EntityType {
	return []EntityType{EntitySpotter, EntityArtist, EntityVenue}
}

func (t EntityType) Valid() bool {
	switch t {
	case EntitySpotter, EntityArtist, EntityVenue:
		return true
	}
	return false
}

func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// EntityRef identifies any messaging participant.
// Two refs are equal iff both the id and the type match.
type EntityRef struct {
	ID   string
	Type EntityType
}

func (r EntityRef) Equal(other EntityRef) bool {
	return r.ID == other.ID && r.Type == other.Type
}

func (r EntityRef) IsZero() bool {
	return r.ID == "" && r.Type == ""
}

func (r EntityRef) String() string {
	return string(r.Type) + "/" + r.ID
}

// DisplayIdentity is what presentation code needs to label a participant.
type DisplayIdentity struct {
	Name  string
	Image string
}

// Profile is the stored identity record behind an EntityRef.
// OwnerSpotterID links artist and venue profiles to the spotter account
// that owns them; it is empty on spotter profiles.
type Profile struct {
	Ref            EntityRef
	Name           string
	Image          string
	Location       string
	OwnerSpotterID string
	AccountID      string
}

func (p Profile) Display() DisplayIdentity {
	return DisplayIdentity{Name: p.Name, Image: p.Image}
}

// SearchableEntity is a discovery projection used to find new
// conversation targets. It is never stored as conversation state.
type SearchableEntity struct {
	Ref      EntityRef
	Name     string
	Image    string
	Location string
}

// PairKey returns the canonical key of the unordered id pair that
// identifies a conversation, regardless of which side is the viewer.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
