package models

import (
	"encoding/json"
	"fmt"
)

// ResourceType names a kind of upstream resource guarded by fetch reservations.
type ResourceType string

const (
	ResourceMatch      ResourceType = "match"
	ResourceBeatmap    ResourceType = "beatmap"
	ResourceBeatmapset ResourceType = "beatmapset"
	ResourcePlayer     ResourceType = "player"
)

// PlatformOsu is the only upstream platform currently served.
const PlatformOsu = "osu"

// IsValid reports whether t is a known resource type.
func (t ResourceType) IsValid() bool {
	switch t {
	case ResourceMatch, ResourceBeatmap, ResourceBeatmapset, ResourcePlayer:
		return true
	default:
		return false
	}
}

// ReservationKey identifies one fetchable resource.
type ReservationKey struct {
	Type     ResourceType
	ID       int64
	Platform string
}

func (k ReservationKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Type, k.Platform, k.ID)
}

// ReservationStatus is the observable state of a reservation key.
type ReservationStatus int

const (
	ReservationAvailable ReservationStatus = iota
	ReservationPending
	ReservationRecentlyProcessed
)

func (s ReservationStatus) String() string {
	switch s {
	case ReservationPending:
		return "pending"
	case ReservationRecentlyProcessed:
		return "recently_processed"
	default:
		return "available"
	}
}

// MarshalJSON renders the status by name for the ops API.
func (s ReservationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
