package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// TrackIDSet is stored as a JSON array column and scanned back into a slice.
// Membership, not order, is meaningful.
type TrackIDSet []string

// Scan implements sql.Scanner.
func (s *TrackIDSet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*s = nil
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer.
func (s TrackIDSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Contains reports whether id is in the set.
func (s TrackIDSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Playlist groups tracks by reference. Deleting a playlist never deletes
// the tracks it points at.
type Playlist struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	UserID    string     `json:"userId" gorm:"index;size:36;not null"`
	Name      string     `json:"name" gorm:"size:100;not null"`
	TrackIDs  TrackIDSet `json:"trackIds" gorm:"type:json"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TableName sets the playlists table name.
func (Playlist) TableName() string {
	return "playlists"
}
