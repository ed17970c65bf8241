package model

import (
	"slices"

	"gorm.io/datatypes"
)

// Guild is one of the fixed Bay Code teams. Members holds account ids in
// join order; RespectPoints and RespectRank cache the member aggregate.
type Guild struct {
	Name          string                      `gorm:"primaryKey;size:32" json:"name"`
	Position      int                         `gorm:"default:0" json:"-"`
	Members       datatypes.JSONSlice[string] `json:"members"`
	Points        int                         `gorm:"default:0" json:"points"`
	RespectPoints int                         `gorm:"default:0" json:"respectPoints"`
	RespectRank   string                      `gorm:"size:16" json:"respectRank"`
}

// Clone returns a copy with its own member slice.
func (g Guild) Clone() Guild {
	out := g
	out.Members = slices.Clone(g.Members)
	if out.Members == nil {
		out.Members = datatypes.JSONSlice[string]{}
	}
	return out
}
