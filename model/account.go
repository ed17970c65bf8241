package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Account is a registered Bay Code member and their progression.
type Account struct {
	ID               string                      `gorm:"primaryKey;size:36" json:"id"`
	Username         string                      `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email            string                      `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash     string                      `gorm:"size:255;not null" json:"-"`
	FullName         string                      `gorm:"size:128" json:"fullName"`
	School           string                      `gorm:"size:128" json:"school"`
	BayArea          bool                        `json:"bayArea"`
	Guild            string                      `gorm:"index:idx_account_guild;size:32;not null" json:"guild"`
	JoinedAt         time.Time                   `json:"joinDate"`
	SolvedProblems   datatypes.JSONSlice[string] `json:"solvedProblems"`
	Points           int                         `gorm:"default:0" json:"points"`
	RespectPoints    int                         `gorm:"default:0" json:"respectPoints"`
	RespectRank      string                      `gorm:"size:16" json:"respectRank"`
	ResetToken       string                      `gorm:"index:idx_account_reset;size:64" json:"-"`
	ResetTokenExpiry *time.Time                  `json:"-"`
}

// HasSolved reports whether problemID is in the solved set.
func (a *Account) HasSolved(problemID string) bool {
	return slices.Contains(a.SolvedProblems, problemID)
}

// Clone returns a copy that shares no mutable state with a.
func (a Account) Clone() Account {
	out := a
	out.SolvedProblems = slices.Clone(a.SolvedProblems)
	if out.SolvedProblems == nil {
		out.SolvedProblems = datatypes.JSONSlice[string]{}
	}
	if a.ResetTokenExpiry != nil {
		exp := *a.ResetTokenExpiry
		out.ResetTokenExpiry = &exp
	}
	return out
}
