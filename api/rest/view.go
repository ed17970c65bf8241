package rest

import (
	"time"

	"github.com/kasuganosora/baycode/community/guild"
	"github.com/kasuganosora/baycode/model"
)

// AccountView is the account as shown to its owner. Credentials and reset
// tokens are never included.
type AccountView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FullName       string    `json:"fullName"`
	School         string    `json:"school"`
	BayArea        bool      `json:"bayArea"`
	Guild          string    `json:"guild"`
	JoinedAt       time.Time `json:"joinDate"`
	SolvedProblems []string  `json:"solvedProblems"`
	Points         int       `json:"points"`
	RespectPoints  int       `json:"respectPoints"`
	RespectRank    string    `json:"respectRank"`
}

func accountView(a model.Account) AccountView {
	solved := []string(a.SolvedProblems)
	if solved == nil {
		solved = []string{}
	}
	return AccountView{
		ID:             a.ID,
		Username:       a.Username,
		Email:          a.Email,
		FullName:       a.FullName,
		School:         a.School,
		BayArea:        a.BayArea,
		Guild:          a.Guild,
		JoinedAt:       a.JoinedAt,
		SolvedProblems: solved,
		Points:         a.Points,
		RespectPoints:  a.RespectPoints,
		RespectRank:    a.RespectRank,
	}
}

// RankEntry is one public leaderboard row.
type RankEntry struct {
	Rank          int    `json:"rank"`
	Username      string `json:"username"`
	Guild         string `json:"guild"`
	RespectPoints int    `json:"respectPoints"`
	RespectRank   string `json:"respectRank"`
	Solved        int    `json:"solved"`
}

func rankEntries(accounts []model.Account) []RankEntry {
	out := make([]RankEntry, len(accounts))
	for i, a := range accounts {
		out[i] = RankEntry{
			Rank:          i + 1,
			Username:      a.Username,
			Guild:         a.Guild,
			RespectPoints: a.RespectPoints,
			RespectRank:   a.RespectRank,
			Solved:        len(a.SolvedProblems),
		}
	}
	return out
}

// GuildView is a guild with its standing and member usernames.
type GuildView struct {
	guild.Standing
	Members []string `json:"members"`
}
