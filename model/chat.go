package model

import "time"

// ChatMessage is one entry of the community chat log. Seq preserves
// insertion order across restarts.
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Seq       int64     `gorm:"index:idx_chat_seq;not null" json:"-"`
	Username  string    `gorm:"size:64;not null" json:"username"`
	Body      string    `gorm:"type:text" json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Guild     string    `gorm:"index:idx_chat_guild;size:32" json:"guild"`
}
