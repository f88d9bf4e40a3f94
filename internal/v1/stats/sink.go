// Package stats records completed matches to an external append-only store.
package stats

import (
	"context"
	"time"
)

// PlayerSummary is the per-player slice of a match record.
type PlayerSummary struct {
	ConnID            string   `json:"connId"`
	UserID            string   `json:"userId,omitempty"`
	DisplayName       string   `json:"displayName"`
	Hero              string   `json:"hero,omitempty"`
	Weapon            string   `json:"weapon,omitempty"`
	Score             int      `json:"score"`
	Kills             int      `json:"kills"`
	Deaths            int      `json:"deaths"`
	DamageDealt       float64  `json:"damageDealt"`
	BulletsFired      int      `json:"bulletsFired"`
	BulletsHit        int      `json:"bulletsHit"`
	LivesLost         int      `json:"livesLost"`
	PowerupsCollected []string `json:"powerupsCollected,omitempty"`
}

// MatchSummary is written once per completed match.
type MatchSummary struct {
	RoomID    string          `json:"roomId"`
	Mode      string          `json:"mode"`
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   time.Time       `json:"endedAt"`
	Outcome   string          `json:"outcome"` // e.g. "boss_defeated", "score_target", "time", "last_survivor"
	WinnerID  string          `json:"winnerId,omitempty"`
	Players   []PlayerSummary `json:"players"`
}

// Sink is the append-only match record consumer. RecordMatchEnd must not
// block the caller; implementations queue and write in the background.
type Sink interface {
	RecordMatchEnd(ctx context.Context, summary MatchSummary)
	Close() error
}

// Noop discards all records. Used when Redis is disabled.
type Noop struct{}

func (Noop) RecordMatchEnd(context.Context, MatchSummary) {}
func (Noop) Close() error                                 { return nil }
