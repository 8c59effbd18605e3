// Package clan talks to the external clan API. The rest of the bot consumes
// the API interface and the Session wrapper; nothing outside this package
// knows about HTTP or token handling.
package clan

import (
	"context"
	"strings"
)

//go:generate mockgen -source=clan.go -destination=mocks/mocks.go -package=mocks API

// Member is one entry of a clan roster snapshot.
type Member struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
	// Role is the in-clan rank as the API spells it: member, admin,
	// coLeader, leader. admin is what the game displays as Elder.
	Role string `json:"role"`
}

// Snapshot is a point-in-time view of a clan roster.
type Snapshot struct {
	Tag     string   `json:"tag"`
	Name    string   `json:"name"`
	Members []Member `json:"memberList"`
}

// MemberByTag finds a roster entry by normalized tag.
func (s *Snapshot) MemberByTag(tag string) (Member, bool) {
	for _, m := range s.Members {
		if m.Tag == tag {
			return m, true
		}
	}
	return Member{}, false
}

// API is the clan service collaborator. Implementations map transport
// failures onto the coded error taxonomy: external_auth for rejected
// sessions, external_not_found for missing clans, external_transient for
// timeouts and everything else.
type API interface {
	// Login establishes or refreshes the API session.
	Login(ctx context.Context) error
	// Clan fetches the roster snapshot for a normalized clan tag.
	Clan(ctx context.Context, tag string) (*Snapshot, error)
}

// DisplayRank renders an API rank for humans: compound words get a hyphen,
// the first letter is capitalized, and admin shows as the in-game Elder.
// Cosmetic only; role mapping always works on the raw rank.
func DisplayRank(rank string) string {
	switch strings.ToLower(rank) {
	case "admin", "elder":
		return "Elder"
	case "coleader":
		return "Co-Leader"
	case "leader":
		return "Leader"
	case "member":
		return "Member"
	}
	if rank == "" {
		return rank
	}
	return strings.ToUpper(rank[:1]) + rank[1:]
}
