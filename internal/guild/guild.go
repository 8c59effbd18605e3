// Package guild abstracts the chat platform so the engine can be exercised
// with fakes. Only the discordgo adapter below knows about Discord.
package guild

import (
	"context"
	"errors"
)

// ErrMemberNotFound reports a member id that no longer resolves in the
// guild. The scheduler treats it as the signal to prune a ledger entry.
var ErrMemberNotFound = errors.New("guild member not found")

// ErrRoleNotFound reports a configured role id missing from the guild.
var ErrRoleNotFound = errors.New("guild role not found")

// Member is a guild member with the roles they currently hold.
type Member struct {
	ID       string
	Username string
	RoleIDs  []string
}

// HasRole reports whether the member holds the given role.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Guild is the chat platform collaborator. Role mutations carry a reason
// string that lands in the platform's audit log.
type Guild interface {
	// Member resolves a member by id, ErrMemberNotFound when absent.
	Member(ctx context.Context, memberID string) (*Member, error)
	// AddRole grants one role.
	AddRole(ctx context.Context, memberID, roleID, reason string) error
	// RemoveRoles revokes the given roles, continuing past individual
	// failures and returning the last error.
	RemoveRoles(ctx context.Context, memberID string, roleIDs []string, reason string) error
	// Kick removes the member from the guild.
	Kick(ctx context.Context, memberID, reason string) error
	// DM sends a direct message. Recipients may disallow DMs; callers must
	// treat failure as an expected, loggable outcome.
	DM(ctx context.Context, memberID, content string) error
	// ChannelSend posts a message to a channel.
	ChannelSend(ctx context.Context, channelID, content string) error
	// BotAbove reports whether the bot's highest role sits strictly above
	// the given role, ErrRoleNotFound when the role does not exist.
	BotAbove(ctx context.Context, roleID string) (bool, error)
	// CanSend reports whether the bot may view and post in a channel.
	CanSend(ctx context.Context, channelID string) (bool, error)
	// RoleName resolves a role's display name, ErrRoleNotFound when absent.
	RoleName(ctx context.Context, roleID string) (string, error)
	// Name is the guild's display name, used in notifications.
	Name() string
	// Connected reports whether a guild is known yet; false before the
	// gateway handshake delivers guild state.
	Connected() bool
}
