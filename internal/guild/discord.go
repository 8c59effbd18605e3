package guild

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Discord adapts a discordgo session to the Guild interface. The deployment
// is single-guild: the first guild delivered by the gateway is the one.
type Discord struct {
	session *discordgo.Session

	mu      sync.RWMutex
	guildID string
}

// NewDiscord wraps a session and starts tracking the guild id from gateway
// events.
func NewDiscord(session *discordgo.Session) *Discord {
	d := &Discord{session: session}
	session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		d.mu.Lock()
		if d.guildID == "" {
			d.guildID = g.ID
		}
		d.mu.Unlock()
	})
	return d
}

// GuildID returns the tracked guild id, empty before the gateway handshake.
func (d *Discord) GuildID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.guildID
}

func (d *Discord) Connected() bool { return d.GuildID() != "" }

func (d *Discord) Name() string {
	g, err := d.session.State.Guild(d.GuildID())
	if err != nil {
		return ""
	}
	return g.Name
}

func (d *Discord) Member(ctx context.Context, memberID string) (*Member, error) {
	m, err := d.session.GuildMember(d.GuildID(), memberID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("fetch member %s: %w", memberID, err)
	}
	username := m.User.Username
	if m.Nick != "" {
		username = m.Nick
	}
	return &Member{ID: memberID, Username: username, RoleIDs: m.Roles}, nil
}

func (d *Discord) AddRole(ctx context.Context, memberID, roleID, reason string) error {
	err := d.session.GuildMemberRoleAdd(d.GuildID(), memberID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, memberID, err)
	}
	return nil
}

func (d *Discord) RemoveRoles(ctx context.Context, memberID string, roleIDs []string, reason string) error {
	var lastErr error
	for _, roleID := range roleIDs {
		err := d.session.GuildMemberRoleRemove(d.GuildID(), memberID, roleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
		if err != nil {
			lastErr = fmt.Errorf("remove role %s from %s: %w", roleID, memberID, err)
		}
	}
	return lastErr
}

func (d *Discord) Kick(ctx context.Context, memberID, reason string) error {
	err := d.session.GuildMemberDelete(d.GuildID(), memberID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return fmt.Errorf("kick %s: %w", memberID, err)
	}
	return nil
}

func (d *Discord) DM(ctx context.Context, memberID, content string) error {
	ch, err := d.session.UserChannelCreate(memberID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open DM channel for %s: %w", memberID, err)
	}
	if _, err := d.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send DM to %s: %w", memberID, err)
	}
	return nil
}

func (d *Discord) ChannelSend(ctx context.Context, channelID, content string) error {
	if _, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

func (d *Discord) BotAbove(ctx context.Context, roleID string) (bool, error) {
	g, err := d.session.State.Guild(d.GuildID())
	if err != nil {
		return false, fmt.Errorf("guild state: %w", err)
	}

	target := findRole(g.Roles, roleID)
	if target == nil {
		return false, ErrRoleNotFound
	}

	bot, err := d.Member(ctx, d.session.State.User.ID)
	if err != nil {
		return false, fmt.Errorf("fetch own member: %w", err)
	}

	top := -1
	for _, id := range bot.RoleIDs {
		if r := findRole(g.Roles, id); r != nil && r.Position > top {
			top = r.Position
		}
	}
	return top > target.Position, nil
}

func (d *Discord) CanSend(ctx context.Context, channelID string) (bool, error) {
	perms, err := d.session.UserChannelPermissions(d.session.State.User.ID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("channel permissions for %s: %w", channelID, err)
	}
	const needed = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	return perms&needed == needed, nil
}

func (d *Discord) RoleName(ctx context.Context, roleID string) (string, error) {
	g, err := d.session.State.Guild(d.GuildID())
	if err != nil {
		return "", fmt.Errorf("guild state: %w", err)
	}
	if r := findRole(g.Roles, roleID); r != nil {
		return r.Name, nil
	}
	return "", ErrRoleNotFound
}

func findRole(roles []*discordgo.Role, id string) *discordgo.Role {
	for _, r := range roles {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func isUnknownMember(err error) bool {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		return rest.Message.Code == discordgo.ErrCodeUnknownMember ||
			rest.Message.Code == discordgo.ErrCodeUnknownUser
	}
	return false
}
