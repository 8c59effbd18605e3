// Package guildtest provides an in-memory Guild for unit tests, in the
// spirit of the in-memory stores elsewhere in this codebase: clarity over
// performance, and enough knobs to script failure modes.
package guildtest

import (
	"context"
	"sync"

	"clanbridge/internal/guild"
)

// Fake is an in-memory guild.Guild implementation.
type Fake struct {
	mu sync.Mutex

	GuildName string
	members   map[string]*guild.Member
	roleNames map[string]string

	// BelowRoles lists role ids the bot is NOT above; everything else
	// passes the hierarchy check.
	BelowRoles map[string]bool
	// BlockedChannels lists channel ids CanSend reports false for.
	BlockedChannels map[string]bool

	// Scripted failures.
	KickErr error
	DMErr   error
	SendErr error

	// Recorded side effects.
	Added    []RoleChange
	Removed  []RoleChange
	Kicked   []string
	DMs      []Message
	Messages []Message

	disconnected bool
}

// RoleChange records one role mutation.
type RoleChange struct {
	MemberID string
	RoleIDs  []string
	Reason   string
}

// Message records one delivered message.
type Message struct {
	Target  string
	Content string
}

// NewFake constructs an empty fake guild.
func NewFake() *Fake {
	return &Fake{
		GuildName:       "Test Guild",
		members:         make(map[string]*guild.Member),
		roleNames:       make(map[string]string),
		BelowRoles:      make(map[string]bool),
		BlockedChannels: make(map[string]bool),
	}
}

// PutMember adds or replaces a member.
func (f *Fake) PutMember(id, username string, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[id] = &guild.Member{ID: id, Username: username, RoleIDs: append([]string(nil), roleIDs...)}
}

// PutRole registers a role name.
func (f *Fake) PutRole(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleNames[id] = name
}

// SetDisconnected makes Connected report false.
func (f *Fake) SetDisconnected() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

// MemberRoles returns the member's current roles, nil if absent.
func (f *Fake) MemberRoles(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return nil
	}
	return append([]string(nil), m.RoleIDs...)
}

func (f *Fake) Member(_ context.Context, memberID string) (*guild.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok {
		return nil, guild.ErrMemberNotFound
	}
	cp := *m
	cp.RoleIDs = append([]string(nil), m.RoleIDs...)
	return &cp, nil
}

func (f *Fake) AddRole(_ context.Context, memberID, roleID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Added = append(f.Added, RoleChange{MemberID: memberID, RoleIDs: []string{roleID}, Reason: reason})
	if m, ok := f.members[memberID]; ok && !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	return nil
}

func (f *Fake) RemoveRoles(_ context.Context, memberID string, roleIDs []string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, RoleChange{MemberID: memberID, RoleIDs: append([]string(nil), roleIDs...), Reason: reason})
	m, ok := f.members[memberID]
	if !ok {
		return nil
	}
	drop := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		drop[id] = true
	}
	kept := m.RoleIDs[:0]
	for _, id := range m.RoleIDs {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	m.RoleIDs = kept
	return nil
}

func (f *Fake) Kick(_ context.Context, memberID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KickErr != nil {
		return f.KickErr
	}
	f.Kicked = append(f.Kicked, memberID)
	delete(f.members, memberID)
	return nil
}

func (f *Fake) DM(_ context.Context, memberID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DMErr != nil {
		return f.DMErr
	}
	f.DMs = append(f.DMs, Message{Target: memberID, Content: content})
	return nil
}

func (f *Fake) ChannelSend(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Messages = append(f.Messages, Message{Target: channelID, Content: content})
	return nil
}

func (f *Fake) BotAbove(_ context.Context, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roleNames[roleID]; !ok {
		return false, guild.ErrRoleNotFound
	}
	return !f.BelowRoles[roleID], nil
}

func (f *Fake) CanSend(_ context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.BlockedChannels[channelID], nil
}

func (f *Fake) RoleName(_ context.Context, roleID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.roleNames[roleID]
	if !ok {
		return "", guild.ErrRoleNotFound
	}
	return name, nil
}

func (f *Fake) Name() string { return f.GuildName }

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected
}
