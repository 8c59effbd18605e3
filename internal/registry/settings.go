// Package registry owns the two persisted documents: the guild Settings
// written by /setup and the registration Ledger binding guild members to
// clan tags.
package registry

import (
	"log/slog"
	"strings"
	"sync"

	"clanbridge/internal/storage"
)

// SettingsFile is the on-disk name of the configuration document.
const SettingsFile = "config.json"

// DefaultKickMessage is sent before a forced removal when /setup left the
// field empty.
const DefaultKickMessage = "You have been removed from the server because you are no longer part of the clan."

// RoleMap binds each clan rank to a guild role id. The game only has three
// meaningful tiers, so elder doubles for admin and coleader for leader.
type RoleMap struct {
	Member   string `json:"member"`
	Admin    string `json:"admin"`
	Elder    string `json:"elder"`
	CoLeader string `json:"coleader"`
	Leader   string `json:"leader"`
}

// Settings is the configuration document. It is replaced wholesale by
// /setup; partial states are never persisted.
type Settings struct {
	ClanTag               string  `json:"clanTag"`
	RegistrationChannelID string  `json:"registrationChannelId"`
	LogChannelID          string  `json:"logChannelId"`
	ApprovalChannelID     string  `json:"approvalChannelId"`
	Roles                 RoleMap `json:"roles"`
	KickMessage           string  `json:"kickMessage"`
}

// Complete reports whether every field the engine depends on is populated.
func (s *Settings) Complete() bool {
	return s != nil &&
		s.ClanTag != "" &&
		s.RegistrationChannelID != "" &&
		s.LogChannelID != "" &&
		s.ApprovalChannelID != "" &&
		s.Roles.Member != "" &&
		s.Roles.Admin != "" &&
		s.Roles.Elder != "" &&
		s.Roles.CoLeader != "" &&
		s.Roles.Leader != ""
}

// RoleFor resolves a clan rank to the configured guild role id. Ranks are
// matched case-insensitively; an unknown rank is a configuration problem for
// the caller to surface, never a crash.
func (s *Settings) RoleFor(rank string) (string, bool) {
	var id string
	switch strings.ToLower(rank) {
	case "member":
		id = s.Roles.Member
	case "admin":
		id = s.Roles.Admin
	case "elder":
		id = s.Roles.Elder
	case "coleader":
		id = s.Roles.CoLeader
	case "leader":
		id = s.Roles.Leader
	}
	return id, id != ""
}

// ManagedRoleIDs returns the deduplicated set of guild roles the engine is
// allowed to touch. Roles outside this set are never mutated.
func (s *Settings) ManagedRoleIDs() map[string]struct{} {
	ids := make(map[string]struct{}, 5)
	for _, id := range []string{s.Roles.Member, s.Roles.Admin, s.Roles.Elder, s.Roles.CoLeader, s.Roles.Leader} {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// Config holds the current Settings behind a lock so command handlers and
// the scheduler observe replacements atomically.
type Config struct {
	store  *storage.Store
	logger *slog.Logger

	mu       sync.RWMutex
	settings *Settings
}

// LoadConfig reads the settings document from disk. An absent or incomplete
// document leaves the engine disabled until /setup runs.
func LoadConfig(store *storage.Store, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Config{store: store, logger: logger}

	var s Settings
	store.Load(SettingsFile, &s)
	if s.Complete() {
		c.settings = &s
		logger.Info("settings loaded", "clan_tag", s.ClanTag)
	} else {
		logger.Warn("settings absent or incomplete, waiting for /setup")
	}
	return c
}

// Current returns the active settings, nil while unconfigured. Callers get
// a stable pointer; Replace swaps the whole document.
func (c *Config) Current() *Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Replace persists new settings and swaps them in. The in-memory state only
// changes after the write succeeds, keeping disk and memory in agreement.
func (c *Config) Replace(s Settings) error {
	if err := c.store.Save(SettingsFile, &s); err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = &s
	c.mu.Unlock()
	return nil
}
