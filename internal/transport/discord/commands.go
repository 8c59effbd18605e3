package discordtransport

import "github.com/bwmarrin/discordgo"

// Commands returns the application command set registered on startup.
// Definitions live here so registration and dispatch cannot drift apart.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "setup",
			Description: "Configure the clan link for this server (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "clan-tag",
					Description: "Tag of the clan to link, e.g. #2PPL029",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "registration-channel",
					Description: "Channel where /register is accepted",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "log-channel",
					Description: "Channel receiving operational announcements",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "approval-channel",
					Description: "Channel where pending registrations are posted",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "member-role",
					Description: "Role granted to clan members",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "elder-role",
					Description: "Role granted to clan elders",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "coleader-role",
					Description: "Role granted to co-leaders and the leader",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "kick-message",
					Description: "DM sent before a departed member is kicked",
					Required:    false,
				},
			},
		},
		{
			Name:        "register",
			Description: "Link your clan account to this server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tag",
					Description: "Your player tag, e.g. #PYL029",
					Required:    true,
				},
			},
		},
		{
			Name:        "approve",
			Description: "Approve a pending registration (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Server member whose registration is approved",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tag",
					Description: "Player tag from the pending request",
					Required:    true,
				},
			},
		},
		{
			Name:        "deny",
			Description: "Deny a pending registration (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Server member whose registration is denied",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tag",
					Description: "Player tag from the pending request",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Optional reason relayed to the member",
					Required:    false,
				},
			},
		},
	}
}
