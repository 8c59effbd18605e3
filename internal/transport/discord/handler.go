// Package discordtransport is the thin slash-command layer. It parses
// interactions, enforces the admin gate, and delegates to domain services
// without embedding business logic.
package discordtransport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	domainerrors "clanbridge/pkg/domain-errors"
)

// Approvals is the registration workflow the command layer delegates to.
type Approvals interface {
	Request(ctx context.Context, requesterID, channelID, rawTag string) (string, error)
	Approve(ctx context.Context, adminID, memberID, rawTag string) (string, error)
	Deny(ctx context.Context, adminID, memberID, rawTag, reason string) string
}

// Handler dispatches application commands to the domain services.
type Handler struct {
	setup     *Setup
	approvals Approvals
	logger    *slog.Logger

	timeout time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithTimeout bounds each command execution.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// NewHandler constructs the command dispatcher.
func NewHandler(setup *Setup, approvals Approvals, opts ...Option) *Handler {
	h := &Handler{
		setup:     setup,
		approvals: approvals,
		logger:    slog.Default(),
		timeout:   45 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bind registers the interaction handler and pushes the command definitions
// to Discord once the gateway session is ready.
func (h *Handler) Bind(s *discordgo.Session) {
	s.AddHandler(h.onInteraction)
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		appID := r.User.ID
		for _, cmd := range Commands() {
			if _, err := s.ApplicationCommandCreate(appID, "", cmd); err != nil {
				h.logger.Error("failed to register command", "command", cmd.Name, "error", err)
			}
		}
	})
}

func (h *Handler) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.Member == nil || i.Member.User == nil {
		return // DM interactions are not supported
	}

	data := i.ApplicationCommandData()
	callerID := i.Member.User.ID

	// Commands talk to the clan API, which can take well over the 3 second
	// interaction deadline. Acknowledge first, follow up with the result.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		h.logger.Error("failed to acknowledge interaction", "command", data.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var reply string
	switch data.Name {
	case "setup":
		reply = h.runAdmin(ctx, i, func(ctx context.Context) (string, error) {
			return h.setup.Apply(ctx, callerID, setupParamsFrom(data.Options))
		})
	case "register":
		reply = h.run(ctx, data.Name, callerID, func(ctx context.Context) (string, error) {
			return h.approvals.Request(ctx, callerID, i.ChannelID, optString(data.Options, "tag"))
		})
	case "approve":
		reply = h.runAdmin(ctx, i, func(ctx context.Context) (string, error) {
			return h.approvals.Approve(ctx, callerID, optUser(data.Options, "member"), optString(data.Options, "tag"))
		})
	case "deny":
		reply = h.runAdmin(ctx, i, func(ctx context.Context) (string, error) {
			return h.approvals.Deny(ctx, callerID, optUser(data.Options, "member"),
				optString(data.Options, "tag"), optString(data.Options, "reason")), nil
		})
	default:
		reply = "Unknown command."
	}

	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: reply,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		h.logger.Error("failed to send command reply", "command", data.Name, "error", err)
	}
}

func (h *Handler) run(ctx context.Context, command, callerID string, fn func(context.Context) (string, error)) string {
	reply, err := fn(ctx)
	if err != nil {
		h.logger.Warn("command failed", "command", command, "caller", callerID, "error", err)
		return userMessage(err)
	}
	return reply
}

func (h *Handler) runAdmin(ctx context.Context, i *discordgo.InteractionCreate, fn func(context.Context) (string, error)) string {
	if i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
		return "This command requires the Administrator permission."
	}
	return h.run(ctx, i.ApplicationCommandData().Name, i.Member.User.ID, fn)
}

// userMessage translates coded domain errors into replies safe to show the
// caller. Unrecognized errors stay generic so internals never leak.
func userMessage(err error) string {
	msg := domainerrors.MessageOf(err)
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeValidation, domainerrors.CodeConflict,
		domainerrors.CodeExternalNotFound, domainerrors.CodeConfigIncomplete:
		return msg
	case domainerrors.CodePermissionDenied:
		return fmt.Sprintf("%s An admin needs to fix the bot's role or channel permissions.", msg)
	case domainerrors.CodeExternalTransient:
		return "The clan API is unavailable right now. Please try again in a few minutes."
	case domainerrors.CodePersistence:
		return "The registration could not be saved. Admins have been notified."
	default:
		return "Something went wrong. Please try again later."
	}
}

func optString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func optUser(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return opt.UserValue(nil).ID
		}
	}
	return ""
}

func optChannel(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return opt.ChannelValue(nil).ID
		}
	}
	return ""
}

func optRole(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return opt.RoleValue(nil, "").ID
		}
	}
	return ""
}
