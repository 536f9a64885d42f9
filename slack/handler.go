package rndslack

import (
	"context"
	"log/slog"
	"time"

	"github.com/bcdannyboy/bahra/estimate"
	"github.com/slack-go/slack"
)

// Estimator is the part of estimate.Estimator the bot needs.
type Estimator interface {
	Estimate(ctx context.Context, ticker string, dte int) (*estimate.Estimate, error)
}

// Poster posts chat messages. *socketmode.Client satisfies it.
type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type Handler struct {
	helpHandler *HelpHandler
	rndHandler  *RNDHandler
	logger      *slog.Logger
}

func NewHandler(estimator Estimator, fitTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		helpHandler: NewHelpHandler(),
		rndHandler:  NewRNDHandler(estimator, fitTimeout, logger),
		logger:      logger,
	}
}

func (h *Handler) Handle(ctx context.Context, cmd slack.SlashCommand, client Poster) error {
	h.logger.Info("slash command", "command", cmd.Command, "text", cmd.Text, "user", cmd.UserName)
	switch cmd.Command {
	case "/help":
		return h.helpHandler.HandleCommand(cmd, client)
	case "/rnd":
		return h.rndHandler.HandleCommand(ctx, cmd, client)
	}
	return nil
}
