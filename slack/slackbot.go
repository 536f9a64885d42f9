package rndslack

import (
	"context"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

type SlackBot struct {
	client       *slack.Client
	socketClient *socketmode.Client
	eventHandler *Handler
	logger       *slog.Logger
}

// NewSlackBot connects over socket mode. Each /rnd calibration is bounded by
// fitTimeout.
func NewSlackBot(appToken, botToken string, estimator Estimator, fitTimeout time.Duration, logger *slog.Logger) *SlackBot {
	client := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	socketClient := socketmode.New(
		client,
		socketmode.OptionLog(slog.NewLogLogger(logger.With("component", "socketmode").Handler(), slog.LevelDebug)),
	)

	return &SlackBot{
		client:       client,
		socketClient: socketClient,
		eventHandler: NewHandler(estimator, fitTimeout, logger),
		logger:       logger,
	}
}

// Start blocks until ctx is cancelled or the socket connection fails.
func (sb *SlackBot) Start(ctx context.Context) error {
	go func() {
		for evt := range sb.socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeConnected:
				sb.logger.Info("connected to slack")
			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					sb.logger.Warn("ignoring malformed slash command", "type", evt.Type)
					continue
				}
				sb.socketClient.Ack(*evt.Request)
				if err := sb.eventHandler.Handle(ctx, cmd, sb.socketClient); err != nil {
					sb.logger.Error("slash command failed", "command", cmd.Command, "error", err)
				}
			}
		}
	}()

	return sb.socketClient.RunContext(ctx)
}
