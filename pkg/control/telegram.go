// Package control exposes a small Telegram command surface for operating
// the engine remotely: completing the daily broker login, checking status,
// and flattening the book.
package control

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

// Hooks are the engine-side callbacks the bot invokes. Each returns a
// user-facing message; errors are reported to the chat verbatim.
type Hooks struct {
	// LoginURL returns the broker OAuth URL the operator opens in a browser.
	LoginURL func() string
	// SubmitCode exchanges the pasted auth code for a day token.
	SubmitCode func(ctx context.Context, code string) error
	// Status reports balance and open positions.
	Status func(ctx context.Context) (string, error)
	// StartTrading launches the trading day (no-op when already running).
	StartTrading func() error
	// ExitAll market-sells every open position.
	ExitAll func(ctx context.Context) ([]string, error)
}

// Bot is a long-polling Telegram bot restricted to a single chat.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	hooks  Hooks
	logger *zap.Logger
}

func NewBot(token string, chatID int64, hooks Hooks, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return &Bot{api: api, chatID: chatID, hooks: hooks, logger: logger}, nil
}

// Notify pushes a one-way message to the operator chat. Used for crash
// alerts and end-of-day summaries; failures are logged, never returned.
func (b *Bot) Notify(text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		b.logger.Warn("telegram notify failed", zap.Error(err))
	}
}

// Run long-polls for commands until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram bot listening", zap.String("user", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.Chat.ID != b.chatID {
		return
	}

	cmd, arg := splitCommand(msg.Text)
	switch cmd {
	case "/login":
		b.Notify("Open this URL, authorize, then send the code with /code <code>:\n" + b.hooks.LoginURL())
	case "/code", "/send_code":
		if arg == "" {
			b.Notify("Usage: /code <auth-code>")
			return
		}
		if err := b.hooks.SubmitCode(ctx, arg); err != nil {
			b.Notify("Login failed: " + err.Error())
			return
		}
		b.Notify("Logged in for the day.")
	case "/status":
		text, err := b.hooks.Status(ctx)
		if err != nil {
			b.Notify("Status unavailable: " + err.Error())
			return
		}
		b.Notify(text)
	case "/start_trading":
		if err := b.hooks.StartTrading(); err != nil {
			b.Notify("Could not start: " + err.Error())
			return
		}
		b.Notify("Trading started.")
	case "/exit_all":
		b.askExitConfirmation()
	case "/help", "/start":
		b.Notify("Commands: /login /code <code> /status /start_trading /exit_all")
	}
}

// askExitConfirmation sends an inline keyboard; the destructive action only
// runs after an explicit button press.
func (b *Bot) askExitConfirmation() {
	msg := tgbotapi.NewMessage(b.chatID, "Sell ALL open positions at market?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, exit all", "exit_all_confirm"),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "exit_all_cancel"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("telegram send failed", zap.Error(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat.ID != b.chatID {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("telegram callback ack failed", zap.Error(err))
	}

	switch cb.Data {
	case "exit_all_confirm":
		sold, err := b.hooks.ExitAll(ctx)
		if err != nil {
			b.Notify("Exit-all failed: " + err.Error())
			return
		}
		if len(sold) == 0 {
			b.Notify("No open positions to exit.")
			return
		}
		b.Notify("Exited: " + strings.Join(sold, ", "))
	case "exit_all_cancel":
		b.Notify("Cancelled.")
	}
}

func splitCommand(text string) (cmd, arg string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// StatusText formats a balance-and-positions summary for the chat.
func StatusText(balance float64, positions []broker.Position) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Balance: %.2f\n", balance)
	open := 0
	for _, pos := range positions {
		if pos.Quantity <= 0 || pos.SellPrice > 0 {
			continue
		}
		open++
		fmt.Fprintf(&sb, "%s x%d @ %.2f\n", pos.Symbol, pos.Quantity, pos.CostBasis)
	}
	if open == 0 {
		sb.WriteString("No open positions.")
	}
	return strings.TrimSpace(sb.String())
}
