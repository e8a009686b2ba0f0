package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/asdmr/chronor/internal/clock"
	"github.com/asdmr/chronor/internal/tracker"
)

// Ticker triggers one scheduling pass on demand; satisfied by
// scheduler.Scheduler. Used by the owner-only /asknow command.
type Ticker interface {
	Tick(ctx context.Context, now time.Time)
}

// Router wires Telegram updates to handlers and implements the scheduler's
// outbound Sender.
type Router struct {
	bot     *tgbotapi.BotAPI
	log     *zap.Logger
	trk     *tracker.Tracker
	clk     clock.Clock
	ownerID int64
	ticker  Ticker
}

// NewRouter creates a new Telegram router. ownerID 0 disables /asknow.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, trk *tracker.Tracker, clk clock.Clock, ownerID int64) *Router {
	return &Router{
		bot:     bot,
		log:     log,
		trk:     trk,
		clk:     clk,
		ownerID: ownerID,
	}
}

// SetTicker wires the scheduler in after construction (the scheduler itself
// needs the router as its Sender).
func (r *Router) SetTicker(t Ticker) { r.ticker = t }

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		if msg.From == nil {
			return
		}

		if msg.IsCommand() {
			r.handleCommand(ctx, msg)
			return
		}

		text := strings.TrimSpace(msg.Text)
		switch text {
		case btnReport:
			r.handleReport(ctx, msg.From, msg.Chat.ID, "")
		case btnTimezone:
			r.handleTimezoneInfo(ctx, msg.From.ID, msg.Chat.ID)
		case btnPollWindow:
			r.handlePollWindowInfo(ctx, msg.From.ID, msg.Chat.ID)
		case btnReportTime:
			r.handleReportTimeInfo(ctx, msg.From.ID, msg.Chat.ID)
		case btnHelp:
			r.handleHelp(msg.Chat.ID)
		case btnHideKeyboard:
			r.handleHideKeyboard(msg.Chat.ID)
		case "":
			// Non-text message, nothing to log.
		default:
			r.handleFreeForm(ctx, msg.From, msg.Chat.ID, text)
		}
		return
	}

	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (r *Router) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		r.handleStart(ctx, msg.From, msg.Chat.ID)
	case "help":
		r.handleHelp(msg.Chat.ID)
	case "report":
		date := ""
		if len(args) > 0 {
			date = args[0]
		}
		r.handleReport(ctx, msg.From, msg.Chat.ID, date)
	case "set_timezone":
		r.handleSetTimezone(ctx, msg.From, msg.Chat.ID, args)
	case "set_poll_window":
		r.handleSetPollWindow(ctx, msg.From, msg.Chat.ID, args)
	case "set_report_time":
		r.handleSetReportTime(ctx, msg.From, msg.Chat.ID, args)
	case "hide_keyboard":
		r.handleHideKeyboard(msg.Chat.ID)
	case "asknow":
		r.handleAskNow(ctx, msg.From.ID, msg.Chat.ID)
	default:
		r.sendText(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID

	switch {
	case data == "report:cancel":
		_ = r.answerCallback(cb.ID, "")
		r.editText(chatID, cb.Message.MessageID, "OK, report selection cancelled.")
	case strings.HasPrefix(data, "report:"):
		_ = r.answerCallback(cb.ID, "")
		r.showEditableReport(ctx, userID, chatID, strings.TrimPrefix(data, "report:"))
	case data == "edit:cancel":
		_ = r.answerCallback(cb.ID, "")
		if err := r.trk.CancelEdit(ctx, userID); err != nil {
			r.log.Error("CancelEdit failed", zap.Error(err), zap.Int64("userID", userID))
		}
		r.editText(chatID, cb.Message.MessageID, "OK, activity list closed.")
	case strings.HasPrefix(data, "edit:"):
		r.handleEditCallback(ctx, cb, strings.TrimPrefix(data, "edit:"))
	case strings.HasPrefix(data, "download:"):
		_ = r.answerCallback(cb.ID, "Preparing your report file…")
		r.sendReportDocument(ctx, userID, chatID, strings.TrimPrefix(data, "download:"))
	default:
		// Unknown callback — ignore silently
		_ = r.answerCallback(cb.ID, "")
	}
}

// --- Sender implementation (scheduler outbound) ---

// SendPrompt sends the activity question to the user's chat.
func (r *Router) SendPrompt(ctx context.Context, userID int64) error {
	return r.send(ctx, tgbotapi.NewMessage(userID, promptText))
}

// SendReport sends the rendered report text and, when attachment is
// non-nil, the .txt export as a document.
func (r *Router) SendReport(ctx context.Context, userID int64, text string, attachment []byte, filename string) error {
	if err := r.send(ctx, tgbotapi.NewMessage(userID, text)); err != nil {
		return err
	}
	if attachment == nil {
		return nil
	}
	doc := tgbotapi.NewDocument(userID, tgbotapi.FileBytes{Name: filename, Bytes: attachment})
	doc.Caption = "Your daily activity report."
	return r.send(ctx, doc)
}

// send honors ctx cancellation around the blocking bot API call, so one
// stalled delivery cannot hold a scheduler worker past its timeout.
func (r *Router) send(ctx context.Context, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := r.bot.Send(c)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Small helpers ---

func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) editText(chatID int64, messageID int, text string) {
	if _, err := r.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		// The original message may have been deleted; fall back to a new one.
		r.sendText(chatID, text)
	}
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}
