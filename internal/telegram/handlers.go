package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/asdmr/chronor/internal/domain"
)

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, from *tgbotapi.User, chatID int64) {
	u, err := r.trk.Ensure(ctx, from.ID, from.UserName, from.FirstName)
	if err != nil {
		r.log.Error("Ensure failed", zap.Error(err), zap.Int64("userID", from.ID))
		r.sendText(chatID, "Profile initialization error. Please try again later.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
		return
	}

	if u.TZ == "" || u.TZ == "UTC" {
		r.sendText(chatID, timezonePromptText)
	}
}

func (r *Router) handleHelp(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, helpText)
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) handleHideKeyboard(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "OK, keyboard hidden. Use /start or /help to bring it back.")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

// handleAskNow manually triggers a scheduling pass. Owner only.
func (r *Router) handleAskNow(ctx context.Context, userID, chatID int64) {
	if r.ownerID == 0 {
		r.sendText(chatID, "Sorry, owner ID not configured.")
		return
	}
	if userID != r.ownerID {
		r.log.Warn("non-owner tried /asknow", zap.Int64("userID", userID))
		r.sendText(chatID, "Restricted command.")
		return
	}
	if r.ticker == nil {
		r.sendText(chatID, "Scheduler not running.")
		return
	}
	r.ticker.Tick(ctx, r.clk.Now())
	r.sendText(chatID, "Manual scheduling pass initiated.")
}

// --- Free-form text: activity log or edit submission ---

func (r *Router) handleFreeForm(ctx context.Context, from *tgbotapi.User, chatID int64, text string) {
	reply, err := r.trk.HandleReply(ctx, from.ID, from.UserName, from.FirstName, text)
	if err != nil {
		r.log.Error("HandleReply failed", zap.Error(err), zap.Int64("userID", from.ID))
		if errors.Is(err, domain.ErrNotFound) {
			r.sendText(chatID, "😕 I lost track of that activity. Start the edit again via /report.")
			return
		}
		r.sendText(chatID, "😥 Sorry, I couldn't save that. Please try again.")
		return
	}
	if reply.Edited {
		r.sendText(chatID, "✅ Activity updated!")
		return
	}
	r.sendText(chatID, fmt.Sprintf("✅ Got it! Logged: %q.", reply.Activity.Description))
}

// --- Report flow ---

func (r *Router) handleReport(ctx context.Context, from *tgbotapi.User, chatID int64, dateArg string) {
	if _, err := r.trk.Ensure(ctx, from.ID, from.UserName, from.FirstName); err != nil {
		r.log.Error("Ensure failed", zap.Error(err), zap.Int64("userID", from.ID))
		r.sendText(chatID, "Error reading your settings.")
		return
	}

	if dateArg != "" {
		date, err := domain.ParseLocalDate(dateArg)
		if err != nil {
			r.sendText(chatID, "Invalid date format. Please use YYYY-MM-DD.")
			return
		}
		r.showEditableReport(ctx, from.ID, chatID, string(date))
		return
	}

	today, err := r.trk.LocalToday(ctx, from.ID)
	if err != nil {
		r.log.Error("LocalToday failed", zap.Error(err), zap.Int64("userID", from.ID))
		r.sendText(chatID, "Error reading your settings.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, "🗓️ Select report period:")
	msg.ReplyMarkup = reportDateKeyboard(string(today), string(today.AddDays(-1)))
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

// showEditableReport lists a day's activities with per-entry edit buttons.
func (r *Router) showEditableReport(ctx context.Context, userID, chatID int64, dateStr string) {
	date, err := domain.ParseLocalDate(dateStr)
	if err != nil {
		r.sendText(chatID, "Invalid date format. Please use YYYY-MM-DD.")
		return
	}

	rep, err := r.trk.BuildReport(ctx, userID, date)
	if err != nil {
		r.log.Error("BuildReport failed", zap.Error(err), zap.Int64("userID", userID))
		r.sendText(chatID, "😥 Sorry, I couldn't build the report.")
		return
	}
	if rep.Empty() {
		r.sendText(chatID, rep.Render())
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, e := range rep.Entries {
		label := fmt.Sprintf("✏️ %s", truncate(e.Activity.Description, 40))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "edit:"+e.Activity.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬇️ Download .txt", "download:"+string(date)),
		tgbotapi.NewInlineKeyboardButtonData("Cancel", "edit:cancel"),
	))

	msg := tgbotapi.NewMessage(chatID, rep.Render()+"\n\nClick ✏️ to edit an entry.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Error("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) handleEditCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, activityID string) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	if err := r.trk.StartEdit(ctx, userID, activityID); err != nil {
		_ = r.answerCallback(cb.ID, "")
		if errors.Is(err, domain.ErrNotFound) {
			r.editText(chatID, cb.Message.MessageID, "That activity no longer exists.")
			return
		}
		r.log.Error("StartEdit failed", zap.Error(err), zap.Int64("userID", userID))
		r.editText(chatID, cb.Message.MessageID, "Sorry, an error occurred.")
		return
	}
	_ = r.answerCallback(cb.ID, "")
	r.editText(chatID, cb.Message.MessageID, editPromptText)
}

func (r *Router) sendReportDocument(ctx context.Context, userID, chatID int64, dateStr string) {
	date, err := domain.ParseLocalDate(dateStr)
	if err != nil {
		r.sendText(chatID, "Error: invalid report date.")
		return
	}
	rep, err := r.trk.BuildReport(ctx, userID, date)
	if err != nil {
		r.log.Error("BuildReport failed", zap.Error(err), zap.Int64("userID", userID))
		r.sendText(chatID, "😥 Sorry, I couldn't send the report file.")
		return
	}
	if rep.Empty() {
		r.sendText(chatID, rep.Render())
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: rep.Filename(), Bytes: rep.Export()})
	doc.Caption = fmt.Sprintf("Here's your activity report for %s.", date)
	if _, err := r.bot.Send(doc); err != nil {
		r.log.Error("document send failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "😥 Sorry, I couldn't send the report file.")
	}
}

// --- Settings ---

func (r *Router) handleSetTimezone(ctx context.Context, from *tgbotapi.User, chatID int64, args []string) {
	if len(args) != 1 {
		r.sendText(chatID, "Usage: /set_timezone <IANA name>, e.g. /set_timezone Asia/Almaty")
		return
	}
	if _, err := r.trk.Ensure(ctx, from.ID, from.UserName, from.FirstName); err != nil {
		r.sendText(chatID, "😥 Failed to save setting.")
		return
	}
	if err := r.trk.SetTimezone(ctx, from.ID, args[0]); err != nil {
		if errors.Is(err, domain.ErrBadTimezone) {
			r.sendText(chatID, fmt.Sprintf("Unknown timezone %q. Example: Asia/Almaty", args[0]))
			return
		}
		r.log.Error("SetTimezone failed", zap.Error(err), zap.Int64("userID", from.ID))
		r.sendText(chatID, "😥 Failed to save setting.")
		return
	}
	r.sendText(chatID, "👍 Timezone set to: "+args[0])
}

func (r *Router) handleSetPollWindow(ctx context.Context, from *tgbotapi.User, chatID int64, args []string) {
	usage := "Usage: /set_poll_window <start> <end>, hours 0-23, end exclusive. Example: /set_poll_window 9 18"
	if len(args) != 2 {
		r.sendText(chatID, usage)
		return
	}
	start, err1 := strconv.Atoi(args[0])
	end, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		r.sendText(chatID, usage)
		return
	}
	if _, err := r.trk.Ensure(ctx, from.ID, from.UserName, from.FirstName); err != nil {
		r.sendText(chatID, "😥 Failed to save setting.")
		return
	}
	if err := r.trk.SetPollWindow(ctx, from.ID, start, end); err != nil {
		if errors.Is(err, domain.ErrInvalidWindow) {
			r.sendText(chatID, "Invalid window: hours must be 0-23 with start before end.\n"+usage)
			return
		}
		r.log.Error("SetPollWindow failed", zap.Error(err), zap.Int64("userID", from.ID))
		r.sendText(chatID, "😥 Failed to save setting.")
		return
	}
	r.sendText(chatID, fmt.Sprintf("✅ Poll window set: %s – %s.",
		domain.FormatHour(start), domain.FormatHour(end)))
}

func (r *Router) handleSetReportTime(ctx context.Context, from *tgbotapi.User, chatID int64, args []string) {
	usage := "Usage: /set_report_time <hour>, 0-23. Example: /set_report_time 8"
	if len(args) != 1 {
		r.sendText(chatID, usage)
		return
	}
	hour, err := strconv.Atoi(args[0])
	if err != nil {
		r.sendText(chatID, usage)
		return
	}
	if _, err := r.trk.Ensure(ctx, from.ID, from.UserName, from.FirstName); err != nil {
		r.sendText(chatID, "😥 Failed to save setting.")
		return
	}
	if err := r.trk.SetReportHour(ctx, from.ID, hour); err != nil {
		if errors.Is(err, domain.ErrBadHour) {
			r.sendText(chatID, "Hour must be between 0 and 23.\n"+usage)
			return
		}
		r.log.Error("SetReportHour failed", zap.Error(err), zap.Int64("userID", from.ID))
		r.sendText(chatID, "😥 Failed to save setting.")
		return
	}
	r.sendText(chatID, fmt.Sprintf("✅ Daily report will be sent around %s local time.", domain.FormatHour(hour)))
}

// --- Settings info (reply keyboard buttons) ---

func (r *Router) handleTimezoneInfo(ctx context.Context, userID, chatID int64) {
	u, err := r.trk.Ensure(ctx, userID, "", "")
	if err != nil {
		r.sendText(chatID, "Error reading your settings.")
		return
	}
	r.sendText(chatID, fmt.Sprintf(
		"Your current timezone: %s\n\nTo change it: /set_timezone <IANA name>, e.g. /set_timezone Asia/Almaty",
		u.TZ))
}

func (r *Router) handlePollWindowInfo(ctx context.Context, userID, chatID int64) {
	u, err := r.trk.Ensure(ctx, userID, "", "")
	if err != nil {
		r.sendText(chatID, "Error reading your settings.")
		return
	}
	r.sendText(chatID, fmt.Sprintf(
		"Your polling window: %s – %s local time, every %d minutes.\n\nTo change it: /set_poll_window <start> <end>",
		domain.FormatHour(u.PollStartHour), domain.FormatHour(u.PollEndHour), u.PollIntervalMin))
}

func (r *Router) handleReportTimeInfo(ctx context.Context, userID, chatID int64) {
	u, err := r.trk.Ensure(ctx, userID, "", "")
	if err != nil {
		r.sendText(chatID, "Error reading your settings.")
		return
	}
	r.sendText(chatID, fmt.Sprintf(
		"Your daily report is scheduled around %s local time.\n\nTo change it: /set_report_time <hour>",
		domain.FormatHour(u.ReportHour)))
}
