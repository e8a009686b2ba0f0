package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Reply keyboard button labels; the router matches on these verbatim.
const (
	btnReport       = "📊 Activity Report"
	btnTimezone     = "🌐 Set Timezone"
	btnPollWindow   = "⏰ Set Poll Window"
	btnReportTime   = "🗓️ Set Report Time"
	btnHelp         = "❓ Help / Show Menu"
	btnHideKeyboard = "⌨️ Hide Keyboard"
)

const (
	promptText = "🤔 What are you doing right now?"

	startText = "Hello! 👋 I'm your personal time & activity tracker.\n\n" +
		"I'll check in periodically to ask what you're up to. Just reply!\n" +
		"Every morning you get a report of the previous day.\n\n" +
		"Use the menu below or type /help for commands."

	timezonePromptText = "⚠️ Action needed: set your timezone!\n\n" +
		"This lets me send prompts and reports at your local time.\n" +
		"Use: /set_timezone Your/Timezone (e.g. /set_timezone Asia/Almaty)"

	helpText = "➡️ I'll ask what you're doing. Just reply and it gets logged.\n" +
		"➡️ Plain messages are logged too, any time.\n\n" +
		"Commands:\n" +
		"/report [YYYY-MM-DD] — activity report, editable\n" +
		"/set_timezone <IANA name> — e.g. Asia/Almaty\n" +
		"/set_poll_window <start> <end> — polling hours, end exclusive\n" +
		"/set_report_time <hour> — daily report hour (0-23)\n" +
		"/hide_keyboard — hide menu buttons\n" +
		"/help — this summary"

	editPromptText = "Okay, send the new description for that activity:"
)

// mainMenuKeyboard is the persistent reply keyboard shown after /start and /help.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnReport),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnTimezone),
			tgbotapi.NewKeyboardButton(btnPollWindow),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnReportTime),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnHideKeyboard),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// reportDateKeyboard offers today/yesterday for /report without a date.
func reportDateKeyboard(today, yesterday string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Today", "report:"+today),
			tgbotapi.NewInlineKeyboardButtonData("Yesterday", "report:"+yesterday),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "report:cancel"),
		),
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
