package bot

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"ledgerbot/internal/log"
	"ledgerbot/internal/nlp"
)

const startReply = `👋 嗨!我是你的記帳助手,直接用說的就可以:
- 記帳:「拉麵 150」
- 查詢:「這個月花了多少」「3月5日花了多少」「本月各分類花費」
- 修改:「刪除記錄 12」「把剛剛那筆改成交通」「把記錄 12 改成 200 元」
- 提醒:「餐費超過 3000 提醒我」
- 分類:「新增分類 寵物」`

const (
	parseErrorReply   = "🤔 我看不懂這句話,試試像「拉麵 150」這樣記帳,或「這個月花了多少」這樣查詢"
	serviceErrorReply = "😵 服務暫時無法使用,請稍後再試"
	internalErrReply  = "❌ 系統發生錯誤,請稍後再試"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleMessage(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.send(ctx, msg.Chat.ID, startReply)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	requestID := uuid.NewString()
	logger := b.logger.With(
		log.FieldRequestID, requestID,
		log.FieldUserID, userID)

	b.lockUser(userID)
	defer b.unlockUser(userID)

	start := time.Now()
	logger.InfoContext(ctx, "Message received", "text_len", len(msg.Text))

	cmd, err := b.resolver.Resolve(ctx, msg.Text)
	if err != nil {
		switch {
		case nlp.IsParseError(err):
			logger.WarnContext(ctx, "Utterance not understood", log.FieldError, err.Error())
			b.send(ctx, msg.Chat.ID, parseErrorReply)
		case nlp.IsServiceError(err):
			logger.ErrorContext(ctx, "Language service unavailable", log.FieldError, err.Error())
			b.send(ctx, msg.Chat.ID, serviceErrorReply)
		default:
			logger.ErrorContext(ctx, "Resolver failed", log.FieldError, err.Error())
			b.send(ctx, msg.Chat.ID, internalErrReply)
		}
		return
	}

	reply, err := b.dispatcher.Dispatch(ctx, userID, cmd)
	if err != nil {
		logger.ErrorContext(ctx, "Command failed",
			log.FieldIntent, string(cmd.Intent),
			log.FieldError, err.Error())
		b.send(ctx, msg.Chat.ID, internalErrReply)
		return
	}

	if reply.Text != "" {
		b.send(ctx, msg.Chat.ID, reply.Text)
	}
	if len(reply.ChartPNG) > 0 {
		b.sendPhoto(ctx, msg.Chat.ID, reply.ChartPNG)
	}

	logger.InfoContext(ctx, "Message handled",
		log.FieldIntent, string(cmd.Intent),
		log.FieldDuration, time.Since(start).Milliseconds())
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.ErrorContext(ctx, "Failed to send reply",
			"chat_id", chatID, log.FieldError, err.Error())
	}
}

func (b *Bot) sendPhoto(ctx context.Context, chatID int64, png []byte) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: png,
	})
	if _, err := b.api.Send(photo); err != nil {
		b.logger.ErrorContext(ctx, "Failed to send chart",
			"chat_id", chatID, log.FieldError, err.Error())
	}
}
