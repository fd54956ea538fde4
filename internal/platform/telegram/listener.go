package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/event"
)

// Sink receives translated events, normally the dispatcher.
type Sink interface {
	Dispatch(evt *event.Event)
}

// Listener translates Telegram updates into events. Translation is pure;
// all decisions happen behind the sink.
type Listener struct {
	sink   Sink
	logger *zap.Logger
}

// NewListener creates an update listener feeding the sink.
func NewListener(sink Sink, logger *zap.Logger) *Listener {
	return &Listener{
		sink:   sink,
		logger: logger.Named("listener"),
	}
}

// Register attaches the listener to the bot's update stream.
func (l *Listener) Register(b *bot.Bot) {
	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, l.onMessage)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.CallbackQuery != nil
	}, l.onCallback)
}

// onMessage splits one message update into join, leave and content
// events. Group chats only; private chats carry no moderation state.
func (l *Listener) onMessage(_ context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.Chat.Type != models.ChatTypeGroup && msg.Chat.Type != models.ChatTypeSupergroup {
		return
	}

	groupID := msg.Chat.ID

	for _, member := range msg.NewChatMembers {
		if member.IsBot {
			continue
		}

		l.sink.Dispatch(&event.Event{
			Kind:    event.KindJoin,
			GroupID: groupID,
			UserID:  member.ID,
		})
	}

	if msg.LeftChatMember != nil {
		l.sink.Dispatch(&event.Event{
			Kind:    event.KindLeave,
			GroupID: groupID,
			UserID:  msg.LeftChatMember.ID,
		})

		return
	}

	if len(msg.NewChatMembers) > 0 || msg.From == nil {
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	l.sink.Dispatch(&event.Event{
		Kind:        event.KindMessage,
		GroupID:     groupID,
		UserID:      msg.From.ID,
		MessageID:   int64(msg.ID),
		Text:        text,
		ContentTags: contentTags(msg),
	})
}

// onCallback forwards the raw callback data; decoding happens once at
// the dispatcher boundary. The query is acknowledged here so Telegram
// stops the client spinner regardless of the outcome.
func (l *Listener) onCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	query := update.CallbackQuery

	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		l.logger.Debug("Failed to answer callback query", zap.Error(err))
	}

	var groupID int64
	if query.Message.Message != nil {
		groupID = query.Message.Message.Chat.ID
	}

	l.sink.Dispatch(&event.Event{
		Kind:       event.KindCallback,
		GroupID:    groupID,
		UserID:     query.From.ID,
		CallbackID: query.ID,
		Payload:    []byte(query.Data),
	})
}

// contentTags derives the content-type tags for the lock stage.
func contentTags(msg *models.Message) []enum.ContentType {
	var tags []enum.ContentType

	if msg.Text != "" {
		tags = append(tags, enum.ContentTypeText)
	}

	if len(msg.Photo) > 0 {
		tags = append(tags, enum.ContentTypePhoto)
	}

	if msg.Video != nil {
		tags = append(tags, enum.ContentTypeVideo)
	}

	if msg.Audio != nil {
		tags = append(tags, enum.ContentTypeAudio)
	}

	if msg.Voice != nil {
		tags = append(tags, enum.ContentTypeVoice)
	}

	if msg.Document != nil {
		tags = append(tags, enum.ContentTypeDocument)
	}

	if msg.Sticker != nil {
		tags = append(tags, enum.ContentTypeSticker)
	}

	if msg.Animation != nil {
		tags = append(tags, enum.ContentTypeGif)
	}

	if msg.ForwardOrigin != nil {
		tags = append(tags, enum.ContentTypeForward)
	}

	if msg.Game != nil {
		tags = append(tags, enum.ContentTypeGame)
	}

	if msg.Location != nil {
		tags = append(tags, enum.ContentTypeLocation)
	}

	if msg.Contact != nil {
		tags = append(tags, enum.ContentTypeContact)
	}

	if msg.Poll != nil {
		tags = append(tags, enum.ContentTypePoll)
	}

	if msg.ViaBot != nil {
		tags = append(tags, enum.ContentTypeInline)
	}

	for _, entity := range msg.Entities {
		if entity.Type == models.MessageEntityTypeURL || entity.Type == models.MessageEntityTypeTextLink {
			tags = append(tags, enum.ContentTypeURL)
			break
		}
	}

	return tags
}
