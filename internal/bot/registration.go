package bot

import (
	"context"
	"errors"

	"github.com/Vada521/englishai/internal/session"
	"github.com/Vada521/englishai/internal/user"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// startRegistration начинает регистрацию с вопроса об имени
func (h *Handler) startRegistration(r *request) error {
	r.sess.Reset()
	r.sess.Stage = session.StageRegistrationName
	h.logger.Info("начата регистрация", zap.Int64("user_id", r.from.ID))
	return h.send(r.chatID, h.messages.Welcome(), tgbotapi.NewRemoveKeyboard(true))
}

// handleName принимает имя и запрашивает телефон
func (h *Handler) handleName(r *request, text string) error {
	name, err := user.NormalizeName(sanitizeText(text))
	if err != nil {
		h.logger.Debug("некорректное имя", zap.Int64("user_id", r.from.ID), zap.Error(err))
		return h.send(r.chatID, h.messages.InvalidName(), nil)
	}

	r.sess.Name = name
	r.sess.Stage = session.StageRegistrationPhone
	return h.send(r.chatID, h.messages.AskPhone(name), phoneKeyboard())
}

// handlePhone принимает телефон контактом или текстом и завершает регистрацию
func (h *Handler) handlePhone(ctx context.Context, r *request, msg *tgbotapi.Message) error {
	raw, source := msg.Text, "text"
	if c := msg.Contact; c != nil {
		if c.UserID != 0 && c.UserID != r.from.ID {
			return h.send(r.chatID, h.messages.ForeignContact(), phoneKeyboard())
		}
		raw, source = c.PhoneNumber, "contact"
	}

	phone, err := user.NormalizePhone(raw)
	if err != nil {
		h.logger.Debug("некорректный телефон", zap.Int64("user_id", r.from.ID), zap.Error(err))
		return h.send(r.chatID, h.messages.InvalidPhone(), phoneKeyboard())
	}

	// Сессия могла истечь между шагами
	if r.sess.Name == "" {
		return h.startRegistration(r)
	}

	if err := h.users.Register(ctx, r.from.ID, r.sess.Name, phone); err != nil {
		if errors.Is(err, user.ErrInvalidName) {
			return h.startRegistration(r)
		}
		return err
	}
	h.metrics.RecordRegistration(source)

	r.user.Name, r.user.Phone = r.sess.Name, phone
	r.sess.Reset()

	if err := h.send(r.chatID, h.messages.Registered(), tgbotapi.NewRemoveKeyboard(true)); err != nil {
		return err
	}
	return h.send(r.chatID, h.messages.Menu(r.user), menuKeyboard(r.user))
}
