package bot

import (
	"context"

	"github.com/Vada521/englishai/pkg/models"

	"go.uber.org/zap"
)

// selectLevel сохраняет уровень, выбранный вручную
func (h *Handler) selectLevel(ctx context.Context, r *request, code string) error {
	level, ok := models.ParseLevel(code)
	if !ok {
		return h.sendStale(r)
	}

	if err := h.users.SetLevel(ctx, r.from.ID, level); err != nil {
		return err
	}
	r.user.Level = level
	r.sess.Reset()
	r.sess.Analysis = nil

	h.logger.Info("уровень выбран вручную", zap.Int64("user_id", r.from.ID), zap.String("level", string(level)))
	return h.send(r.chatID, h.messages.LevelSelected(level), levelSelectedKeyboard())
}

func (h *Handler) showProfile(ctx context.Context, r *request) error {
	profile, err := h.users.Profile(ctx, r.from.ID)
	if err != nil {
		return err
	}
	return h.send(r.chatID, h.messages.Profile(profile), profileKeyboard())
}
