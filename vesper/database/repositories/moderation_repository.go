package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// PhraseRuleRepository stores auto-moderation phrase rules. Rules with an
// empty guild id are global and apply to every guild.
type PhraseRuleRepository interface {
	ListForGuild(ctx context.Context, kind, guildID string) ([]*models.PhraseRule, error)
	Add(ctx context.Context, rule *models.PhraseRule) error
	Remove(ctx context.Context, kind, guildID, phrase string) (bool, error)
}

type phraseRuleRepository struct {
	db *bun.DB
}

func NewPhraseRuleRepository(db *bun.DB) PhraseRuleRepository {
	return &phraseRuleRepository{db: db}
}

func (r *phraseRuleRepository) ListForGuild(ctx context.Context, kind, guildID string) ([]*models.PhraseRule, error) {
	var rules []*models.PhraseRule
	err := r.db.NewSelect().
		Model(&rules).
		Where("kind = ?", kind).
		Where("guild_id = ? OR guild_id = ''", guildID).
		Scan(ctx)
	return rules, err
}

func (r *phraseRuleRepository) Add(ctx context.Context, rule *models.PhraseRule) error {
	_, err := r.db.NewInsert().Model(rule).Exec(ctx)
	return err
}

func (r *phraseRuleRepository) Remove(ctx context.Context, kind, guildID, phrase string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.PhraseRule)(nil)).
		Where("kind = ?", kind).
		Where("guild_id = ?", guildID).
		Where("phrase = ?", phrase).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MuteScheduleRepository persists pending unmutes across restarts.
type MuteScheduleRepository interface {
	List(ctx context.Context) ([]*models.MuteSchedule, error)
	Add(ctx context.Context, schedule *models.MuteSchedule) error
	Remove(ctx context.Context, guildID, userID string) error
}

type muteScheduleRepository struct {
	db *bun.DB
}

func NewMuteScheduleRepository(db *bun.DB) MuteScheduleRepository {
	return &muteScheduleRepository{db: db}
}

func (r *muteScheduleRepository) List(ctx context.Context) ([]*models.MuteSchedule, error) {
	var schedules []*models.MuteSchedule
	err := r.db.NewSelect().
		Model(&schedules).
		Order("unmute_at ASC").
		Scan(ctx)
	return schedules, err
}

func (r *muteScheduleRepository) Add(ctx context.Context, schedule *models.MuteSchedule) error {
	// One pending unmute per member; a new mute replaces the old timer.
	if err := r.Remove(ctx, schedule.GuildID, schedule.UserID); err != nil {
		return err
	}
	_, err := r.db.NewInsert().Model(schedule).Exec(ctx)
	return err
}

func (r *muteScheduleRepository) Remove(ctx context.Context, guildID, userID string) error {
	_, err := r.db.NewDelete().
		Model((*models.MuteSchedule)(nil)).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}
