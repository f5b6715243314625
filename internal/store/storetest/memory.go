// Package storetest содержит хранилище в памяти для тестов сервисов и бота.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Vada521/englishai/internal/store"
	"github.com/Vada521/englishai/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store реализует store.Store в памяти
type Store struct {
	mu      sync.Mutex
	users   map[int64]*models.User
	plans   []*models.LearningPlan
	results []models.TestResult
	nextID  int64
	now     func() time.Time

	// PingErr возвращается из Ping
	PingErr error
}

// New создает пустое хранилище
func New() *Store {
	return &Store{
		users: make(map[int64]*models.User),
		now:   time.Now,
	}
}

// SetNow подменяет часы хранилища
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) User() store.UserRepository             { return userRepo{s} }
func (s *Store) Plan() store.PlanRepository             { return planRepo{s} }
func (s *Store) TestResult() store.TestResultRepository { return resultRepo{s} }
func (s *Store) DB() *pgxpool.Pool                      { return nil }
func (s *Store) Ping(context.Context) error             { return s.PingErr }
func (s *Store) Close() error                           { return nil }

// Plans возвращает копии всех сохраненных планов пользователя в порядке создания
func (s *Store) Plans(userID int64) []models.LearningPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LearningPlan
	for _, p := range s.plans {
		if p.UserID == userID {
			out = append(out, clonePlan(p))
		}
	}
	return out
}

// PutUser кладет пользователя в хранилище как есть
func (s *Store) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.TelegramID] = &cp
}

func notFound(id int64) error {
	return fmt.Errorf("пользователь с ID %d не найден: %w", id, store.ErrNotFound)
}

func clonePlan(p *models.LearningPlan) models.LearningPlan {
	// копия через JSON, чтобы не делить срезы тем
	raw, _ := json.Marshal(p)
	var cp models.LearningPlan
	_ = json.Unmarshal(raw, &cp)
	cp.ID, cp.UserID, cp.CreatedAt = p.ID, p.UserID, p.CreatedAt
	return cp
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	if u.LearningPlan != nil {
		plan := clonePlan(u.LearningPlan)
		cp.LearningPlan = &plan
	}
	return &cp
}

type userRepo struct{ s *Store }

func (r userRepo) Upsert(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	existing, ok := r.s.users[user.TelegramID]
	if !ok {
		existing = &models.User{TelegramID: user.TelegramID, CreatedAt: now}
		r.s.users[user.TelegramID] = existing
	}
	existing.Username = user.Username
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	existing.LastActivity = now
	existing.UpdatedAt = now

	*user = *cloneUser(existing)
	return nil
}

func (r userRepo) Register(_ context.Context, telegramID int64, name, phone string) error {
	return r.update(telegramID, func(u *models.User) {
		u.Name = name
		u.Phone = phone
	})
}

func (r userRepo) GetByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[telegramID]
	if !ok {
		return nil, notFound(telegramID)
	}
	return cloneUser(u), nil
}

func (r userRepo) UpdateTestResult(_ context.Context, telegramID int64, level models.Level, score int) error {
	return r.update(telegramID, func(u *models.User) {
		u.Level = level
		u.TestScore = score
		u.HasCompletedTest = true
	})
}

func (r userRepo) UpdateLevel(_ context.Context, telegramID int64, level models.Level) error {
	return r.update(telegramID, func(u *models.User) { u.Level = level })
}

func (r userRepo) Touch(_ context.Context, telegramID int64) error {
	return r.update(telegramID, func(*models.User) {})
}

func (r userRepo) Delete(_ context.Context, telegramID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[telegramID]; !ok {
		return notFound(telegramID)
	}
	delete(r.s.users, telegramID)

	plans := r.s.plans[:0]
	for _, p := range r.s.plans {
		if p.UserID != telegramID {
			plans = append(plans, p)
		}
	}
	r.s.plans = plans

	results := r.s.results[:0]
	for _, res := range r.s.results {
		if res.UserID != telegramID {
			results = append(results, res)
		}
	}
	r.s.results = results
	return nil
}

func (r userRepo) GetInactive(_ context.Context, from, to time.Time) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.User
	for _, u := range r.s.users {
		if u.HasCompletedTest && !u.LastActivity.Before(from) && u.LastActivity.Before(to) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.Before(out[j].LastActivity) })
	return out, nil
}

func (r userRepo) update(telegramID int64, fn func(u *models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[telegramID]
	if !ok {
		return notFound(telegramID)
	}
	fn(u)
	u.LastActivity = r.s.now()
	u.UpdatedAt = u.LastActivity
	return nil
}

type planRepo struct{ s *Store }

func (r planRepo) Create(_ context.Context, plan *models.LearningPlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[plan.UserID]
	if !ok {
		return notFound(plan.UserID)
	}

	r.s.nextID++
	plan.ID = r.s.nextID
	plan.CreatedAt = r.s.now()

	stored := clonePlan(plan)
	r.s.plans = append(r.s.plans, &stored)
	mirror := clonePlan(plan)
	u.LearningPlan = &mirror
	return nil
}

func (r planRepo) GetLatest(_ context.Context, userID int64) (*models.LearningPlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i := len(r.s.plans) - 1; i >= 0; i-- {
		if r.s.plans[i].UserID == userID {
			cp := clonePlan(r.s.plans[i])
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("учебный план пользователя %d не найден: %w", userID, store.ErrNotFound)
}

func (r planRepo) UpdateTopics(_ context.Context, plan *models.LearningPlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.plans {
		if p.ID == plan.ID && p.UserID == plan.UserID {
			updated := clonePlan(plan)
			p.Topics = updated.Topics
			if u, ok := r.s.users[plan.UserID]; ok {
				mirror := clonePlan(plan)
				u.LearningPlan = &mirror
			}
			return nil
		}
	}
	return fmt.Errorf("учебный план %d не найден: %w", plan.ID, store.ErrNotFound)
}

func (r planRepo) superseded(userID int64, keep int) ([]int64, error) {
	if keep < 1 {
		return nil, fmt.Errorf("нужно сохранить хотя бы один план, получено %d", keep)
	}

	seen := make(map[int64]int)
	var ids []int64
	for i := len(r.s.plans) - 1; i >= 0; i-- {
		p := r.s.plans[i]
		if userID != 0 && p.UserID != userID {
			continue
		}
		seen[p.UserID]++
		if seen[p.UserID] > keep {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (r planRepo) CountSuperseded(_ context.Context, userID int64, keep int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids, err := r.superseded(userID, keep)
	return int64(len(ids)), err
}

func (r planRepo) DeleteSuperseded(_ context.Context, userID int64, keep int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids, err := r.superseded(userID, keep)
	if err != nil {
		return 0, err
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	plans := r.s.plans[:0]
	for _, p := range r.s.plans {
		if !drop[p.ID] {
			plans = append(plans, p)
		}
	}
	r.s.plans = plans
	return int64(len(ids)), nil
}

type resultRepo struct{ s *Store }

func (r resultRepo) Create(_ context.Context, result *models.TestResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[result.UserID]; !ok {
		return notFound(result.UserID)
	}
	r.s.nextID++
	result.ID = r.s.nextID
	result.CreatedAt = r.s.now()
	r.s.results = append(r.s.results, *result)
	return nil
}

func (r resultRepo) ListByUser(_ context.Context, userID int64, limit int) ([]models.TestResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.TestResult
	for i := len(r.s.results) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.results[i].UserID == userID {
			out = append(out, r.s.results[i])
		}
	}
	return out, nil
}
