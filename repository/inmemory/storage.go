package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Storage keeps users, verification tokens and tasks in process memory.
// Ids are ObjectID hex strings so they pass the same validation as the
// document-store backend.
type Storage struct {
	mu       sync.RWMutex
	users    map[string]models.User
	tokens   map[string]models.VerificationToken
	tasks    map[string]models.Task
	tokenTTL time.Duration
	now      func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		users:    make(map[string]models.User),
		tokens:   make(map[string]models.VerificationToken),
		tasks:    make(map[string]models.Task),
		tokenTTL: models.VerificationTokenTTL,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for token expiry.
func (s *Storage) WithClock(now func() time.Time) *Storage {
	s.now = now
	return s
}

func (s *Storage) Ping(_ context.Context) error { return nil }

func validID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

func (s *Storage) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, errors.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *Storage) GetUserIdentity(ctx context.Context, id string) (*models.Identity, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.Identity{
		ID:              user.ID,
		Name:            user.Name,
		Email:           user.Email,
		Role:            user.Role,
		PaginationLimit: user.PaginationLimit,
	}, nil
}

func (s *Storage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return cloneUser(user), nil
		}
	}
	return nil, errors.ErrUserNotFound
}

func (s *Storage) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existingUser := range s.users {
		if strings.EqualFold(existingUser.Email, user.Email) {
			return errors.ErrUserAlreadyExists
		}
	}
	user.ID = primitive.NewObjectID().Hex()
	s.users[user.ID] = *cloneUser(*user)
	return nil
}

func (s *Storage) SetUserVerified(_ context.Context, id string) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[id]
	if !exists {
		return errors.ErrUserNotFound
	}
	if user.IsVerified {
		return errors.ErrUserAlreadyVerified
	}
	user.IsVerified = true
	s.users[id] = user
	return nil
}

func (s *Storage) UpdateUserDetails(_ context.Context, id string, update models.UserDetailsUpdate) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[id]
	if !exists {
		return errors.ErrNoEffect
	}
	before := *cloneUser(user)
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Mobile != nil {
		user.Mobile = *update.Mobile
	}
	if update.PaginationLimit != nil {
		user.PaginationLimit = *update.PaginationLimit
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}
	if before.Name == user.Name && before.Mobile == user.Mobile &&
		before.PaginationLimit == user.PaginationLimit && before.IsActive == user.IsActive {
		return errors.ErrNoEffect
	}
	s.users[id] = user
	return nil
}

func (s *Storage) AddRewardPoints(_ context.Context, userID string, reward models.Reward) error {
	if !validID(userID) || !validID(reward.TaskID) {
		return errors.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[userID]
	if !exists || user.Role != models.RoleWorker {
		return errors.ErrNoEffect
	}
	seen := false
	for _, r := range user.Rewards {
		if r == reward {
			seen = true
			break
		}
	}
	if !seen {
		user.Rewards = append(user.Rewards, reward)
	}
	user.RewardPoints += reward.RewardPoints
	s.users[userID] = user
	return nil
}

func (s *Storage) ListWorkers(_ context.Context, skip, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workers := []models.User{}
	for _, u := range s.users {
		if u.Role == models.RoleWorker {
			workers = append(workers, *cloneUser(u))
		}
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	if skip >= len(workers) {
		return []models.User{}, nil
	}
	workers = workers[skip:]
	if limit > 0 && limit < len(workers) {
		workers = workers[:limit]
	}
	return workers, nil
}

func (s *Storage) CountWorkers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, u := range s.users {
		if u.Role == models.RoleWorker {
			n++
		}
	}
	return n, nil
}

func (s *Storage) SaveVerificationToken(_ context.Context, token *models.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now()
	}
	s.tokens[token.Token] = *token
	return nil
}

func (s *Storage) GetVerificationToken(_ context.Context, token string) (*models.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()
	t, exists := s.tokens[token]
	if !exists {
		return nil, errors.ErrTokenNotFound
	}
	return &t, nil
}

// purgeExpiredLocked plays the role of the store-level TTL index.
func (s *Storage) purgeExpiredLocked() {
	cutoff := s.now().Add(-s.tokenTTL)
	for k, t := range s.tokens {
		if !t.CreatedAt.After(cutoff) {
			delete(s.tokens, k)
		}
	}
}

func (s *Storage) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = primitive.NewObjectID().Hex()
	s.tasks[task.ID] = cloneTask(*task)
	return nil
}

func (s *Storage) GetTaskByID(_ context.Context, id string) (*models.Task, error) {
	if !validID(id) {
		return nil, errors.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, errors.ErrTaskNotFound
	}
	t := cloneTask(task)
	return &t, nil
}

func (s *Storage) GetTasksByAssignee(_ context.Context, userID string) ([]models.Task, error) {
	if !validID(userID) {
		return nil, errors.ErrInvalidID
	}
	return s.filterTasks(func(t models.Task) bool {
		return t.AssignedToID != nil && *t.AssignedToID == userID
	}), nil
}

func (s *Storage) GetTasksByStatus(_ context.Context, createdBy string, statuses []string) ([]models.Task, error) {
	if !validID(createdBy) {
		return nil, errors.ErrInvalidID
	}
	return s.filterTasks(func(t models.Task) bool {
		if t.CreatedByID != createdBy {
			return false
		}
		for _, st := range statuses {
			if t.Status == st {
				return true
			}
		}
		return false
	}), nil
}

func (s *Storage) filterTasks(keep func(models.Task) bool) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := []models.Task{}
	for _, t := range s.tasks {
		if keep(t) {
			tasks = append(tasks, cloneTask(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

func (s *Storage) UpdateTaskStatus(_ context.Context, id, status string) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	if err := models.CheckStatus(status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.tasks[id]
	if !exists || task.Status == status {
		return errors.ErrNoEffect
	}
	task.Status = status
	s.tasks[id] = task
	return nil
}

func (s *Storage) UpdateTask(_ context.Context, id string, task *models.Task) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.tasks[id]
	if !exists {
		return errors.ErrNoEffect
	}
	updated := cloneTask(*task)
	updated.ID = id
	updated.CreatedOn = existing.CreatedOn
	updated.Attachments = existing.Attachments
	if tasksEqual(existing, updated) {
		return errors.ErrNoEffect
	}
	s.tasks[id] = updated
	return nil
}

func (s *Storage) AddTaskAttachments(_ context.Context, id string, urls []string) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.tasks[id]
	if !exists || len(urls) == 0 {
		return errors.ErrNoEffect
	}
	task.Attachments = append(append([]string{}, task.Attachments...), urls...)
	s.tasks[id] = task
	return nil
}

func (s *Storage) DeleteTask(_ context.Context, id string) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; !exists {
		return errors.ErrNoEffect
	}
	delete(s.tasks, id)
	return nil
}

func cloneUser(u models.User) *models.User {
	if u.Rewards != nil {
		u.Rewards = append([]models.Reward{}, u.Rewards...)
	}
	return &u
}

func cloneTask(t models.Task) models.Task {
	if t.AssignedToID != nil {
		id := *t.AssignedToID
		t.AssignedToID = &id
	}
	if t.Attachments != nil {
		t.Attachments = append([]string{}, t.Attachments...)
	}
	return t
}

func tasksEqual(a, b models.Task) bool {
	sameAssignee := (a.AssignedToID == nil && b.AssignedToID == nil) ||
		(a.AssignedToID != nil && b.AssignedToID != nil && *a.AssignedToID == *b.AssignedToID)
	return sameAssignee &&
		a.TaskName == b.TaskName &&
		a.Description == b.Description &&
		a.Priority == b.Priority &&
		a.Status == b.Status &&
		a.EstimatedTime.Equal(b.EstimatedTime) &&
		a.Category == b.Category &&
		a.CreatedByID == b.CreatedByID
}
