package storage

import (
	"context"
	"testing"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewStorage(t *testing.T) {
	tests := []struct {
		name string
		want struct {
			notNil      bool
			emptyUsers  bool
			emptyTasks  bool
			emptyTokens bool
		}
	}{
		{
			name: "create new storage instance",
			want: struct {
				notNil      bool
				emptyUsers  bool
				emptyTasks  bool
				emptyTokens bool
			}{
				notNil:      true,
				emptyUsers:  true,
				emptyTasks:  true,
				emptyTokens: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewStorage()

			assert.Equal(t, tt.want.notNil, storage != nil)
			assert.Equal(t, tt.want.emptyUsers, len(storage.users) == 0)
			assert.Equal(t, tt.want.emptyTasks, len(storage.tasks) == 0)
			assert.Equal(t, tt.want.emptyTokens, len(storage.tokens) == 0)
			assert.Equal(t, models.VerificationTokenTTL, storage.tokenTTL)
		})
	}
}

func TestStorageCreateUser(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		want struct {
			err error
		}
		setup func(*Storage)
	}{
		{
			name: "successful user creation",
			user: &models.User{Name: "Jane Doe", Email: "jane@x.com", Role: models.RoleManager},
			setup: func(s *Storage) {
			},
		},
		{
			name: "duplicate email",
			user: &models.User{Name: "Jane Two", Email: "jane@x.com", Role: models.RoleWorker},
			want: struct {
				err error
			}{
				err: errors.ErrUserAlreadyExists,
			},
			setup: func(s *Storage) {
				require.NoError(t, s.CreateUser(context.Background(), &models.User{Name: "Jane Doe", Email: "jane@x.com"}))
			},
		},
		{
			name: "duplicate email differs only by case",
			user: &models.User{Name: "Jane Two", Email: "JANE@x.com", Role: models.RoleWorker},
			want: struct {
				err error
			}{
				err: errors.ErrUserAlreadyExists,
			},
			setup: func(s *Storage) {
				require.NoError(t, s.CreateUser(context.Background(), &models.User{Name: "Jane Doe", Email: "jane@x.com"}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewStorage()
			tt.setup(storage)

			err := storage.CreateUser(context.Background(), tt.user)

			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, tt.user.ID, 24)

			stored, err := storage.GetUserByEmail(context.Background(), "jane@x.com")
			require.NoError(t, err)
			assert.Equal(t, tt.user.ID, stored.ID)
		})
	}
}

func TestStorageGetUser(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()
	user := &models.User{Name: "Jane Doe", Email: "jane@x.com", Password: "hash", Role: models.RoleManager, PaginationLimit: 5}
	require.NoError(t, storage.CreateUser(ctx, user))

	tests := []struct {
		name string
		id   string
		want struct {
			err error
		}
	}{
		{name: "existing user", id: user.ID},
		{
			name: "unknown user",
			id:   "0123456789abcdef01234567",
			want: struct{ err error }{err: errors.ErrUserNotFound},
		},
		{
			name: "malformed id",
			id:   "not-an-id",
			want: struct{ err error }{err: errors.ErrInvalidID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.GetUserByID(ctx, tt.id)
			identity, idErr := storage.GetUserIdentity(ctx, tt.id)

			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				assert.ErrorIs(t, idErr, tt.want.err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, idErr)
			assert.Equal(t, "hash", got.Password)
			assert.Equal(t, models.Identity{
				ID:              user.ID,
				Name:            "Jane Doe",
				Email:           "jane@x.com",
				Role:            models.RoleManager,
				PaginationLimit: 5,
			}, *identity)
		})
	}
}

func TestStorageSetUserVerified(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()
	user := &models.User{Name: "Jane Doe", Email: "jane@x.com"}
	require.NoError(t, storage.CreateUser(ctx, user))

	require.NoError(t, storage.SetUserVerified(ctx, user.ID))
	got, err := storage.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)

	assert.ErrorIs(t, storage.SetUserVerified(ctx, user.ID), errors.ErrUserAlreadyVerified)
	assert.ErrorIs(t, storage.SetUserVerified(ctx, "0123456789abcdef01234567"), errors.ErrUserNotFound)
}

func TestStorageUpdateUserDetails(t *testing.T) {
	ctx := context.Background()
	name := "Janet Doe"
	limit := 25

	tests := []struct {
		name   string
		update models.UserDetailsUpdate
		id     func(*models.User) string
		want   struct {
			err error
		}
	}{
		{
			name:   "name and pagination limit",
			update: models.UserDetailsUpdate{Name: &name, PaginationLimit: &limit},
			id:     func(u *models.User) string { return u.ID },
		},
		{
			name:   "same values change nothing",
			update: models.UserDetailsUpdate{Name: strPtr("Jane Doe")},
			id:     func(u *models.User) string { return u.ID },
			want:   struct{ err error }{err: errors.ErrNoEffect},
		},
		{
			name:   "unknown user",
			update: models.UserDetailsUpdate{Name: &name},
			id:     func(*models.User) string { return "0123456789abcdef01234567" },
			want:   struct{ err error }{err: errors.ErrNoEffect},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewStorage()
			user := &models.User{Name: "Jane Doe", Email: "jane@x.com"}
			require.NoError(t, storage.CreateUser(ctx, user))

			err := storage.UpdateUserDetails(ctx, tt.id(user), tt.update)
			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				return
			}
			require.NoError(t, err)
			got, err := storage.GetUserByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, name, got.Name)
			assert.Equal(t, limit, got.PaginationLimit)
		})
	}
}

func TestStorageAddRewardPoints(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()
	worker := &models.User{Name: "Wally Worker", Email: "w@x.com", Role: models.RoleWorker}
	manager := &models.User{Name: "Manny Manager", Email: "m@x.com", Role: models.RoleManager}
	require.NoError(t, storage.CreateUser(ctx, worker))
	require.NoError(t, storage.CreateUser(ctx, manager))

	reward := models.Reward{TaskID: "0123456789abcdef01234567", RewardPoints: 10}
	require.NoError(t, storage.AddRewardPoints(ctx, worker.ID, reward))
	require.NoError(t, storage.AddRewardPoints(ctx, worker.ID, reward))

	got, err := storage.GetUserByID(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Reward{reward}, got.Rewards)
	assert.Equal(t, float64(20), got.RewardPoints)

	assert.ErrorIs(t, storage.AddRewardPoints(ctx, manager.ID, reward), errors.ErrNoEffect)
	assert.ErrorIs(t, storage.AddRewardPoints(ctx, "bad", reward), errors.ErrInvalidID)
}

func TestStorageWorkers(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()
	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		require.NoError(t, storage.CreateUser(ctx, &models.User{Name: "Worker", Email: email, Role: models.RoleWorker}), i)
	}
	require.NoError(t, storage.CreateUser(ctx, &models.User{Name: "Manager", Email: "m@x.com", Role: models.RoleManager}))

	total, err := storage.CountWorkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	tests := []struct {
		name  string
		skip  int
		limit int
		want  int
	}{
		{name: "first page", skip: 0, limit: 2, want: 2},
		{name: "second page", skip: 2, limit: 2, want: 1},
		{name: "past the end", skip: 5, limit: 2, want: 0},
		{name: "no limit", skip: 0, limit: 0, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workers, err := storage.ListWorkers(ctx, tt.skip, tt.limit)
			require.NoError(t, err)
			assert.Len(t, workers, tt.want)
			for _, w := range workers {
				assert.Equal(t, models.RoleWorker, w.Role)
			}
		})
	}
}

func TestStorageVerificationTokenExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	storage := NewStorage().WithClock(func() time.Time { return now })
	ctx := context.Background()

	token := &models.VerificationToken{Token: "0123456789abcdef0123456789abcdef", UserID: "0123456789abcdef01234567"}
	require.NoError(t, storage.SaveVerificationToken(ctx, token))
	assert.Equal(t, now, token.CreatedAt)

	tests := []struct {
		name    string
		advance time.Duration
		want    error
	}{
		{name: "fresh token", advance: 0},
		{name: "just inside the window", advance: 12*time.Hour - time.Second},
		{name: "expired after twelve hours", advance: time.Second, want: errors.ErrTokenNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(tt.advance)
			got, err := storage.GetVerificationToken(ctx, token.Token)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, token.UserID, got.UserID)
		})
	}
}

func TestStorageTasks(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()
	manager := "0123456789abcdef01234567"
	worker := "89abcdef0123456789abcdef"

	assigned := &models.Task{TaskName: "Paint", Status: models.StatusAssigned, CreatedByID: manager, AssignedToID: strPtr(worker)}
	open := &models.Task{TaskName: "Sweep", Status: models.StatusNotAssigned, CreatedByID: manager}
	require.NoError(t, storage.CreateTask(ctx, assigned))
	require.NoError(t, storage.CreateTask(ctx, open))

	byAssignee, err := storage.GetTasksByAssignee(ctx, worker)
	require.NoError(t, err)
	require.Len(t, byAssignee, 1)
	assert.Equal(t, assigned.ID, byAssignee[0].ID)

	byStatus, err := storage.GetTasksByStatus(ctx, manager, []string{models.StatusNotAssigned, models.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, open.ID, byStatus[0].ID)
	assert.Nil(t, byStatus[0].AssignedToID)

	require.NoError(t, storage.UpdateTaskStatus(ctx, assigned.ID, models.StatusCompleted))
	assert.ErrorIs(t, storage.UpdateTaskStatus(ctx, assigned.ID, models.StatusCompleted), errors.ErrNoEffect)
	assert.ErrorIs(t, storage.UpdateTaskStatus(ctx, assigned.ID, "DONE"), errors.ErrInvalidStatus)

	require.NoError(t, storage.AddTaskAttachments(ctx, open.ID, []string{"https://bucket/attachments/a.png"}))
	got, err := storage.GetTaskByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://bucket/attachments/a.png"}, got.Attachments)

	updated := *got
	updated.TaskName = "Sweep floors"
	require.NoError(t, storage.UpdateTask(ctx, open.ID, &updated))
	assert.ErrorIs(t, storage.UpdateTask(ctx, open.ID, &updated), errors.ErrNoEffect)

	require.NoError(t, storage.DeleteTask(ctx, open.ID))
	assert.ErrorIs(t, storage.DeleteTask(ctx, open.ID), errors.ErrNoEffect)
	assert.ErrorIs(t, storage.DeleteTask(ctx, "nope"), errors.ErrInvalidID)
}
