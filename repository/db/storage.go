package db

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	opTimeout = 15 * time.Second

	uniqueViolation = "23505"
)

const (
	userColumns = `id, name, email, password, role, is_verified, is_active, mobile, reward_points, pagination_limit`
	taskColumns = `id, taskname, description, priority, status, estimated_time, created_on, category, created_by_id, assigned_to_id, attachments`
)

type Storage struct {
	pool     *pgxpool.Pool
	log      *slog.Logger
	tokenTTL time.Duration
}

func NewStorage(ctx context.Context, log *slog.Logger, dsn string) (*Storage, error) {
	const op = "db.NewStorage"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	s := &Storage{
		pool:     pool,
		log:      log.With(slog.String("storage", "postgres")),
		tokenTTL: models.VerificationTokenTTL,
	}
	s.log.Info("database connection established")
	return s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() {
	s.pool.Close()
}

func validID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	var mobile *string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role,
		&u.IsVerified, &u.IsActive, &mobile, &u.RewardPoints, &u.PaginationLimit)
	if err != nil {
		return nil, err
	}
	if mobile != nil {
		u.Mobile = *mobile
	}
	return u, nil
}

func (s *Storage) loadRewards(ctx context.Context, users ...*models.User) error {
	if len(users) == 0 {
		return nil
	}
	byID := make(map[string]*models.User, len(users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, task_id, reward_points FROM user_rewards WHERE user_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		var r models.Reward
		if err := rows.Scan(&userID, &r.TaskID, &r.RewardPoints); err != nil {
			return err
		}
		if u, ok := byID[userID]; ok {
			u.Rewards = append(u.Rewards, r)
		}
	}
	return rows.Err()
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "db.GetUserByID"

	if !validID(id) {
		return nil, errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.loadRewards(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: rewards: %w", op, err)
	}
	return user, nil
}

func (s *Storage) GetUserIdentity(ctx context.Context, id string) (*models.Identity, error) {
	const op = "db.GetUserIdentity"

	if !validID(id) {
		return nil, errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	identity := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, role, pagination_limit FROM users WHERE id = $1`, id).
		Scan(&identity.ID, &identity.Name, &identity.Email, &identity.Role, &identity.PaginationLimit)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "db.GetUserByEmail"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.loadRewards(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: rewards: %w", op, err)
	}
	return user, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "db.CreateUser"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id := primitive.NewObjectID().Hex()
	var mobile *string
	if user.Mobile != "" {
		mobile = &user.Mobile
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, user.Name, strings.ToLower(user.Email), user.Password, user.Role,
		user.IsVerified, user.IsActive, mobile, user.RewardPoints, user.PaginationLimit)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrUserAlreadyExists
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	user.ID = id
	s.log.Debug("user created", slog.String("id", id))
	return nil
}

func (s *Storage) SetUserVerified(ctx context.Context, id string) error {
	const op = "db.SetUserVerified"

	if !validID(id) {
		return errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var verified bool
	err := s.pool.QueryRow(ctx, `SELECT is_verified FROM users WHERE id = $1`, id).Scan(&verified)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if verified {
		return errors.ErrUserAlreadyVerified
	}

	ct, err := s.pool.Exec(ctx, `UPDATE users SET is_verified = true WHERE id = $1 AND is_verified = false`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrUserAlreadyVerified
	}
	return nil
}

func (s *Storage) UpdateUserDetails(ctx context.Context, id string, update models.UserDetailsUpdate) error {
	const op = "db.UpdateUserDetails"

	if !validID(id) {
		return errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// IS DISTINCT FROM keeps an update that changes nothing from counting
	// as an affected row.
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			mobile = COALESCE($3, mobile),
			pagination_limit = COALESCE($4, pagination_limit),
			is_active = COALESCE($5, is_active)
		WHERE id = $1 AND (
			name IS DISTINCT FROM COALESCE($2, name) OR
			mobile IS DISTINCT FROM COALESCE($3, mobile) OR
			pagination_limit IS DISTINCT FROM COALESCE($4, pagination_limit) OR
			is_active IS DISTINCT FROM COALESCE($5, is_active)
		)`,
		id, update.Name, update.Mobile, update.PaginationLimit, update.IsActive)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNoEffect
	}
	return nil
}

func (s *Storage) AddRewardPoints(ctx context.Context, userID string, reward models.Reward) error {
	const op = "db.AddRewardPoints"

	if !validID(userID) || !validID(reward.TaskID) {
		return errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE users SET reward_points = reward_points + $2 WHERE id = $1 AND role = $3`,
		userID, reward.RewardPoints, models.RoleWorker)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNoEffect
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_rewards (user_id, task_id, reward_points) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, task_id, reward_points) DO NOTHING`,
		userID, reward.TaskID, reward.RewardPoints); err != nil {
		return fmt.Errorf("%s: rewards: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Storage) ListWorkers(ctx context.Context, skip, limit int) ([]models.User, error) {
	const op = "db.ListWorkers"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id OFFSET $2 LIMIT $3`,
		models.RoleWorker, skip, limitArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	workers := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		u.Password = ""
		workers = append(workers, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.loadRewards(ctx, workers...); err != nil {
		return nil, fmt.Errorf("%s: rewards: %w", op, err)
	}

	result := make([]models.User, 0, len(workers))
	for _, u := range workers {
		result = append(result, *u)
	}
	return result, nil
}

func (s *Storage) CountWorkers(ctx context.Context) (int64, error) {
	const op = "db.CountWorkers"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role = $1`, models.RoleWorker).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Storage) SaveVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	const op = "db.SaveVerificationToken"

	if !validID(token.UserID) {
		return errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE created_at <= $1`,
		time.Now().UTC().Add(-s.tokenTTL)); err != nil {
		s.log.Warn("failed to purge expired tokens", slog.String("error", err.Error()))
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_tokens (token, user_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, created_at = EXCLUDED.created_at`,
		token.Token, token.UserID, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	const op = "db.GetVerificationToken"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	t := &models.VerificationToken{}
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_id, created_at FROM verification_tokens WHERE token = $1 AND created_at > $2`,
		token, time.Now().UTC().Add(-s.tokenTTL)).
		Scan(&t.Token, &t.UserID, &t.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.TaskName, &t.Description, &t.Priority, &t.Status,
		&t.EstimatedTime, &t.CreatedOn, &t.Category, &t.CreatedByID, &t.AssignedToID, &t.Attachments)
	return t, err
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	const op = "db.CreateTask"

	if !validID(task.CreatedByID) || (task.AssignedToID != nil && !validID(*task.AssignedToID)) {
		return errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id := primitive.NewObjectID().Hex()
	attachments := task.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, task.TaskName, task.Description, task.Priority, task.Status,
		task.EstimatedTime, task.CreatedOn, task.Category, task.CreatedByID, task.AssignedToID, attachments)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	task.ID = id
	s.log.Debug("task created", slog.String("id", id))
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	const op = "db.GetTaskByID"

	if !validID(id) {
		return nil, errors.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	task, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &task, nil
}

func (s *Storage) GetTasksByAssignee(ctx context.Context, userID string) ([]models.Task, error) {
	if !validID(userID) {
		return nil, errors.ErrInvalidID
	}
	return s.queryTasks(ctx, "db.GetTasksByAssignee",
		`SELECT `+taskColumns+` FROM tasks WHERE assigned_to_id = $1 ORDER BY id`, userID)
}

func (s *Storage) GetTasksByStatus(ctx context.Context, createdBy string, statuses []string) ([]models.Task, error) {
	if !validID(createdBy) {
		return nil, errors.ErrInvalidID
	}
	return s.queryTasks(ctx, "db.GetTasksByStatus",
		`SELECT `+taskColumns+` FROM tasks WHERE created_by_id = $1 AND status = ANY($2) ORDER BY id`,
		createdBy, statuses)
}

func (s *Storage) queryTasks(ctx context.Context, op, query string, args ...any) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tasks, nil
}

func (s *Storage) UpdateTaskStatus(ctx context.Context, id, status string) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	if err := models.CheckStatus(status); err != nil {
		return err
	}
	return s.execTask(ctx, "db.UpdateTaskStatus",
		`UPDATE tasks SET status = $2 WHERE id = $1 AND status <> $2`, id, status)
}

func (s *Storage) UpdateTask(ctx context.Context, id string, task *models.Task) error {
	if !validID(id) || !validID(task.CreatedByID) || (task.AssignedToID != nil && !validID(*task.AssignedToID)) {
		return errors.ErrInvalidID
	}
	return s.execTask(ctx, "db.UpdateTask", `
		UPDATE tasks SET
			taskname = $2, description = $3, priority = $4, status = $5,
			estimated_time = $6, category = $7, created_by_id = $8, assigned_to_id = $9
		WHERE id = $1 AND (
			taskname, description, priority, status, estimated_time, category, created_by_id, assigned_to_id
		) IS DISTINCT FROM ($2, $3, $4, $5, $6::timestamptz, $7, $8, $9)`,
		id, task.TaskName, task.Description, task.Priority, task.Status,
		task.EstimatedTime, task.Category, task.CreatedByID, task.AssignedToID)
}

func (s *Storage) AddTaskAttachments(ctx context.Context, id string, urls []string) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	if len(urls) == 0 {
		return errors.ErrNoEffect
	}
	return s.execTask(ctx, "db.AddTaskAttachments",
		`UPDATE tasks SET attachments = attachments || $2 WHERE id = $1`, id, urls)
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.ErrInvalidID
	}
	return s.execTask(ctx, "db.DeleteTask", `DELETE FROM tasks WHERE id = $1`, id)
}

func (s *Storage) execTask(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNoEffect
	}
	return nil
}
