// Package mongodb is the document-store backend: users, verification
// tokens and tasks live in their own collections, and token expiry is
// enforced by a TTL index rather than by application code.
package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection  = "users"
	tokensCollection = "tokens"
	tasksCollection  = "tasks"

	opTimeout = 15 * time.Second
)

type Storage struct {
	client *mongo.Client
	users  *mongo.Collection
	tokens *mongo.Collection
	tasks  *mongo.Collection
	log    *slog.Logger
}

// NewStorage connects once at startup; the returned handle is shared by
// every request.
func NewStorage(ctx context.Context, log *slog.Logger, uri, database string) (*Storage, error) {
	const op = "mongodb.NewStorage"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client: client,
		users:  db.Collection(usersCollection),
		tokens: db.Collection(tokensCollection),
		tasks:  db.Collection(tasksCollection),
		log:    log.With(slog.String("storage", "mongodb")),
	}
	s.log.Info("connected to document store", slog.String("database", database))
	return s, nil
}

// EnsureIndexes creates the unique email index and the TTL index that
// expires verification tokens 12 hours after createdAt.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	const op = "mongodb.EnsureIndexes"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("%s: users email: %w", op, err)
	}

	if _, err := s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(models.VerificationTokenTTL / time.Second)),
	}); err != nil {
		return fmt.Errorf("%s: tokens ttl: %w", op, err)
	}

	if _, err := s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "token", Value: 1}},
	}); err != nil {
		return fmt.Errorf("%s: tokens token: %w", op, err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "mongodb.GetUserByEmail"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDocument
	if err := s.users.FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&doc); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "mongodb.GetUserByID"

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDocument
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

// GetUserIdentity reads only the fields the request guard may expose.
func (s *Storage) GetUserIdentity(ctx context.Context, id string) (*models.Identity, error) {
	const op = "mongodb.GetUserIdentity"

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	projection := bson.M{"name": 1, "email": 1, "role": 1, "pagination_limit": 1}
	var doc userDocument
	err = s.users.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.Identity{
		ID:              doc.ID.Hex(),
		Name:            doc.Name,
		Email:           doc.Email,
		Role:            doc.Role,
		PaginationLimit: doc.PaginationLimit,
	}, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "mongodb.CreateUser"

	doc, err := toUserDocument(user)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrUserAlreadyExists
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("%s: unexpected inserted id %T", op, res.InsertedID)
	}
	user.ID = oid.Hex()
	s.log.Debug("user created", slog.String("id", user.ID))
	return nil
}

func (s *Storage) SetUserVerified(ctx context.Context, id string) error {
	const op = "mongodb.SetUserVerified"

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"isVerified": true}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrUserNotFound
	}
	if res.ModifiedCount == 0 {
		return errors.ErrUserAlreadyVerified
	}
	return nil
}

func (s *Storage) UpdateUserDetails(ctx context.Context, id string, update models.UserDetailsUpdate) error {
	const op = "mongodb.UpdateUserDetails"

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	set := bson.M{}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Mobile != nil {
		set["mobile"] = *update.Mobile
	}
	if update.PaginationLimit != nil {
		set["pagination_limit"] = *update.PaginationLimit
	}
	if update.IsActive != nil {
		set["isActive"] = *update.IsActive
	}
	if len(set) == 0 {
		return errors.ErrNoEffect
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.ModifiedCount == 0 {
		return errors.ErrNoEffect
	}
	return nil
}

// AddRewardPoints appends the reward to the worker's set and bumps the
// running total in one atomic update.
func (s *Storage) AddRewardPoints(ctx context.Context, userID string, reward models.Reward) error {
	const op = "mongodb.AddRewardPoints"

	oid, err := objectID(userID)
	if err != nil {
		return err
	}
	taskID, err := objectID(reward.TaskID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"_id": oid, "role": models.RoleWorker}
	update := bson.M{
		"$addToSet": bson.M{"rewards": rewardDocument{TaskID: taskID, RewardPoints: reward.RewardPoints}},
		"$inc":      bson.M{"reward_points": reward.RewardPoints},
	}
	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.ModifiedCount == 0 {
		return errors.ErrNoEffect
	}
	return nil
}

func (s *Storage) ListWorkers(ctx context.Context, skip, limit int) ([]models.User, error) {
	const op = "mongodb.ListWorkers"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"password": 0}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.users.Find(ctx, bson.M{"role": models.RoleWorker}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	workers := make([]models.User, 0, len(docs))
	for _, d := range docs {
		workers = append(workers, *d.toModel())
	}
	return workers, nil
}

func (s *Storage) CountWorkers(ctx context.Context) (int64, error) {
	const op = "mongodb.CountWorkers"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.users.CountDocuments(ctx, bson.M{"role": models.RoleWorker})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Storage) SaveVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	const op = "mongodb.SaveVerificationToken"

	userID, err := objectID(token.UserID)
	if err != nil {
		return err
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := tokenDocument{UserID: userID, Token: token.Token, CreatedAt: token.CreatedAt}
	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetVerificationToken only checks existence; expired tokens have already
// been removed by the TTL monitor.
func (s *Storage) GetVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	const op = "mongodb.GetVerificationToken"

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc tokenDocument
	if err := s.tokens.FindOne(ctx, bson.M{"token": token}).Decode(&doc); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.VerificationToken{
		Token:     doc.Token,
		UserID:    doc.UserID.Hex(),
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	const op = "mongodb.CreateTask"

	doc, err := toTaskDocument(task)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.tasks.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("%s: unexpected inserted id %T", op, res.InsertedID)
	}
	task.ID = oid.Hex()
	s.log.Debug("task created", slog.String("id", task.ID))
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	const op = "mongodb.GetTaskByID"

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc taskDocument
	if err := s.tasks.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t := doc.toModel()
	return &t, nil
}

func (s *Storage) GetTasksByAssignee(ctx context.Context, userID string) ([]models.Task, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, err
	}
	return s.findTasks(ctx, "mongodb.GetTasksByAssignee", bson.M{"assigned_to_id": oid})
}

func (s *Storage) GetTasksByStatus(ctx context.Context, createdBy string, statuses []string) ([]models.Task, error) {
	oid, err := objectID(createdBy)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		"created_by_id": oid,
		"status":        bson.M{"$in": statuses},
	}
	return s.findTasks(ctx, "mongodb.GetTasksByStatus", filter)
}

func (s *Storage) findTasks(ctx context.Context, op string, filter bson.M) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.tasks.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tasks := make([]models.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.toModel())
	}
	return tasks, nil
}

func (s *Storage) UpdateTaskStatus(ctx context.Context, id, status string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	if err := models.CheckStatus(status); err != nil {
		return err
	}
	return s.updateTask(ctx, "mongodb.UpdateTaskStatus", oid, bson.M{"$set": bson.M{"status": status}})
}

func (s *Storage) UpdateTask(ctx context.Context, id string, task *models.Task) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	doc, err := toTaskDocument(task)
	if err != nil {
		return err
	}
	set := bson.M{
		"taskname":       doc.TaskName,
		"description":    doc.Description,
		"priority":       doc.Priority,
		"status":         doc.Status,
		"estimated_time": doc.EstimatedTime,
		"category":       doc.Category,
		"created_by_id":  doc.CreatedByID,
		"assigned_to_id": doc.AssignedToID,
	}
	return s.updateTask(ctx, "mongodb.UpdateTask", oid, bson.M{"$set": set})
}

func (s *Storage) AddTaskAttachments(ctx context.Context, id string, urls []string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	update := bson.M{"$push": bson.M{"attachments": bson.M{"$each": urls}}}
	return s.updateTask(ctx, "mongodb.AddTaskAttachments", oid, update)
}

func (s *Storage) updateTask(ctx context.Context, op string, id primitive.ObjectID, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.ModifiedCount == 0 {
		return errors.ErrNoEffect
	}
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	const op = "mongodb.DeleteTask"

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return errors.ErrNoEffect
	}
	return nil
}
