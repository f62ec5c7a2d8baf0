package mongodb

import (
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type rewardDocument struct {
	TaskID       primitive.ObjectID `bson:"task_id"`
	RewardPoints float64            `bson:"reward_points"`
}

type userDocument struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Name            string             `bson:"name"`
	Email           string             `bson:"email"`
	Password        string             `bson:"password,omitempty"`
	Role            string             `bson:"role"`
	IsVerified      bool               `bson:"isVerified"`
	IsActive        bool               `bson:"isActive"`
	Mobile          string             `bson:"mobile,omitempty"`
	RewardPoints    float64            `bson:"reward_points,omitempty"`
	Rewards         []rewardDocument   `bson:"rewards,omitempty"`
	PaginationLimit int                `bson:"pagination_limit,omitempty"`
}

type tokenDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"_userId"`
	Token     string             `bson:"token"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type taskDocument struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty"`
	TaskName      string              `bson:"taskname"`
	Description   string              `bson:"description"`
	Priority      string              `bson:"priority"`
	Status        string              `bson:"status"`
	EstimatedTime time.Time           `bson:"estimated_time"`
	CreatedOn     time.Time           `bson:"created_on"`
	Category      string              `bson:"category"`
	CreatedByID   primitive.ObjectID  `bson:"created_by_id"`
	AssignedToID  *primitive.ObjectID `bson:"assigned_to_id"`
	Attachments   []string            `bson:"attachments,omitempty"`
}

func objectID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, errors.ErrInvalidID
	}
	return id, nil
}

func toUserDocument(u *models.User) (userDocument, error) {
	doc := userDocument{
		Name:            u.Name,
		Email:           strings.ToLower(u.Email),
		Password:        u.Password,
		Role:            u.Role,
		IsVerified:      u.IsVerified,
		IsActive:        u.IsActive,
		Mobile:          u.Mobile,
		RewardPoints:    u.RewardPoints,
		PaginationLimit: u.PaginationLimit,
	}
	for _, r := range u.Rewards {
		taskID, err := objectID(r.TaskID)
		if err != nil {
			return userDocument{}, err
		}
		doc.Rewards = append(doc.Rewards, rewardDocument{TaskID: taskID, RewardPoints: r.RewardPoints})
	}
	return doc, nil
}

func (d userDocument) toModel() *models.User {
	u := &models.User{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Email:           d.Email,
		Password:        d.Password,
		Role:            d.Role,
		IsVerified:      d.IsVerified,
		IsActive:        d.IsActive,
		Mobile:          d.Mobile,
		RewardPoints:    d.RewardPoints,
		PaginationLimit: d.PaginationLimit,
	}
	for _, r := range d.Rewards {
		u.Rewards = append(u.Rewards, models.Reward{TaskID: r.TaskID.Hex(), RewardPoints: r.RewardPoints})
	}
	return u
}

func toTaskDocument(t *models.Task) (taskDocument, error) {
	createdBy, err := objectID(t.CreatedByID)
	if err != nil {
		return taskDocument{}, err
	}
	doc := taskDocument{
		TaskName:      t.TaskName,
		Description:   t.Description,
		Priority:      t.Priority,
		Status:        t.Status,
		EstimatedTime: t.EstimatedTime,
		CreatedOn:     t.CreatedOn,
		Category:      t.Category,
		CreatedByID:   createdBy,
		Attachments:   t.Attachments,
	}
	if t.AssignedToID != nil {
		assignee, err := objectID(*t.AssignedToID)
		if err != nil {
			return taskDocument{}, err
		}
		doc.AssignedToID = &assignee
	}
	return doc, nil
}

func (d taskDocument) toModel() models.Task {
	t := models.Task{
		ID:            d.ID.Hex(),
		TaskName:      d.TaskName,
		Description:   d.Description,
		Priority:      d.Priority,
		Status:        d.Status,
		EstimatedTime: d.EstimatedTime,
		CreatedOn:     d.CreatedOn,
		Category:      d.Category,
		CreatedByID:   d.CreatedByID.Hex(),
		Attachments:   d.Attachments,
	}
	if d.AssignedToID != nil {
		assignee := d.AssignedToID.Hex()
		t.AssignedToID = &assignee
	}
	return t
}
