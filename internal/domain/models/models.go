package models

import (
	"fmt"
	"time"

	"taskmanager/internal/domain/errors"
)

const (
	RoleManager = "MANAGER"
	RoleWorker  = "WORKER"
)

const (
	StatusCompleted   = "COMPLETED"
	StatusPending     = "PENDING"
	StatusAssigned    = "ASSIGNED"
	StatusNotAssigned = "NOTASSIGNED"
)

// TaskStatuses is the closed status vocabulary, in display order.
var TaskStatuses = []string{StatusCompleted, StatusPending, StatusAssigned, StatusNotAssigned}

// CheckStatus reports ErrInvalidStatus for anything outside TaskStatuses.
func CheckStatus(status string) error {
	for _, s := range TaskStatuses {
		if s == status {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", errors.ErrInvalidStatus, status)
}

// VerificationTokenTTL is how long a verification token stays usable.
const VerificationTokenTTL = 12 * time.Hour

type Reward struct {
	TaskID       string  `json:"task_id"`
	RewardPoints float64 `json:"reward_points"`
}

type User struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Password        string   `json:"-"`
	Role            string   `json:"role"`
	IsVerified      bool     `json:"isVerified"`
	IsActive        bool     `json:"isActive"`
	Mobile          string   `json:"mobile,omitempty"`
	RewardPoints    float64  `json:"reward_points,omitempty"`
	Rewards         []Reward `json:"rewards,omitempty"`
	PaginationLimit int      `json:"pagination_limit,omitempty"`
}

// Identity is the caller resolved by the request guard. It never carries
// password or verification state.
type Identity struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	PaginationLimit int    `json:"pagination_limit,omitempty"`
}

type VerificationToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"_userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Task struct {
	ID            string    `json:"id"`
	TaskName      string    `json:"taskname"`
	Description   string    `json:"description"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	EstimatedTime time.Time `json:"estimated_time"`
	CreatedOn     time.Time `json:"created_on"`
	Category      string    `json:"category"`
	CreatedByID   string    `json:"created_by_id"`
	AssignedToID  *string   `json:"assigned_to_id"`
	Attachments   []string  `json:"attachments,omitempty"`
}

// UserDetailsUpdate holds the mutable user fields; nil means unchanged.
type UserDetailsUpdate struct {
	Name            *string
	Mobile          *string
	PaginationLimit *int
	IsActive        *bool
}

func (u UserDetailsUpdate) IsEmpty() bool {
	return u.Name == nil && u.Mobile == nil && u.PaginationLimit == nil && u.IsActive == nil
}

type FieldError struct {
	Field   string      `json:"param"`
	Message string      `json:"msg"`
	Value   interface{} `json:"value,omitempty"`
}
