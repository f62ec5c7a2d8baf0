package models

type RegisterRequest struct {
	Name      string `json:"name" validate:"required,min=4,max=24"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Mobile    string `json:"mobile" validate:"omitempty,numeric,len=10"`
	IsManager bool   `json:"isManager"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type ConfirmationParams struct {
	Token  string `json:"token" validate:"required,min=20"`
	UserID string `json:"userid" validate:"required,len=24,hexadecimal"`
}

type UserIDRequest struct {
	UserID string `json:"userid" validate:"required,len=24,hexadecimal"`
}

type GetWorkersRequest struct {
	Page int `json:"page" validate:"min=0,max=100000"`
}

type UpdateUserDetailsRequest struct {
	UserID          string  `json:"userid" validate:"required,len=24,hexadecimal"`
	Name            *string `json:"name" validate:"omitempty,min=4,max=24"`
	Mobile          *string `json:"mobile" validate:"omitempty,numeric,len=10"`
	PaginationLimit *int    `json:"pagination_limit" validate:"omitempty,min=1,max=100"`
	IsActive        *bool   `json:"isActive"`
}

type UpdateRewardPointsRequest struct {
	UserID       string  `json:"userid" validate:"required,len=24,hexadecimal"`
	TaskID       string  `json:"task_id" validate:"required,len=24,hexadecimal"`
	RewardPoints float64 `json:"reward_points" validate:"required,gt=0"`
}

type SaveTaskRequest struct {
	TaskName      string  `json:"taskname" validate:"required,min=3"`
	Description   string  `json:"description" validate:"required"`
	Priority      string  `json:"priority" validate:"required"`
	Status        string  `json:"status" validate:"required"`
	EstimatedTime string  `json:"estimatedTime" validate:"required"`
	Category      string  `json:"category" validate:"required"`
	CreatedByID   string  `json:"createdById" validate:"required,len=24,hexadecimal"`
	AssignedToID  *string `json:"assignedToId" validate:"omitempty,len=24,hexadecimal"`
}

type UpdateTaskRequest struct {
	ID string `json:"id" validate:"required,len=24,hexadecimal"`
	SaveTaskRequest
}

type GetAllTasksRequest struct {
	UserID string `json:"userid" validate:"required,len=24,hexadecimal"`
}

type GetTasksByStatusRequest struct {
	UserID string   `json:"userid" validate:"required,len=24,hexadecimal"`
	Status []string `json:"status" validate:"required,min=1,dive,required"`
}

type UpdateTaskStatusRequest struct {
	TaskID string `json:"task_id" validate:"required,len=24,hexadecimal"`
	Status string `json:"status" validate:"required,min=5"`
}

type DeleteTaskRequest struct {
	ID string `json:"id" validate:"required,len=24,hexadecimal"`
}
