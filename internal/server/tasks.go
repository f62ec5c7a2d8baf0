package server

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/lib/logger/sl"
	"taskmanager/internal/objectstore"

	"github.com/gin-gonic/gin"
)

var invalidStatusMessage = "Status is incorrect it should be only " + strings.Join(models.TaskStatuses, ",")

// multipartOverhead covers form fields and part headers on top of the
// attachment bytes themselves.
const multipartOverhead = 1 << 20

// taskFromRequest builds the stored task from a save or update body. The
// second return is false after a 400 has been written.
func taskFromRequest(ctx *gin.Context, req *models.SaveTaskRequest) (*models.Task, bool) {
	estimated, ok := parseEstimatedTime(req.EstimatedTime)
	if !ok {
		respondValidation(ctx, []models.FieldError{fieldError("estimatedTime", req.EstimatedTime)})
		return nil, false
	}

	var assignee *string
	if req.AssignedToID != nil && *req.AssignedToID != "" {
		id := *req.AssignedToID
		assignee = &id
	}

	return &models.Task{
		TaskName:      req.TaskName,
		Description:   req.Description,
		Priority:      req.Priority,
		Status:        req.Status,
		EstimatedTime: estimated,
		Category:      req.Category,
		CreatedByID:   req.CreatedByID,
		AssignedToID:  assignee,
	}, true
}

func (api *TaskAPI) saveTask(ctx *gin.Context) {
	var req models.SaveTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}
	task, ok := taskFromRequest(ctx, &req)
	if !ok {
		return
	}
	task.CreatedOn = time.Now().UTC()

	if err := api.tasks.CreateTask(ctx.Request.Context(), task); err != nil {
		api.log.Error("failed to save task", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": "Error while saving the task"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "Ok", "message": "Task saved successfully", "insertedId": task.ID})
}

func (api *TaskAPI) getAllTasks(ctx *gin.Context) {
	var req models.GetAllTasksRequest
	if !bindJSON(ctx, &req) {
		return
	}

	tasks, err := api.tasks.GetTasksByAssignee(ctx.Request.Context(), req.UserID)
	if err != nil {
		api.respondStoreError(ctx, err, "Unable to get the tasks", "Error while getting the tasks")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"userid": req.UserID, "tasks": tasks})
}

func (api *TaskAPI) getTasksByStatus(ctx *gin.Context) {
	var req models.GetTasksByStatusRequest
	if !bindJSON(ctx, &req) {
		return
	}

	tasks, err := api.tasks.GetTasksByStatus(ctx.Request.Context(), req.UserID, req.Status)
	if err != nil {
		api.respondStoreError(ctx, err, "Unable to get the tasks", "Error while getting the tasks")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"userid": req.UserID, "status": req.Status, "tasks": tasks})
}

func (api *TaskAPI) updateTaskStatus(ctx *gin.Context) {
	var req models.UpdateTaskStatusRequest
	if !bindJSON(ctx, &req) {
		return
	}
	if err := models.CheckStatus(req.Status); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": invalidStatusMessage})
		return
	}

	if err := api.tasks.UpdateTaskStatus(ctx.Request.Context(), req.TaskID, req.Status); err != nil {
		api.respondStoreError(ctx, err, "Unable to update the task status", "Error while updating the task status")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "Ok", "message": "Task status updated successfully"})
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	var req models.UpdateTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}
	task, ok := taskFromRequest(ctx, &req.SaveTaskRequest)
	if !ok {
		return
	}

	if err := api.tasks.UpdateTask(ctx.Request.Context(), req.ID, task); err != nil {
		api.respondStoreError(ctx, err, "Unable to update the task", "Error while updating the task")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "Ok", "message": "Task updating successfully"})
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	var req models.DeleteTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}

	if err := api.tasks.DeleteTask(ctx.Request.Context(), req.ID); err != nil {
		api.respondStoreError(ctx, err, "Unable to delete the task", "Error while deleting the task")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "Ok", "message": "Task deleted successfully"})
}

// updateTaskAttachments uploads every file under the "attachments" form
// field to attachments/<task id>/ and appends the resulting URLs to the task.
// The body is capped at MaxAttachments files of MaxFileSize before parsing.
func (api *TaskAPI) updateTaskAttachments(ctx *gin.Context) {
	const op = "server.updateTaskAttachments"
	log := api.log.With(slog.String("op", op))

	if api.attachments == nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": "attachment storage is not configured"})
		return
	}

	if ctx.Request.ContentLength > api.maxUpload {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "Error", "error": "Request body is too large"})
		return
	}
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, api.maxUpload)

	form, err := ctx.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "Error", "error": "Request body is too large"})
			return
		}
		respondValidation(ctx, []models.FieldError{{Field: "body", Message: "Invalid request body"}})
		return
	}

	var taskID string
	if values := form.Value["task_id"]; len(values) > 0 {
		taskID = values[0]
	}
	if err := validate.Var(taskID, "required,len=24,hexadecimal"); err != nil {
		respondValidation(ctx, []models.FieldError{fieldError("task_id", taskID)})
		return
	}

	files := form.File["attachments"]
	switch {
	case len(files) == 0:
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "Error", "error": "No attachments were uploaded"})
		return
	case len(files) > api.cfg.App.MaxAttachments:
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "Error", "error": "Too many attachments"})
		return
	}
	for _, fh := range files {
		if fh.Size > objectstore.MaxFileSize {
			ctx.JSON(http.StatusBadRequest, gin.H{"status": "Error", "error": "Attachment " + fh.Filename + " is larger than 20MB"})
			return
		}
	}

	c := ctx.Request.Context()
	if _, err := api.tasks.GetTaskByID(c, taskID); err != nil {
		api.respondStoreError(ctx, err, "", "Error while updating the task attachments")
		return
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			log.Error("failed to open uploaded file", slog.String("file", fh.Filename), sl.Err(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": "Error while uploading the attachments"})
			return
		}
		url, err := api.attachments.Upload(c, objectstore.AttachmentKey(taskID, fh.Filename),
			fh.Header.Get("Content-Type"), f, fh.Size)
		f.Close()
		if err != nil {
			log.Error("failed to upload attachment", slog.String("file", fh.Filename), sl.Err(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": "Error while uploading the attachments"})
			return
		}
		urls = append(urls, url)
	}

	if err := api.tasks.AddTaskAttachments(c, taskID, urls); err != nil {
		if stderrors.Is(err, errors.ErrNoEffect) {
			log.Warn("attachments uploaded but task not updated", slog.String("task_id", taskID))
		}
		api.respondStoreError(ctx, err, "Unable to update the task attachments", "Error while updating the task attachments")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "locationArray": urls})
}
