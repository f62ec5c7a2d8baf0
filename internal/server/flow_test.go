package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"taskmanager/internal/auth"
	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/mail"
	storage "taskmanager/repository/inmemory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// confirmationPath pulls the link out of the last verification email.
func (o *outbox) confirmationPath(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	body := o.sent[len(o.sent)-1].Body
	idx := strings.Index(body, "/api/user/confirmation/")
	require.GreaterOrEqual(t, idx, 0, body)
	return strings.TrimSpace(body[idx:])
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFlowAPI(t *testing.T) (*TaskAPI, *outbox, *clock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &clock{now: time.Now()}
	store := storage.NewStorage().WithClock(clk.Now)
	box := &outbox{}
	api := NewTaskAPI(testConfig(), Dependencies{
		Users:    store,
		Tokens:   store,
		Tasks:    store,
		Issuer:   auth.NewIssuer("flow-secret", 0),
		Mailer:   box,
		MailFrom: "noreply@tasks.test",
		Health:   store,
	})
	require.NotNil(t, api)
	return api, box, clk
}

func registerAndLogin(t *testing.T, api *TaskAPI, box *outbox, name, email string, manager bool) (string, string) {
	t.Helper()
	w := doJSON(api, http.MethodPost, "/api/user/register",
		models.RegisterRequest{Name: name, Email: email, Password: "password123", IsManager: manager}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeBody(t, w)["userDetails"].(map[string]interface{})["id"].(string)

	w = doJSON(api, http.MethodGet, box.confirmationPath(t), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(api, http.MethodPost, "/api/user/login", models.LoginRequest{Email: email, Password: "password123"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return id, decodeBody(t, w)["token"].(string)
}

func TestRegistrationFlow(t *testing.T) {
	api, box, _ := newFlowAPI(t)

	register := models.RegisterRequest{Name: "Alice Manager", Email: "alice@example.com", Password: "password123", IsManager: true}
	w := doJSON(api, http.MethodPost, "/api/user/register", register, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "token")

	register.Email = "ALICE@example.com"
	w = doJSON(api, http.MethodPost, "/api/user/register", register, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "User already exists")

	login := models.LoginRequest{Email: "alice@example.com", Password: "password123"}
	w = doJSON(api, http.MethodPost, "/api/user/login", login, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "not-verified")

	link := box.confirmationPath(t)
	w = doJSON(api, http.MethodGet, link, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(api, http.MethodGet, link, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already-verified")

	w = doJSON(api, http.MethodPost, "/api/user/login", login, "")
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeBody(t, w)["token"].(string)

	claims, err := api.issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, claims.User.Role)

	w = doJSON(api, http.MethodGet, "/api/user/me", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")

	w = doJSON(api, http.MethodGet, "/api/user/me?token="+token, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(api, http.MethodGet, "/api/user/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(api, http.MethodGet, "/api/user/me", nil, token+"x")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// exactEmailStore only finds a user when the address matches byte for byte,
// the way a document store without a case-insensitive index behaves.
type exactEmailStore struct {
	*storage.Storage
}

func (s exactEmailStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.Storage.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Email != email {
		return nil, errors.ErrUserNotFound
	}
	return user, nil
}

func TestMixedCaseEmailWithExactMatchStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := exactEmailStore{storage.NewStorage()}
	box := &outbox{}
	api := NewTaskAPI(testConfig(), Dependencies{
		Users:    store,
		Tokens:   store,
		Tasks:    store,
		Issuer:   auth.NewIssuer("flow-secret", 0),
		Mailer:   box,
		MailFrom: "noreply@tasks.test",
		Health:   store,
	})
	require.NotNil(t, api)

	_, token := registerAndLogin(t, api, box, "Jane Doe", "Jane@X.com", true)
	assert.NotEmpty(t, token)

	w := doJSON(api, http.MethodPost, "/api/user/login", models.LoginRequest{Email: "JANE@x.COM", Password: "password123"}, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(api, http.MethodPost, "/api/user/register",
		models.RegisterRequest{Name: "Jane Again", Email: "jane@x.com", Password: "password123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "User already exists")
}

func TestVerificationTokenExpires(t *testing.T) {
	api, box, clk := newFlowAPI(t)

	w := doJSON(api, http.MethodPost, "/api/user/register",
		models.RegisterRequest{Name: "Late Worker", Email: "late@example.com", Password: "password123"}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	clk.Advance(models.VerificationTokenTTL + time.Second)

	w = doJSON(api, http.MethodGet, box.confirmationPath(t), nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not-verified")
}

func TestTaskLifecycle(t *testing.T) {
	api, box, _ := newFlowAPI(t)
	managerUID, managerToken := registerAndLogin(t, api, box, "Alice Manager", "alice@example.com", true)
	workerUID, workerToken := registerAndLogin(t, api, box, "Bob Worker", "bob@example.com", false)

	task := validTaskRequest()
	task.CreatedByID = managerUID

	w := doJSON(api, http.MethodPost, "/api/tasks/save-task", task, workerToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(api, http.MethodPost, "/api/tasks/save-task", task, managerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	insertedID := decodeBody(t, w)["insertedId"].(string)

	w = doJSON(api, http.MethodPost, "/api/tasks/get-tasks-by-status",
		models.GetTasksByStatusRequest{UserID: managerUID, Status: []string{models.StatusNotAssigned}}, managerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"assigned_to_id":null`)

	assignee := workerUID
	update := models.UpdateTaskRequest{ID: insertedID, SaveTaskRequest: task}
	update.AssignedToID = &assignee
	update.Status = models.StatusAssigned
	w = doJSON(api, http.MethodPut, "/api/tasks/update-task", update, managerToken)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(api, http.MethodPut, "/api/tasks/update-task", update, managerToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doJSON(api, http.MethodPost, "/api/tasks/get-all-tasks", models.GetAllTasksRequest{UserID: workerUID}, workerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), insertedID)

	w = doJSON(api, http.MethodPut, "/api/tasks/update-task-status",
		models.UpdateTaskStatusRequest{TaskID: insertedID, Status: "DONE!"}, workerToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(api, http.MethodPut, "/api/tasks/update-task-status",
		models.UpdateTaskStatusRequest{TaskID: insertedID, Status: models.StatusCompleted}, workerToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(api, http.MethodPut, "/api/tasks/update-task-status",
		models.UpdateTaskStatusRequest{TaskID: insertedID, Status: models.StatusCompleted}, workerToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	reward := models.UpdateRewardPointsRequest{UserID: workerUID, TaskID: insertedID, RewardPoints: 10}
	w = doJSON(api, http.MethodPost, "/api/user/update-reward-points", reward, managerToken)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(api, http.MethodPost, "/api/user/get-user-by-id", models.UserIDRequest{UserID: workerUID}, managerToken)
	require.Equal(t, http.StatusOK, w.Code)
	user := decodeBody(t, w)["user"].(map[string]interface{})
	assert.EqualValues(t, 10, user["reward_points"])

	w = doJSON(api, http.MethodPost, "/api/user/get-workers", models.GetWorkersRequest{}, managerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["total"])

	w = doJSON(api, http.MethodDelete, "/api/tasks/delete-task", models.DeleteTaskRequest{ID: insertedID}, managerToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(api, http.MethodDelete, "/api/tasks/delete-task", models.DeleteTaskRequest{ID: insertedID}, managerToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Unable to delete the task")
}

func TestDeactivatedUserCannotLogIn(t *testing.T) {
	api, box, _ := newFlowAPI(t)
	_, managerToken := registerAndLogin(t, api, box, "Alice Manager", "alice@example.com", true)
	workerUID, _ := registerAndLogin(t, api, box, "Bob Worker", "bob@example.com", false)

	inactive := false
	w := doJSON(api, http.MethodPut, "/api/user/update-user-details",
		models.UpdateUserDetailsRequest{UserID: workerUID, IsActive: &inactive}, managerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(api, http.MethodPost, "/api/user/login", models.LoginRequest{Email: "bob@example.com", Password: "password123"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "inactive")
}
