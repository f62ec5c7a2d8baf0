package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"taskmanager/internal/auth"
	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/mail"
	"taskmanager/internal/metrics"
	"taskmanager/internal/objectstore"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserIdentity(ctx context.Context, id string) (*models.Identity, error)
	CreateUser(ctx context.Context, user *models.User) error
	SetUserVerified(ctx context.Context, id string) error
	UpdateUserDetails(ctx context.Context, id string, update models.UserDetailsUpdate) error
	AddRewardPoints(ctx context.Context, userID string, reward models.Reward) error
	ListWorkers(ctx context.Context, skip, limit int) ([]models.User, error)
	CountWorkers(ctx context.Context) (int64, error)
}

type TokenRepository interface {
	SaveVerificationToken(ctx context.Context, token *models.VerificationToken) error
	GetVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error)
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	GetTasksByAssignee(ctx context.Context, userID string) ([]models.Task, error)
	GetTasksByStatus(ctx context.Context, createdBy string, statuses []string) ([]models.Task, error)
	UpdateTaskStatus(ctx context.Context, id, status string) error
	UpdateTask(ctx context.Context, id string, task *models.Task) error
	AddTaskAttachments(ctx context.Context, id string, urls []string) error
	DeleteTask(ctx context.Context, id string) error
}

type TokenIssuer interface {
	Issue(user auth.UserClaims, ttl time.Duration) (string, error)
	Verify(token string) (*auth.Claims, error)
}

type AttachmentStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are constructed once in main and shared by every request.
// Attachments and Health may be nil.
type Dependencies struct {
	Users       UserRepository
	Tokens      TokenRepository
	Tasks       TaskRepository
	Issuer      TokenIssuer
	Mailer      mail.Sender
	MailFrom    string
	Attachments AttachmentStore
	Health      Pinger
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type TaskAPI struct {
	httpSrv     *http.Server
	cfg         *Config
	users       UserRepository
	tokens      TokenRepository
	tasks       TaskRepository
	issuer      TokenIssuer
	mailer      mail.Sender
	mailFrom    string
	attachments AttachmentStore
	maxUpload   int64
	health      Pinger
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewTaskAPI(cfg *Config, deps Dependencies) *TaskAPI {
	if cfg == nil || deps.Users == nil || deps.Tokens == nil || deps.Tasks == nil ||
		deps.Issuer == nil || deps.Mailer == nil {
		return nil
	}

	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		cfg:         cfg,
		users:       deps.Users,
		tokens:      deps.Tokens,
		tasks:       deps.Tasks,
		issuer:      deps.Issuer,
		mailer:      deps.Mailer,
		mailFrom:    deps.MailFrom,
		attachments: deps.Attachments,
		maxUpload:   int64(cfg.App.MaxAttachments)*objectstore.MaxFileSize + multipartOverhead,
		health:      deps.Health,
		metrics:     m,
		log:         log,
	}

	api.configRoutes()

	return api
}

func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}

	api.log.Info("http server listening", slog.String("addr", api.httpSrv.Addr))
	if err := api.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	if api.httpSrv == nil {
		return nil
	}
	return api.httpSrv.Shutdown(ctx)
}

func (api *TaskAPI) Handler() http.Handler {
	return api.httpSrv.Handler
}

func (api *TaskAPI) configRoutes() {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestLogger(api.log),
		api.metrics.Middleware(),
		cors.New(api.corsConfig()),
		GzipRequestDecompress(),
	)
	router.MaxMultipartMemory = 8 << 20

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	router.GET("/", api.hello)
	router.GET("/healthz", api.healthz)
	router.GET("/metrics", gin.WrapH(api.metrics.Handler()))

	guard := AuthGuard(api.issuer, api.users)
	managerOnly := RequireRole(models.RoleManager)

	user := router.Group("/api/user")
	{
		user.POST("/register", api.register)
		user.POST("/login", api.login)
		user.GET("/confirmation/:token/userid/:userid", api.confirm)

		user.GET("/me", guard, api.me)
		user.POST("/get-workers", guard, managerOnly, api.getWorkers)
		user.POST("/get-user-by-id", guard, api.getUserByID)
		user.PUT("/udpate-user-details", guard, api.updateUserDetails)
		user.PUT("/update-user-details", guard, api.updateUserDetails)
		user.POST("/update-reward-points", guard, managerOnly, api.updateRewardPoints)
	}

	tasks := router.Group("/api/tasks", guard)
	{
		tasks.POST("/save-task", managerOnly, api.saveTask)
		tasks.POST("/get-all-tasks", api.getAllTasks)
		tasks.POST("/get-tasks-by-status", api.getTasksByStatus)
		tasks.PUT("/update-task-status", api.updateTaskStatus)
		tasks.POST("/update-task-attachments", api.updateTaskAttachments)
		tasks.PUT("/update-task", managerOnly, api.updateTask)
		tasks.DELETE("/delete-task", managerOnly, api.deleteTask)
	}

	api.httpSrv.Handler = router
}

func (api *TaskAPI) corsConfig() cors.Config {
	c := cors.DefaultConfig()
	origins := api.cfg.App.CORSOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	return c
}

func (api *TaskAPI) hello(ctx *gin.Context) {
	ctx.String(http.StatusOK, "Hello World!")
}

func (api *TaskAPI) healthz(ctx *gin.Context) {
	if api.health == nil {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()
	if err := api.health.Ping(c); err != nil {
		api.log.Error("health check failed", slog.String("error", err.Error()))
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": errors.ErrStorageUnavailable.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
