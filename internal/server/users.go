package server

import (
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"taskmanager/internal/auth"
	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/lib/logger/sl"
	"taskmanager/internal/mail"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func newVerificationToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// normalizeEmail gives the form addresses are stored and looked up in.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (api *TaskAPI) confirmationLink(ctx *gin.Context, token, userID string) string {
	base := strings.TrimRight(api.cfg.App.PublicURL, "/")
	if base == "" {
		base = "http://" + ctx.Request.Host
	}
	return fmt.Sprintf("%s/api/user/confirmation/%s/userid/%s", base, token, userID)
}

func (api *TaskAPI) register(ctx *gin.Context) {
	const op = "server.register"
	log := api.log.With(slog.String("op", op))

	var req models.RegisterRequest
	if !bindJSON(ctx, &req) {
		api.metrics.Registrations.WithLabelValues("invalid").Inc()
		return
	}
	c := ctx.Request.Context()
	email := normalizeEmail(req.Email)

	if _, err := api.users.GetUserByEmail(c, email); err == nil {
		api.metrics.Registrations.WithLabelValues("duplicate").Inc()
		ctx.JSON(http.StatusBadRequest, gin.H{"msg": "User already exists"})
		return
	} else if !stderrors.Is(err, errors.ErrUserNotFound) {
		log.Error("failed to look up user", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"msg": "Error while Saving User"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"msg": "Error while Saving User"})
		return
	}

	role := models.RoleWorker
	if req.IsManager {
		role = models.RoleManager
	}
	user := &models.User{
		Name:            req.Name,
		Email:           email,
		Password:        string(hash),
		Role:            role,
		IsVerified:      false,
		IsActive:        true,
		Mobile:          req.Mobile,
		PaginationLimit: api.cfg.App.DefaultPaginationLimit,
	}
	if err := api.users.CreateUser(c, user); err != nil {
		if stderrors.Is(err, errors.ErrUserAlreadyExists) {
			api.metrics.Registrations.WithLabelValues("duplicate").Inc()
			ctx.JSON(http.StatusBadRequest, gin.H{"msg": "User already exists"})
			return
		}
		log.Error("failed to create user", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"msg": "Error while Saving User"})
		return
	}

	tokenValue, err := newVerificationToken()
	if err != nil {
		log.Error("failed to generate verification token", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"msg": "Error while Saving User"})
		return
	}
	token := &models.VerificationToken{Token: tokenValue, UserID: user.ID}
	if err := api.tokens.SaveVerificationToken(c, token); err != nil {
		log.Error("failed to save verification token", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"msg": "Error while Saving User"})
		return
	}

	msg := mail.VerificationMessage(api.mailFrom, user.Email, api.confirmationLink(ctx, token.Token, user.ID))
	if err := api.mailer.Send(c, msg); err != nil {
		log.Error("failed to send verification email", sl.Err(err))
		api.metrics.EmailsSent.WithLabelValues("failed").Inc()
		api.metrics.Registrations.WithLabelValues("mail_failed").Inc()
		ctx.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	api.metrics.EmailsSent.WithLabelValues("sent").Inc()
	api.metrics.Registrations.WithLabelValues("created").Inc()

	log.Info("user registered", slog.String("user_id", user.ID), slog.String("role", user.Role))
	ctx.JSON(http.StatusCreated, gin.H{
		"message": "A verification email has been sent to " + user.Email + ".",
		"userDetails": gin.H{
			"id":   user.ID,
			"name": user.Name,
			"role": user.Role,
		},
	})
}

func (api *TaskAPI) login(ctx *gin.Context) {
	const op = "server.login"

	var req models.LoginRequest
	if !bindJSON(ctx, &req) {
		api.metrics.Logins.WithLabelValues("invalid").Inc()
		return
	}

	user, err := api.users.GetUserByEmail(ctx.Request.Context(), normalizeEmail(req.Email))
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			api.metrics.Logins.WithLabelValues("unknown_user").Inc()
			ctx.JSON(http.StatusUnauthorized, gin.H{"message": "User Not Exist"})
			return
		}
		api.log.Error("failed to look up user", slog.String("op", op), sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		api.metrics.Logins.WithLabelValues("wrong_password").Inc()
		ctx.JSON(http.StatusUnauthorized, gin.H{"message": "Incorrect Password !"})
		return
	}

	if !user.IsActive {
		api.metrics.Logins.WithLabelValues("inactive").Inc()
		ctx.JSON(http.StatusUnauthorized, gin.H{"type": "inactive", "msg": "Your account has been deactivated."})
		return
	}
	if !user.IsVerified {
		api.metrics.Logins.WithLabelValues("not_verified").Inc()
		ctx.JSON(http.StatusUnauthorized, gin.H{"type": "not-verified", "msg": "Your account has not been verified."})
		return
	}

	claims := auth.UserClaims{
		ID:              user.ID,
		Name:            user.Name,
		Role:            user.Role,
		PaginationLimit: user.PaginationLimit,
	}
	token, err := api.issuer.Issue(claims, api.cfg.Auth.SessionTTL)
	if err != nil {
		api.log.Error("failed to issue session token", slog.String("op", op), sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
		return
	}

	api.metrics.Logins.WithLabelValues("success").Inc()
	ctx.JSON(http.StatusOK, gin.H{"token": token, "userDetails": claims})
}

func (api *TaskAPI) confirm(ctx *gin.Context) {
	const op = "server.confirm"

	params := models.ConfirmationParams{
		Token:  ctx.Param("token"),
		UserID: ctx.Param("userid"),
	}
	if !validateStruct(ctx, &params) {
		api.metrics.Confirmations.WithLabelValues("invalid").Inc()
		return
	}
	c := ctx.Request.Context()

	token, err := api.tokens.GetVerificationToken(c, params.Token)
	if err != nil {
		if stderrors.Is(err, errors.ErrTokenNotFound) {
			api.metrics.Confirmations.WithLabelValues("token_missing").Inc()
			ctx.JSON(http.StatusBadRequest, gin.H{"type": "not-verified", "msg": "We were unable to find a valid token/Your token my have expired."})
			return
		}
		api.log.Error("failed to load verification token", slog.String("op", op), sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error while verifying the user"})
		return
	}

	if token.UserID != params.UserID {
		api.metrics.Confirmations.WithLabelValues("user_missing").Inc()
		ctx.JSON(http.StatusBadRequest, gin.H{"msg": "We were unable to find a user for this token."})
		return
	}

	user, err := api.users.GetUserByID(c, params.UserID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			api.metrics.Confirmations.WithLabelValues("user_missing").Inc()
			ctx.JSON(http.StatusBadRequest, gin.H{"msg": "We were unable to find a user for this token."})
			return
		}
		api.log.Error("failed to load user", slog.String("op", op), sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error while verifying the user"})
		return
	}
	if user.IsVerified {
		api.metrics.Confirmations.WithLabelValues("already_verified").Inc()
		ctx.JSON(http.StatusBadRequest, gin.H{"type": "already-verified", "msg": "This user has already been verified."})
		return
	}

	if err := api.users.SetUserVerified(c, user.ID); err != nil {
		if stderrors.Is(err, errors.ErrUserAlreadyVerified) {
			api.metrics.Confirmations.WithLabelValues("already_verified").Inc()
			ctx.JSON(http.StatusBadRequest, gin.H{"type": "already-verified", "msg": "This user has already been verified."})
			return
		}
		api.log.Error("failed to mark user verified", slog.String("op", op), sl.Err(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"msg": "Error while updating the token in database"})
		return
	}

	api.metrics.Confirmations.WithLabelValues("verified").Inc()
	ctx.String(http.StatusOK, "The account has been verified. Please log in.")
}

func (api *TaskAPI) me(ctx *gin.Context) {
	identity, _ := IdentityFromContext(ctx)
	ctx.JSON(http.StatusOK, gin.H{"response": "success", "user": identity})
}

func (api *TaskAPI) getWorkers(ctx *gin.Context) {
	var req models.GetWorkersRequest
	if ctx.Request.ContentLength != 0 {
		if !bindJSON(ctx, &req) {
			return
		}
	}

	limit := api.cfg.App.DefaultPaginationLimit
	if identity, ok := IdentityFromContext(ctx); ok && identity.PaginationLimit > 0 {
		limit = identity.PaginationLimit
	}
	c := ctx.Request.Context()

	workers, err := api.users.ListWorkers(c, req.Page*limit, limit)
	if err != nil {
		api.log.Error("failed to list workers", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": "Error while getting the workers"})
		return
	}
	total, err := api.users.CountWorkers(c)
	if err != nil {
		api.log.Error("failed to count workers", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": "Error while getting the workers"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"workers": workers, "total": total, "page": req.Page, "limit": limit})
}

func (api *TaskAPI) getUserByID(ctx *gin.Context) {
	var req models.UserIDRequest
	if !bindJSON(ctx, &req) {
		return
	}

	user, err := api.users.GetUserByID(ctx.Request.Context(), req.UserID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) || stderrors.Is(err, errors.ErrInvalidID) {
			ctx.JSON(http.StatusBadRequest, gin.H{"msg": "User not found"})
			return
		}
		api.log.Error("failed to load user", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": "Error while getting the user"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

func (api *TaskAPI) updateUserDetails(ctx *gin.Context) {
	var req models.UpdateUserDetailsRequest
	if !bindJSON(ctx, &req) {
		return
	}

	identity, _ := IdentityFromContext(ctx)
	isManager := identity.Role == models.RoleManager
	if identity.ID != req.UserID && !isManager {
		ctx.JSON(http.StatusForbidden, gin.H{"message": "Insufficient privileges"})
		return
	}
	if req.IsActive != nil && !isManager {
		ctx.JSON(http.StatusForbidden, gin.H{"message": "Insufficient privileges"})
		return
	}

	update := models.UserDetailsUpdate{
		Name:            req.Name,
		Mobile:          req.Mobile,
		PaginationLimit: req.PaginationLimit,
		IsActive:        req.IsActive,
	}
	if update.IsEmpty() {
		ctx.JSON(http.StatusBadRequest, gin.H{"msg": "Nothing to update"})
		return
	}

	if err := api.users.UpdateUserDetails(ctx.Request.Context(), req.UserID, update); err != nil {
		api.respondStoreError(ctx, err, "Unable to update the user details", "Error while updating the user details")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "Ok", "message": "User details updated successfully"})
}

func (api *TaskAPI) updateRewardPoints(ctx *gin.Context) {
	var req models.UpdateRewardPointsRequest
	if !bindJSON(ctx, &req) {
		return
	}

	reward := models.Reward{TaskID: req.TaskID, RewardPoints: req.RewardPoints}
	if err := api.users.AddRewardPoints(ctx.Request.Context(), req.UserID, reward); err != nil {
		api.respondStoreError(ctx, err, "Unable to update the reward points", "Error while updating the reward points")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "Ok", "message": "Reward points updated successfully"})
}

// respondStoreError maps a failed mutation. Unknown ids and statuses are
// client errors; a write that changed nothing and any store failure are 500s.
func (api *TaskAPI) respondStoreError(ctx *gin.Context, err error, noEffectMsg, failureMsg string) {
	switch {
	case stderrors.Is(err, errors.ErrInvalidID):
		respondValidation(ctx, []models.FieldError{{Field: "id", Message: errors.ErrInvalidID.Error()}})
	case stderrors.Is(err, errors.ErrInvalidStatus):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": invalidStatusMessage})
	case stderrors.Is(err, errors.ErrUserNotFound), stderrors.Is(err, errors.ErrTaskNotFound):
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "Error", "error": err.Error()})
	case stderrors.Is(err, errors.ErrNoEffect):
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": noEffectMsg})
	default:
		api.log.Error(failureMsg, sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "error": failureMsg})
	}
}
