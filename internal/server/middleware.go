package server

import (
	"compress/gzip"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	identityKey  = "identity"
	requestIDKey = "request_id"

	RequestIDHeader = "X-Request-ID"
)

// IdentityResolver is the slice of the user store the guard needs.
type IdentityResolver interface {
	GetUserIdentity(ctx context.Context, id string) (*models.Identity, error)
}

func extractToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ctx.Query("token")
}

// AuthGuard resolves the caller from a bearer token (header or ?token=)
// and stores the identity on the context for the handlers behind it.
func AuthGuard(verifier TokenIssuer, identities IdentityResolver) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := extractToken(ctx)
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Auth Error"})
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid Token"})
			return
		}

		identity, err := identities.GetUserIdentity(ctx.Request.Context(), claims.User.ID)
		if err != nil {
			if stderrors.Is(err, errors.ErrUserNotFound) || stderrors.Is(err, errors.ErrInvalidID) {
				ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Insufficient privileges"})
				return
			}
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": errors.ErrInternalServer.Error()})
			return
		}

		ctx.Set(identityKey, identity)
		ctx.Next()
	}
}

// RequireRole must run after AuthGuard.
func RequireRole(role string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		identity, ok := IdentityFromContext(ctx)
		if !ok || identity.Role != role {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Insufficient privileges"})
			return
		}
		ctx.Next()
	}
}

func IdentityFromContext(ctx *gin.Context) (*models.Identity, bool) {
	v, exists := ctx.Get(identityKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*models.Identity)
	return identity, ok && identity != nil
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Set(requestIDKey, requestID)
		ctx.Writer.Header().Set(RequestIDHeader, requestID)

		ctx.Next()

		status := ctx.Writer.Status()
		attrs := []any{
			slog.String("request_id", requestID),
			slog.String("method", ctx.Request.Method),
			slog.String("path", ctx.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", ctx.ClientIP()),
		}
		if identity, ok := IdentityFromContext(ctx); ok {
			attrs = append(attrs, slog.String("user_id", identity.ID))
		}
		if len(ctx.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", ctx.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			log.Warn("request", attrs...)
		default:
			log.Info("request", attrs...)
		}
	}
}

type dualCloser struct {
	io.Reader
	gzipReader io.Closer
	bodyCloser io.Closer
}

func (dc *dualCloser) Close() error {
	err1 := dc.gzipReader.Close()
	err2 := dc.bodyCloser.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// GzipRequestDecompress accepts gzip-encoded JSON bodies from clients
// that compress uploads.
func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		encoding := strings.ToLower(ctx.GetHeader("Content-Encoding"))
		if strings.Contains(encoding, "gzip") {
			gr, err := gzip.NewReader(ctx.Request.Body)
			if err != nil {
				ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errors.ErrInvalidGzipRequest.Error()})
				return
			}

			ctx.Request.Body = &dualCloser{
				Reader:     gr,
				gzipReader: gr,
				bodyCloser: ctx.Request.Body,
			}
			ctx.Request.Header.Del("Content-Encoding")
			ctx.Request.Header.Del("Content-Length")
			ctx.Request.ContentLength = -1
		}
		ctx.Next()
	}
}
