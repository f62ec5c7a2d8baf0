package server

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"taskmanager/internal/domain/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
)

// fieldMessages are the client-facing messages per request field, keyed
// by json name.
var fieldMessages = map[string]string{
	"name":             "Please enter a valid name",
	"email":            "Please enter a valid email",
	"password":         "Please enter a valid password",
	"mobile":           "Please enter a valid mobile number",
	"token":            "Please send a valid token",
	"userid":           "Please send a proper user id",
	"page":             "Please send a valid page number",
	"pagination_limit": "Please send a valid pagination limit",
	"task_id":          "Please send a valid task Id",
	"reward_points":    "Please send valid reward points",
	"id":               "Please send a valid task Id",
	"taskname":         "Please send a proper task name",
	"description":      "Description is required",
	"priority":         "Please send a priority",
	"status":           "Please send a valid status",
	"estimatedTime":    "Please send a proper estimatedTime",
	"category":         "Category is required",
	"createdById":      "Please send created by Id",
	"assignedToId":     "Assigned to field is required",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func fieldError(field string, value interface{}) models.FieldError {
	msg, ok := fieldMessages[field]
	if !ok {
		msg = "Invalid value"
	}
	return models.FieldError{Field: field, Message: msg, Value: value}
}

func validationErrors(err error) []models.FieldError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []models.FieldError{{Field: "body", Message: "Invalid request body"}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, verr := range verrs {
		value := verr.Value()
		if verr.Field() == "password" {
			value = nil
		}
		out = append(out, fieldError(verr.Field(), value))
	}
	return out
}

func respondValidation(ctx *gin.Context, errs []models.FieldError) {
	ctx.JSON(http.StatusBadRequest, gin.H{"errors": errs})
}

// bindJSON decodes and validates the body into req, writing the 400
// response itself when either step fails.
func bindJSON(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		respondValidation(ctx, []models.FieldError{{Field: "body", Message: "Invalid request body"}})
		return false
	}
	return validateStruct(ctx, req)
}

func validateStruct(ctx *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		respondValidation(ctx, validationErrors(err))
		return false
	}
	return true
}

var estimatedTimeLayouts = []string{time.RFC3339, "2006-01-02"}

func parseEstimatedTime(s string) (time.Time, bool) {
	for _, layout := range estimatedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
