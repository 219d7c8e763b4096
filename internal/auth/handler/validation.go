package handler

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	personNamePattern = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	handlePattern     = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	registerOnce sync.Once
	registerErr  error
)

// registerValidators adds the custom tags used by the request structs to
// gin's shared validator.
func registerValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("handler: gin validator is not go-playground/validator")
			return
		}
		if err := v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
			return personNamePattern.MatchString(fl.Field().String())
		}); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
			return handlePattern.MatchString(fl.Field().String())
		})
	})
	return registerErr
}

type signUpRequest struct {
	Name     string `form:"name" json:"name" binding:"required,max=50,personname"`
	Username string `form:"username" json:"username" binding:"required,min=3,max=20,handle"`
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required,min=8,max=100"`
}

type signInRequest struct {
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required"`
}

type usernameQuery struct {
	Username string `form:"username" binding:"required,min=3,max=20,handle"`
}

// fieldMessages holds the user-facing message per field and failed tag.
// "*" matches any tag for that field.
var fieldMessages = map[string]map[string]string{
	"name": {
		"required":   "Name is required",
		"max":        "Name must be no more than 50 characters",
		"personname": "Name can only contain letters, spaces, hyphens, and apostrophes",
	},
	"username": {
		"required": "Username is required",
		"min":      "Username must be at least 3 characters",
		"max":      "Username must be at most 20 characters",
		"handle":   "Username can only contain letters, numbers, and underscores",
	},
	"email": {
		"*": "Please provide a valid email address",
	},
	"password": {
		"required": "Password is required",
		"min":      "Password must be at least 8 characters",
		"max":      "Password must be no more than 100 characters",
	},
}

// fieldErrors converts validator errors into field → message. It returns
// nil when err is not a validation failure, e.g. a malformed body.
func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if _, seen := out[field]; seen {
			continue
		}
		msgs := fieldMessages[field]
		msg, ok := msgs[fe.Tag()]
		if !ok {
			msg, ok = msgs["*"]
		}
		if !ok {
			msg = "Invalid value"
		}
		out[field] = msg
	}
	return out
}
