package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/retailcore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SetupValidator names fields by their json tag in validation errors and
// lets numeric tags (gt, gte, required) apply to decimal amounts.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
}

// HandleValidationError writes a 400 listing each invalid field.
func HandleValidationError(c *gin.Context, err error) {
	var details []dto.ValidationDetail
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details = append(details, dto.ValidationDetail{
				Field:   fe.Field(),
				Message: validationMessage(fe),
				Tag:     fe.Tag(),
			})
		}
	}
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", requestID(c), details))
}

var tagMessages = map[string]string{
	"required": "is required",
	"uuid":     "must be a UUID",
	"oneof":    "must be one of: ",
	"gt":       "must be greater than ",
	"gte":      "must be at least ",
	"lt":       "must be less than ",
	"lte":      "must be at most ",
	"min":      "must be at least ",
	"max":      "must be at most ",
	"dive":     "contains an invalid entry",
}

func validationMessage(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.HasSuffix(msg, " ") {
		msg += fe.Param()
		if fe.Kind() == reflect.String && (fe.Tag() == "min" || fe.Tag() == "max") {
			msg += " characters"
		}
	}
	return msg
}
