package services

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// memberFields are the user-editable columns of a member with their limits.
type memberFields struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Born     *int    `json:"born" validate:"omitempty,min=1000,max=2100"`
	Died     *int    `json:"died" validate:"omitempty,min=1000,max=2100"`
	Relation *string `json:"relation" validate:"omitempty,max=50"`
	Note     *string `json:"note" validate:"omitempty,max=500"`
	PhotoURL *string `json:"photo_url" validate:"omitempty,max=500"`
}

// ValidateMember checks the editable fields of m and reports the first
// problem as a *genealogy.ValidationError.
func ValidateMember(m *models.Member) error {
	if err := genealogy.ValidateFields(m); err != nil {
		return err
	}
	err := fieldValidator().Struct(memberFields{
		Name:     strings.TrimSpace(m.Name),
		Born:     m.Born,
		Died:     m.Died,
		Relation: m.Relation,
		Note:     m.Note,
		PhotoURL: m.PhotoURL,
	})
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &genealogy.ValidationError{Field: fe.Field(), Message: describe(fe)}
	}
	return err
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}

// blankToNil trims s and maps an empty result to nil.
func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
