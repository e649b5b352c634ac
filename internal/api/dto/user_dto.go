package dto

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/ads-users/internal/domain"
	"github.com/spec-kit/ads-users/internal/service"
	apperrors "github.com/spec-kit/ads-users/pkg/util/errorutil"
)

// UserRequest is the body accepted by create and update. Every key is
// required; pointers tell an absent key apart from a zero value.
type UserRequest struct {
	FirstName *string `json:"first_name" validate:"required,max=50"`
	LastName  *string `json:"last_name" validate:"required,max=50"`
	Username  *string `json:"username" validate:"required,min=1,max=20"`
	Role      *string `json:"role" validate:"required,oneof=buyer seller admin"`
	Age       *int    `json:"age" validate:"required,min=0,max=150"`
	Locations []int64 `json:"locations" validate:"required,dive,gt=0"`
}

// UserResponse is the serialized form of a user.
type UserResponse struct {
	ID        int64    `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Username  string   `json:"username"`
	Role      string   `json:"role"`
	Age       int      `json:"age"`
	Locations []string `json:"locations"`
	TotalAds  int      `json:"total_ads"`
}

// UserListResponse is one page of users.
type UserListResponse struct {
	Items    []UserResponse `json:"items"`
	Page     int            `json:"page"`
	NumPages int            `json:"num_pages"`
	Total    int            `json:"total"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request and reports failures per JSON field.
func (r *UserRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if idx := strings.IndexByte(field, '['); idx > 0 {
			field = field[:idx]
		}
		if _, seen := details[field]; seen {
			continue
		}
		details[field] = describe(fe)
	}
	return apperrors.NewValidationError("invalid user", details)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must contain positive ids"
	}
	return "is invalid"
}

// ToInput converts a validated request into service input.
func (r *UserRequest) ToInput() service.UserInput {
	input := service.UserInput{LocationIDs: append([]int64{}, r.Locations...)}
	if r.FirstName != nil {
		input.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		input.LastName = *r.LastName
	}
	if r.Username != nil {
		input.Username = *r.Username
	}
	if r.Role != nil {
		input.Role = domain.Role(*r.Role)
	}
	if r.Age != nil {
		input.Age = *r.Age
	}
	return input
}

// NewUserResponse renders a user. Locations are rendered by name.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Role:      string(user.Role),
		Age:       user.Age,
		Locations: user.LocationNames(),
		TotalAds:  user.TotalAds,
	}
}

// NewUserListResponse renders a listing page.
func NewUserListResponse(page *service.UserPage) UserListResponse {
	items := make([]UserResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, NewUserResponse(&page.Items[i]))
	}
	return UserListResponse{
		Items:    items,
		Page:     page.Number,
		NumPages: page.NumPages,
		Total:    page.Total,
	}
}
