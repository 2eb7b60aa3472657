package users

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jmerrifield20/profilehub/internal/media"
)

// DefaultMaxImageBytes is the upload size limit used when none is configured.
const DefaultMaxImageBytes = 5 << 20

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// uniquenessChecker is the read side of the store used for the fast-path
// uniqueness check. The store's unique constraints remain the final arbiter.
type uniquenessChecker interface {
	ExistsUsername(ctx context.Context, username string) (bool, error)
	ExistsEmail(ctx context.Context, email string) (bool, error)
}

// Policy validates signup payloads.
type Policy struct {
	validate      *validator.Validate
	passwords     PasswordValidator
	unique        uniquenessChecker
	maxImageBytes int64
}

// NewPolicy creates a Policy. A nil passwords validator selects
// DefaultPasswordPolicy; maxImageBytes <= 0 selects DefaultMaxImageBytes.
func NewPolicy(unique uniquenessChecker, passwords PasswordValidator, maxImageBytes int64) *Policy {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	if passwords == nil {
		passwords = DefaultPasswordPolicy()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &Policy{validate: v, passwords: passwords, unique: unique, maxImageBytes: maxImageBytes}
}

// Validate checks in and returns its normalised form. Field and cross-field
// problems are returned as FieldErrors; a uniqueness failure is reported
// with CodeUnique. The error result is reserved for lookup failures.
func (p *Policy) Validate(ctx context.Context, in SignupInput) (*Signup, FieldErrors, error) {
	in = normalize(in)

	errs := p.fieldErrors(in)
	if in.ProfilePic != nil {
		errs = append(errs, p.checkImage("profile_pic", in.ProfilePic)...)
	}
	if in.HeroBadge != nil {
		errs = append(errs, p.checkImage("hero_badge", in.HeroBadge)...)
	}
	if !errs.Has("password") {
		for _, v := range p.passwords.Validate(in.Password, UserAttributes{
			Username:  in.Username,
			Email:     in.Email,
			FirstName: in.FirstName,
			LastName:  in.LastName,
		}) {
			errs = append(errs, FieldError{Field: "password", Code: v.Code, Message: v.Message})
		}
	}
	if in.Password != "" && in.PasswordConfirmation != "" && in.Password != in.PasswordConfirmation {
		errs = append(errs, FieldError{
			Field:   NonFieldErrors,
			Code:    CodePasswordMismatch,
			Message: "Passwords must match.",
		})
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	taken, err := p.checkUnique(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if len(taken) > 0 {
		return nil, taken, nil
	}

	return &Signup{
		Username:   in.Username,
		Email:      in.Email,
		Password:   in.Password,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		City:       in.City,
		Country:    in.Country,
		Age:        *in.Age,
		Likes:      *in.Likes,
		Followers:  *in.Followers,
		Posts:      *in.Posts,
		ProfilePic: *in.ProfilePic,
		HeroBadge:  *in.HeroBadge,
	}, nil, nil
}

func normalize(in SignupInput) SignupInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.City = strings.TrimSpace(in.City)
	in.Country = strings.TrimSpace(in.Country)
	return in
}

func (p *Policy) fieldErrors(in SignupInput) FieldErrors {
	err := p.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{{Field: NonFieldErrors, Code: CodeInvalid, Message: err.Error()}}
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		code, msg := describe(fe)
		out = append(out, FieldError{Field: fe.Field(), Code: code, Message: msg})
	}
	return out
}

func describe(fe validator.FieldError) (code, message string) {
	switch fe.Tag() {
	case "required":
		return CodeRequired, "This field is required."
	case "min":
		return CodeMinLength, fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return CodeMaxLength, fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "email":
		return CodeInvalid, "Enter a valid email address."
	case "username":
		return CodeInvalid, "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	default:
		return CodeInvalid, fmt.Sprintf("Invalid value (failed on %q).", fe.Tag())
	}
}

func (p *Policy) checkImage(field string, img *Image) FieldErrors {
	if len(img.Data) == 0 {
		return FieldErrors{{Field: field, Code: CodeRequired, Message: "The submitted file is empty."}}
	}
	if int64(len(img.Data)) > p.maxImageBytes {
		return FieldErrors{{
			Field:   field,
			Code:    CodeImageTooLarge,
			Message: fmt.Sprintf("Ensure this file is no larger than %d bytes.", p.maxImageBytes),
		}}
	}
	ct, ok := media.DetectImageType(img.Data)
	if !ok {
		return FieldErrors{{
			Field:   field,
			Code:    CodeInvalidImage,
			Message: "Upload a valid image. The file you uploaded was either not an image or a corrupted image.",
		}}
	}
	img.ContentType = ct
	return nil
}

func (p *Policy) checkUnique(ctx context.Context, in SignupInput) (FieldErrors, error) {
	var out FieldErrors
	taken, err := p.unique.ExistsUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		out = append(out, FieldError{Field: "username", Code: CodeUnique, Message: "A user with that username already exists."})
	}
	taken, err = p.unique.ExistsEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		out = append(out, FieldError{Field: "email", Code: CodeUnique, Message: "A user with that email already exists."})
	}
	return out, nil
}
