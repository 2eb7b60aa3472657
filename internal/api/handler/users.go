package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/profilehub/internal/identity"
	"github.com/jmerrifield20/profilehub/internal/users"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxMemoryBytes   = 8 << 20
)

// userSvc is the interface expected by UserHandler, satisfied by *users.Service.
type userSvc interface {
	Register(ctx context.Context, in users.SignupInput) (*users.Account, error)
	VerifyEmail(ctx context.Context, token string) (*users.Account, error)
	GetByUsername(ctx context.Context, username string) (*users.Account, error)
	List(ctx context.Context, limit, offset int) ([]*users.Account, error)
}

// UserHandler serves signup, email verification and account reads.
type UserHandler struct {
	users         userSvc
	imageURL      users.ImageURLFunc
	maxImageBytes int64
	logger        *zap.Logger
}

// NewUserHandler creates a UserHandler. imageURL turns stored media keys
// into public URLs in responses.
func NewUserHandler(svc userSvc, imageURL users.ImageURLFunc, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:         svc,
		imageURL:      imageURL,
		maxImageBytes: users.DefaultMaxImageBytes,
		logger:        logger,
	}
}

// SetMaxImageBytes sets the largest image file read from a request.
func (h *UserHandler) SetMaxImageBytes(n int64) {
	if n > 0 {
		h.maxImageBytes = n
	}
}

// Register mounts the user routes on the provided router group.
func (h *UserHandler) Register(rg *gin.RouterGroup) {
	u := rg.Group("/users")
	{
		u.POST("/signup", h.Signup)
		u.POST("/verify", h.VerifyEmail)
		u.GET("", h.List)
		u.GET("/:username", h.Get)
	}
}

type verifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// Signup handles POST /users/signup. The payload is a multipart form;
// profile_pic and hero_badge are file parts.
func (h *UserHandler) Signup(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxMemoryBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form data"})
		return
	}

	in, parseErrs := h.bindSignup(c)

	acct, err := h.users.Register(c.Request.Context(), in)
	recordRegistration(err)
	if err != nil {
		h.writeSignupError(c, err, parseErrs)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    users.SerializeAccount(acct, h.imageURL),
		"message": "Account created. Check your email to verify your account.",
	})
}

// bindSignup reads the form into a SignupInput. Integer fields that are
// present but malformed are left nil and reported in the returned errors,
// which take precedence over the resulting "required" errors.
func (h *UserHandler) bindSignup(c *gin.Context) (users.SignupInput, users.FieldErrors) {
	var errs users.FieldErrors
	intField := func(name string) *int {
		raw, ok := c.GetPostForm(name)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, users.FieldError{Field: name, Code: users.CodeInvalid, Message: "A valid integer is required."})
			return nil
		}
		return &n
	}
	fileField := func(name string) *users.Image {
		fh, err := c.FormFile(name)
		if err != nil {
			return nil
		}
		img, err := h.readImage(fh)
		if err != nil {
			h.logger.Debug("read upload", zap.String("field", name), zap.Error(err))
			errs = append(errs, users.FieldError{
				Field:   name,
				Code:    users.CodeInvalidImage,
				Message: "The submitted file could not be read.",
			})
			return nil
		}
		return img
	}

	in := users.SignupInput{
		Username:             c.PostForm("username"),
		Email:                c.PostForm("email"),
		Password:             c.PostForm("password"),
		PasswordConfirmation: c.PostForm("password_confirmation"),
		FirstName:            c.PostForm("first_name"),
		LastName:             c.PostForm("last_name"),
		City:                 c.PostForm("city"),
		Country:              c.PostForm("country"),
		Age:                  intField("age"),
		Likes:                intField("likes"),
		Followers:            intField("followers"),
		Posts:                intField("posts"),
		ProfilePic:           fileField("profile_pic"),
		HeroBadge:            fileField("hero_badge"),
	}
	return in, errs
}

// readImage reads at most one byte past the size limit so the policy can
// reject oversized files without buffering them whole.
func (h *UserHandler) readImage(fh *multipart.FileHeader) (*users.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &users.Image{Filename: fh.Filename, Data: data}, nil
}

func (h *UserHandler) writeSignupError(c *gin.Context, err error, parseErrs users.FieldErrors) {
	var (
		verr     *users.ValidationError
		conflict *users.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": mergeFieldErrors(verr.Errors, parseErrs).Fields(),
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":  "username or email already registered",
			"fields": conflict.Fields,
		})
	default:
		h.logger.Error("signup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
	}
}

// mergeFieldErrors replaces the errors of every field named in parse with
// the parse errors.
func mergeFieldErrors(errs, parse users.FieldErrors) users.FieldErrors {
	if len(parse) == 0 {
		return errs
	}
	out := make(users.FieldErrors, 0, len(errs)+len(parse))
	for _, e := range errs {
		if !parse.Has(e.Field) {
			out = append(out, e)
		}
	}
	return append(out, parse...)
}

// VerifyEmail handles POST /users/verify. The token is taken from the
// query string or a JSON body.
func (h *UserHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		var req verifyEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
			return
		}
		token = req.Token
	}

	acct, err := h.users.VerifyEmail(c.Request.Context(), token)
	recordVerification(err)
	if err != nil {
		var tokErr *identity.TokenError
		switch {
		case errors.As(err, &tokErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification token", "reason": tokenReason(tokErr)})
		case errors.Is(err, users.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			h.logger.Error("verify email", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "email verified",
		"user":    users.SerializeAccount(acct, h.imageURL),
	})
}

func tokenReason(err *identity.TokenError) string {
	switch {
	case errors.Is(err, identity.ErrExpired):
		return "expired"
	case errors.Is(err, identity.ErrWrongPurpose):
		return "wrong_purpose"
	default:
		return "invalid_signature"
	}
}

// Get handles GET /users/:username.
func (h *UserHandler) Get(c *gin.Context) {
	acct, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, users.SerializeAccount(acct, h.imageURL))
}

// List handles GET /users?limit=&offset=.
func (h *UserHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	accts, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":  users.SerializeAccounts(accts, h.imageURL),
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
