package users

import (
	"time"

	"github.com/google/uuid"
)

// Account is the aggregate root of a registered user: the identity record
// plus the profile it owns. Accounts are only created through Service.Register.
type Account struct {
	ID           uuid.UUID `json:"id"         db:"id"`
	Username     string    `json:"username"   db:"username"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name"  db:"last_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Profile      Profile   `json:"profile"`
}

// Profile holds the non-authentication attributes of an account. Exactly one
// exists per account and it is deleted together with it.
type Profile struct {
	AccountID  uuid.UUID `json:"-"           db:"account_id"`
	ProfilePic string    `json:"profile_pic" db:"profile_pic"` // media key
	HeroBadge  string    `json:"hero_badge"  db:"hero_badge"`  // media key
	Age        int       `json:"age"         db:"age"`
	City       string    `json:"city"        db:"city"`
	Country    string    `json:"country"     db:"country"`
	Followers  int       `json:"followers"   db:"followers"`
	Likes      int       `json:"likes"       db:"likes"`
	Posts      int       `json:"posts"       db:"posts"`
	IsVerified bool      `json:"is_verified" db:"is_verified"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`
}

// Image is an uploaded image payload. ContentType is sniffed from Data by
// the transport, never taken from the client.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SignupInput is the raw signup payload as received from a transport.
// Integer fields are pointers so a missing value can be told apart from zero.
type SignupInput struct {
	Username             string `json:"username"              validate:"required,min=4,max=150,username"`
	Email                string `json:"email"                 validate:"required,email,max=150"`
	Password             string `json:"password"              validate:"required,min=8,max=128"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,min=8,max=128"`
	FirstName            string `json:"first_name"            validate:"required,max=150"`
	LastName             string `json:"last_name"             validate:"required,max=150"`
	City                 string `json:"city"                  validate:"required,max=100"`
	Country              string `json:"country"               validate:"required,max=100"`
	Age                  *int   `json:"age"                   validate:"required"`
	Likes                *int   `json:"likes"                 validate:"required"`
	Followers            *int   `json:"followers"             validate:"required"`
	Posts                *int   `json:"posts"                 validate:"required"`
	ProfilePic           *Image `json:"profile_pic"           validate:"required"`
	HeroBadge            *Image `json:"hero_badge"            validate:"required"`
}

// Signup is a validated, normalised signup payload. The password
// confirmation has been checked and dropped.
type Signup struct {
	Username   string
	Email      string
	Password   string
	FirstName  string
	LastName   string
	City       string
	Country    string
	Age        int
	Likes      int
	Followers  int
	Posts      int
	ProfilePic Image
	HeroBadge  Image
}
