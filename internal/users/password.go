package users

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

//go:embed common_passwords.txt
var commonPasswordsFile []byte

// PasswordViolation is one reason a password was rejected.
type PasswordViolation struct {
	Code    string
	Message string
}

// UserAttributes are the account attributes a password must not resemble.
type UserAttributes struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// PasswordValidator checks password strength. Implementations must be safe
// for concurrent use.
type PasswordValidator interface {
	Validate(password string, user UserAttributes) []PasswordViolation
}

// PasswordRule is a single strength rule.
type PasswordRule interface {
	Check(password string, user UserAttributes) *PasswordViolation
}

// PasswordPolicy runs every rule and collects all violations.
type PasswordPolicy []PasswordRule

// Validate implements PasswordValidator.
func (p PasswordPolicy) Validate(password string, user UserAttributes) []PasswordViolation {
	var out []PasswordViolation
	for _, rule := range p {
		if v := rule.Check(password, user); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// DefaultPasswordPolicy returns NewPasswordPolicy(8).
func DefaultPasswordPolicy() PasswordPolicy {
	return NewPasswordPolicy(8)
}

// NewPasswordPolicy returns the standard rule set with the given minimum
// length: common-password list, not entirely numeric, not similar to the user.
func NewPasswordPolicy(minLength int) PasswordPolicy {
	return PasswordPolicy{
		MinimumLength(minLength),
		NewCommonPasswords(),
		NumericPassword{},
		UserAttributeSimilarity{MaxSimilarity: 0.7},
	}
}

// MinimumLength rejects passwords shorter than the given number of characters.
type MinimumLength int

func (m MinimumLength) Check(password string, _ UserAttributes) *PasswordViolation {
	if len([]rune(password)) >= int(m) {
		return nil
	}
	return &PasswordViolation{
		Code:    "password_too_short",
		Message: fmt.Sprintf("This password is too short. It must contain at least %d characters.", int(m)),
	}
}

// CommonPasswords rejects passwords found on a list of frequently used ones.
type CommonPasswords struct {
	set map[string]struct{}
}

// NewCommonPasswords loads the built-in list.
func NewCommonPasswords() *CommonPasswords {
	set := make(map[string]struct{}, 256)
	sc := bufio.NewScanner(bytes.NewReader(commonPasswordsFile))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[strings.ToLower(line)] = struct{}{}
	}
	return &CommonPasswords{set: set}
}

func (c *CommonPasswords) Check(password string, _ UserAttributes) *PasswordViolation {
	if _, ok := c.set[strings.ToLower(strings.TrimSpace(password))]; !ok {
		return nil
	}
	return &PasswordViolation{Code: "password_too_common", Message: "This password is too common."}
}

// NumericPassword rejects passwords made only of digits.
type NumericPassword struct{}

func (NumericPassword) Check(password string, _ UserAttributes) *PasswordViolation {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return &PasswordViolation{Code: "password_entirely_numeric", Message: "This password is entirely numeric."}
}

var attributeSplit = regexp.MustCompile(`\W+`)

// UserAttributeSimilarity rejects passwords whose similarity ratio to the
// username, email (whole, local part or any word of it) or names reaches
// MaxSimilarity. Attribute parts shorter than three characters are ignored.
type UserAttributeSimilarity struct {
	MaxSimilarity float64
}

func (u UserAttributeSimilarity) Check(password string, user UserAttributes) *PasswordViolation {
	pw := strings.ToLower(password)
	attrs := []struct{ label, value string }{
		{"username", user.Username},
		{"email address", user.Email},
		{"first name", user.FirstName},
		{"last name", user.LastName},
	}
	for _, a := range attrs {
		value := strings.ToLower(a.value)
		if value == "" {
			continue
		}
		parts := append(attributeSplit.Split(value, -1), value)
		if local, _, ok := strings.Cut(value, "@"); ok {
			parts = append(parts, local)
		}
		for _, part := range parts {
			if len([]rune(part)) < 3 {
				continue
			}
			if similarity(pw, part) >= u.MaxSimilarity {
				return &PasswordViolation{
					Code:    "password_too_similar",
					Message: fmt.Sprintf("The password is too similar to the %s.", a.label),
				}
			}
		}
	}
	return nil
}

// similarity returns 2*LCS/(len(a)+len(b)), in [0, 1].
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}

// HashPassword returns a bcrypt hash of password. The password is first
// reduced with SHA-256 so inputs longer than bcrypt's 72-byte limit are
// accepted and fully significant.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword(prehash(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a hash from HashPassword.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)) == nil
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
