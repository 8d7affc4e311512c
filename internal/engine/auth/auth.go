package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/nbutton23/zxcvbn-go"
	"golang.org/x/crypto/bcrypt"

	"cisline/internal/repo"
)

// MinPasswordScore is the lowest zxcvbn score (0-4) accepted for new accounts.
const MinPasswordScore = 3

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// ForbiddenError indicates the principal may not act on the resource.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s forbidden", e.Action)
	}
	return fmt.Sprintf("%s forbidden: %s", e.Action, e.Reason)
}

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password too weak")
)

// NormalizeEmail checks the address shape and returns it trimmed and lowercased.
// Display-name forms like "Jane <jane@x.io>" are rejected.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return strings.ToLower(email), nil
}

type EmailCheck struct {
	Email     string `json:"email"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type PasswordCheck struct {
	Score     int     `json:"score" minimum:"0" maximum:"4"`
	Strong    bool    `json:"strong"`
	Entropy   float64 `json:"entropy"`
	CrackTime string  `json:"crack_time"`
	Reason    string  `json:"reason,omitempty"`
}

// Service answers credential questions for the create-profile gate.
type Service struct {
	Repo repo.Repo
}

func (s Service) CheckEmail(ctx context.Context, email string) (EmailCheck, error) {
	norm, err := NormalizeEmail(email)
	if err != nil {
		return EmailCheck{Email: strings.TrimSpace(email), Reason: "invalid"}, nil
	}
	taken, err := s.Repo.EmailTaken(ctx, norm)
	if err != nil {
		return EmailCheck{}, err
	}
	res := EmailCheck{Email: norm, Valid: true, Available: !taken}
	if taken {
		res.Reason = "taken"
	}
	return res, nil
}

// CheckPassword scores password against zxcvbn with the user's own
// identifiers as penalized inputs.
func CheckPassword(password string, userInputs ...string) PasswordCheck {
	if len(password) > maxPasswordBytes {
		return PasswordCheck{Reason: "longer than 72 bytes"}
	}
	var inputs []string
	for _, in := range userInputs {
		if in = strings.TrimSpace(in); in != "" {
			inputs = append(inputs, in)
		}
	}
	m := zxcvbn.PasswordStrength(password, inputs)
	res := PasswordCheck{Score: m.Score, Entropy: m.Entropy, CrackTime: m.CrackTimeDisplay, Strong: m.Score >= MinPasswordScore}
	if !res.Strong {
		res.Reason = fmt.Sprintf("score %d below %d", m.Score, MinPasswordScore)
	}
	return res
}

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
