package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Jane.Doe@Example.COM ")
	if err != nil || got != "jane.doe@example.com" {
		t.Fatalf("got %q err=%v", got, err)
	}
	for _, bad := range []string{"", "jane", "jane@", "Jane <jane@example.com>", "jane@localhost", "@example.com"} {
		if _, err := NormalizeEmail(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected invalid for %q, got %v", bad, err)
		}
	}
}

func TestCheckPassword(t *testing.T) {
	weak := CheckPassword("password")
	if weak.Strong || weak.Score >= MinPasswordScore || weak.Reason == "" {
		t.Fatalf("expected weak, got %+v", weak)
	}
	strong := CheckPassword("correct-horse-battery-staple-91!")
	if !strong.Strong {
		t.Fatalf("expected strong, got %+v", strong)
	}
	if long := CheckPassword(strings.Repeat("x", 73)); long.Strong {
		t.Fatalf("expected overlong password rejected")
	}
}

func TestCheckPasswordPenalizesUserInputs(t *testing.T) {
	pw := "janedoe1987"
	plain := CheckPassword(pw)
	personal := CheckPassword(pw, "janedoe1987@example.com", "janedoe1987")
	if personal.Score > plain.Score {
		t.Fatalf("user inputs should not raise score: %d > %d", personal.Score, plain.Score)
	}
	if personal.Strong {
		t.Fatalf("password equal to login should be weak")
	}
}

func TestHashAndVerify(t *testing.T) {
	h, err := HashPassword("s3cret-Value!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(h, "s3cret-Value!") || VerifyPassword(h, "nope") {
		t.Fatalf("verify mismatch")
	}
}

func TestForbiddenError(t *testing.T) {
	err := ForbiddenError{Action: "edit message", Reason: "not the sender"}
	if err.Error() != "edit message forbidden: not the sender" {
		t.Fatalf("unexpected %q", err.Error())
	}
}
