package passwordcheck

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"towebp-server/commons"
	"unicode"
)

type rule struct {
	ok  func(string) bool
	msg string
}

var rules = []rule{
	{func(s string) bool { return len([]rune(s)) >= 8 }, "password must be at least 8 characters long"},
	{containsClass(unicode.IsUpper), "password must contain at least one uppercase letter"},
	{containsClass(unicode.IsLower), "password must contain at least one lowercase letter"},
	{containsClass(unicode.IsDigit), "password must contain at least one digit"},
	{containsClass(func(r rune) bool { return unicode.IsSymbol(r) || unicode.IsPunct(r) }), "password must contain at least one special character (e.g., !@#$%)"},
}

func ValidatePassword(ctx context.Context, password string) error {
	for _, r := range rules {
		if !r.ok(password) {
			return errors.New(r.msg)
		}
	}

	if commons.GetEnv("PWNED_PASSWORDS_ENABLED", "true") == "true" {
		pwned, err := checkPasswordPwned(ctx, password)
		if err != nil {
			commons.Logger.Error("Error checking pwned passwords:", err)
		}
		if pwned {
			return errors.New("password has been found in data breaches (pwned); choose a different one")
		}
	}

	return nil
}

func containsClass(class func(rune) bool) func(string) bool {
	return func(s string) bool {
		for _, r := range s {
			if class(r) {
				return true
			}
		}
		return false
	}
}

func checkPasswordPwned(ctx context.Context, password string) (bool, error) {
	hasher := sha1.New()
	hasher.Write([]byte(password))
	hash := strings.ToUpper(hex.EncodeToString(hasher.Sum(nil)))

	prefix, suffix := hash[:5], hash[5:]
	url := fmt.Sprintf("https://api.pwnedpasswords.com/range/%s", prefix)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("HIBP API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read HIBP response: %w", err)
	}

	for _, line := range strings.Split(string(body), "\n") {
		if parts := strings.Split(line, ":"); len(parts) == 2 {
			if strings.TrimSpace(parts[0]) == suffix {
				return true, nil
			}
		}
	}
	return false, nil
}
