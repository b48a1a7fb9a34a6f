// File: internal/identity/login.go
package identity

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/signupflow/internal/config"
)

const (
	DefaultLoginPrefix = "romani"
	DefaultSuffixLen   = 6

	loginSuffixAlphabet = lowerLetters + digits
)

// LoginStrategy produces the handle submitted on the trial form.
type LoginStrategy interface {
	DesiredLogin() (string, error)
}

// RandomSuffix yields Prefix followed by Length random lowercase alphanumerics.
type RandomSuffix struct {
	Prefix string
	Length int
}

func (r RandomSuffix) DesiredLogin() (string, error) {
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultLoginPrefix
	}
	length := r.Length
	if length <= 0 {
		length = DefaultSuffixLen
	}
	suffix, err := randomString(loginSuffixAlphabet, length)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

// Fixed always yields the same login.
type Fixed struct {
	Login string
}

func (f Fixed) DesiredLogin() (string, error) {
	if f.Login == "" {
		return "", errors.New("fixed login strategy has no login configured")
	}
	return f.Login, nil
}

// StrategyFromConfig selects the strategy named by cfg.LoginStrategy.
func StrategyFromConfig(cfg config.IdentityConfig) (LoginStrategy, error) {
	switch cfg.LoginStrategy {
	case "", "random":
		return RandomSuffix{Prefix: cfg.LoginPrefix, Length: DefaultSuffixLen}, nil
	case "fixed":
		return Fixed{Login: cfg.FixedLogin}, nil
	default:
		return nil, fmt.Errorf("unknown login strategy %q", cfg.LoginStrategy)
	}
}
