// File: internal/identity/identity.go
package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/xkilldash9x/signupflow/internal/config"
)

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	symbols      = "!#$%&*+-=?@^_"

	// LocalPartLength is the length of every generated mailbox local part.
	LocalPartLength = 10
	// PasswordLength is the length of every generated password.
	PasswordLength = 16
)

var (
	firstNames = []string{"Anna", "Maria", "Elena", "Olga", "Irina", "Daria", "Sofia", "Alina"}
	lastNames  = []string{"Petrova", "Ivanova", "Smirnova", "Kuznetsova", "Popova", "Volkova", "Sokolova"}
)

// Identity is the set of values typed into the signup form. Email always
// equals the provisioned mailbox address.
type Identity struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// NewIdentity builds the signup identity for email. Names and password come
// from cfg when set and are generated otherwise.
func NewIdentity(cfg config.IdentityConfig, email string) (Identity, error) {
	id := Identity{
		FirstName: cfg.FirstName,
		LastName:  cfg.LastName,
		Email:     email,
		Password:  cfg.Password,
	}

	var err error
	if id.FirstName == "" {
		if id.FirstName, err = pick(firstNames); err != nil {
			return Identity{}, err
		}
	}
	if id.LastName == "" {
		if id.LastName, err = pick(lastNames); err != nil {
			return Identity{}, err
		}
	}
	if id.Password == "" {
		if id.Password, err = Password(); err != nil {
			return Identity{}, err
		}
	}
	return id, nil
}

// LocalPart returns exactly LocalPartLength random lowercase ASCII letters.
func LocalPart() (string, error) {
	return randomString(lowerLetters, LocalPartLength)
}

// Password returns a PasswordLength character password containing at least
// one upper case letter, lower case letter, digit and symbol.
func Password() (string, error) {
	classes := []string{upperLetters, lowerLetters, digits, symbols}
	all := upperLetters + lowerLetters + digits + symbols

	buf := make([]byte, 0, PasswordLength)
	for _, class := range classes {
		c, err := randomByte(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < PasswordLength {
		c, err := randomByte(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates so the guaranteed classes are not always up front.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

func randomString(alphabet string, n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		c, err := randomByte(alphabet)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}
	return string(buf), nil
}

func randomByte(alphabet string) (byte, error) {
	i, err := randomInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return int(v.Int64()), nil
}

func pick(values []string) (string, error) {
	i, err := randomInt(len(values))
	if err != nil {
		return "", err
	}
	return values[i], nil
}
