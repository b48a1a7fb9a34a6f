// File: internal/mailtm/provisioner.go
package mailtm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/identity"
	"github.com/xkilldash9x/signupflow/internal/metrics"
)

// DefaultMaxCreateAttempts bounds account creation retries on collision.
const DefaultMaxCreateAttempts = 10

// API is the subset of Client the provisioner needs.
type API interface {
	Domains(ctx context.Context) ([]Domain, error)
	CreateAccount(ctx context.Context, address, password string) (*Account, error)
	Token(ctx context.Context, address, password string) (string, string, error)
}

// Provisioner creates one fresh disposable mailbox per call.
type Provisioner struct {
	api         API
	maxAttempts int
	logger      *zap.Logger
	metrics     *metrics.Metrics

	// Generators; replaced in tests.
	localPart func() (string, error)
	password  func() (string, error)
}

// NewProvisioner wires a provisioner. maxAttempts <= 0 selects the default.
func NewProvisioner(api API, maxAttempts int, m *metrics.Metrics, logger *zap.Logger) *Provisioner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxCreateAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		api:         api,
		maxAttempts: maxAttempts,
		logger:      logger.Named("provisioner"),
		metrics:     m,
		localPart:   identity.LocalPart,
		password:    identity.Password,
	}
}

// CreateMailbox picks the first active domain, registers a random
// `{10 lowercase letters}@domain` address (regenerating on collision) and
// exchanges the credentials for a bearer token.
func (p *Provisioner) CreateMailbox(ctx context.Context) (*Mailbox, error) {
	domains, err := p.api.Domains(ctx)
	if err != nil {
		return nil, err
	}
	domain, err := activeDomain(domains)
	if err != nil {
		return nil, err
	}

	password, err := p.password()
	if err != nil {
		return nil, err
	}

	var (
		address string
		account *Account
	)
	for attempt := 1; ; attempt++ {
		local, err := p.localPart()
		if err != nil {
			return nil, err
		}
		address = local + "@" + domain

		account, err = p.api.CreateAccount(ctx, address, password)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrAddressTaken) {
			return nil, err
		}

		p.metrics.MailboxCollision()
		p.logger.Debug("Address collision, regenerating.", zap.String("address", address), zap.Int("attempt", attempt))
		if attempt >= p.maxAttempts {
			return nil, &ProviderError{
				Op:  "create account",
				Err: fmt.Errorf("gave up after %d attempts: %w", attempt, ErrAddressTaken),
			}
		}
	}

	token, _, err := p.api.Token(ctx, address, password)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Mailbox provisioned.", zap.String("address", address))
	return &Mailbox{
		Address:   address,
		Password:  password,
		Token:     token,
		AccountID: account.ID,
	}, nil
}

func activeDomain(domains []Domain) (string, error) {
	for _, d := range domains {
		if d.IsActive && !d.IsPrivate && d.Domain != "" {
			return d.Domain, nil
		}
	}
	return "", &ProviderError{Op: "list domains", Err: ErrNoActiveDomain}
}
