// internal/flow/signup_test.go
package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/signupflow/internal/config"
	"github.com/xkilldash9x/signupflow/internal/identity"
)

var testIdentity = identity.Identity{
	FirstName: "Ada",
	LastName:  "Lovelace",
	Email:     "abcdefghij@mail.example",
	Password:  "Secr3t!Passw0rd#",
}

func newTestDriver(t *testing.T, session config.SessionConfig) *Driver {
	t.Helper()
	d, err := NewDriver(config.NewDefaultConfig().Site, session, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func TestNewDriver(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		d := newTestDriver(t, config.SessionConfig{})
		assert.Equal(t, defaultSettleTimeout, d.session.SettleTimeout)
		assert.Equal(t, defaultTrialTimeout, d.session.TrialTimeout)
		assert.Equal(t, defaultSubscriptionsTimeout, d.session.SubscriptionsTimeout)
		assert.Equal(t, defaultModalTimeout, d.session.ModalTimeout)
		assert.True(t, d.trialPattern.MatchString("https://client.example.io/api/subscriptions/users/42/trial"))
	})

	t.Run("InvalidTrialPattern", func(t *testing.T) {
		site := config.NewDefaultConfig().Site
		site.TrialEndpointPattern = "("
		_, err := NewDriver(site, config.SessionConfig{}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("SignupURL", func(t *testing.T) {
		site := config.NewDefaultConfig().Site
		site.BaseURL = "https://client.example.io/"
		site.SignupPath = "signup"
		d, err := NewDriver(site, config.SessionConfig{}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "https://client.example.io/signup", d.signupURL())
	})
}

func TestSubmitSignup(t *testing.T) {
	t.Run("FillsAndSubmits", func(t *testing.T) {
		d := newTestDriver(t, config.SessionConfig{})
		page := newFakePage()

		require.NoError(t, d.SubmitSignup(context.Background(), page, testIdentity))

		want := []string{
			"navigate https://client.example.io/signup",
			`fill input[name="firstName"]=Ada`,
			`fill input[name="lastName"]=Lovelace`,
			`fill input[name="email"]=abcdefghij@mail.example`,
			`fill input[name="password"]=Secr3t!Passw0rd#`,
			`fill input[name="confirmPassword"]=Secr3t!Passw0rd#`,
			"clicktext Sign up",
			"settle",
		}
		if diff := cmp.Diff(want, page.actions()); diff != "" {
			t.Errorf("signup actions mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, []string{"signup-filled", "signup-submitted"}, page.checkpoints())
	})

	t.Run("MissingField", func(t *testing.T) {
		d := newTestDriver(t, config.SessionConfig{})
		page := newFakePage()
		page.failFill[`input[name="email"]`] = context.DeadlineExceeded

		err := d.SubmitSignup(context.Background(), page, testIdentity)

		var uiErr *UIError
		require.ErrorAs(t, err, &uiErr)
		assert.Equal(t, "signup", uiErr.Step)
		assert.Equal(t, `input[name="email"]`, uiErr.Selector)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotContains(t, page.actions(), "clicktext Sign up")
		assert.Contains(t, page.checkpoints(), "signup-failed")
	})

	t.Run("MissingSubmitControl", func(t *testing.T) {
		d := newTestDriver(t, config.SessionConfig{})
		page := newFakePage()
		page.failClick["Sign up"] = errors.New("no node")

		err := d.SubmitSignup(context.Background(), page, testIdentity)

		var uiErr *UIError
		require.ErrorAs(t, err, &uiErr)
		assert.Equal(t, `control "Sign up"`, uiErr.Selector)
	})

	t.Run("SettleFailureIsSwallowed", func(t *testing.T) {
		d := newTestDriver(t, config.SessionConfig{SettleTimeout: time.Millisecond})
		page := newFakePage()
		page.settleErr = context.DeadlineExceeded

		assert.NoError(t, d.SubmitSignup(context.Background(), page, testIdentity))
	})
}
