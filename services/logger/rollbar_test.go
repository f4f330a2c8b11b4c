package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

func TestRollbarLogger_Fields(t *testing.T) {
	core_, logs := observer.New(zap.DebugLevel)
	conf := core.NewTestConfig()
	conf.Debug = true
	l := NewRollbarLogger(zap.New(core_), conf)

	acc := account.Account{ID: "acc-1", FirstName: "Ada", LastName: "Obi", Email: "ada@example.com", Role: account.RoleAdmin}
	l.Error("approving account", errors.New("boom"), map[string]interface{}{"target": "acc-2"}, acc)
	l.Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "approving account", entries[0].Message)
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "acc-2", ctx["target"])
	assert.Equal(t, "acc-1", ctx["account_id"])
	assert.Equal(t, account.RoleAdmin, ctx["role"])

	assert.Equal(t, "plain", entries[1].Message)
	assert.Empty(t, entries[1].ContextMap())
}
