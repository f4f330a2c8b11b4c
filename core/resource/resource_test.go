package resource_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/resource"
	inmemdb "github.com/socportal/jumuiya/storage/database/inmem"
	"github.com/socportal/jumuiya/testutil"
)

func newResource(title string) resource.NewResource {
	return resource.NewResource{
		Title:       title,
		Course:      " csc301 ",
		Level:       "300",
		FileName:    "../lecture notes (week 1).pdf",
		ContentType: "Application/PDF",
	}
}

func TestService_Lifecycle(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	owner := env.CreateAccount(t, "owner@example.com", "Imani", "Bello", account.RoleStudent)
	other := env.CreateAccount(t, "other@example.com", "Baraka", "Otieno", account.RoleStudent)
	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)

	_, err := env.Resources.Create(ctx, account.Actor{}, newResource("Notes"))
	assert.ErrorIs(t, err, account.ErrForbidden)

	invalid := newResource("Notes")
	invalid.FileName = ""
	_, err = env.Resources.Create(ctx, owner.Actor(), invalid)
	assert.True(t, core.Is(err, core.KindValidation))

	up, err := env.Resources.Create(ctx, owner.Actor(), newResource("Compiler notes"))
	require.NoError(t, err)
	res := up.Resource
	assert.Equal(t, "CSC301", res.Course)
	assert.Equal(t, "application/pdf", res.ContentType)
	assert.Equal(t, "Imani Bello", res.OwnerName)
	assert.True(t, strings.HasPrefix(res.ObjectKey, "resources/"+res.ID+"/"))
	assert.NotContains(t, res.ObjectKey, "..")
	assert.NotContains(t, res.ObjectKey, " ")
	assert.Contains(t, up.UploadURL, "method=PUT")
	assert.True(t, env.Store.Has(res.ObjectKey))

	list, err := env.Resources.Query(ctx, resource.QueryFilter{Courses: []string{"csc301"}})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.Resources.Download(ctx, account.Actor{}, res.ID)
	assert.ErrorIs(t, err, account.ErrForbidden)
	for want := 1; want <= 2; want++ {
		dl, err := env.Resources.Download(ctx, other.Actor(), res.ID)
		require.NoError(t, err)
		assert.Equal(t, want, dl.Downloads)
		assert.Contains(t, dl.URL, "method=GET")
	}

	_, err = env.Resources.Update(ctx, other.Actor(), res.ID, resource.UpdateResource{Title: "Mine now"})
	assert.ErrorIs(t, err, account.ErrForbidden)
	updated, err := env.Resources.Update(ctx, owner.Actor(), res.ID, resource.UpdateResource{Title: "Compiler notes v2"})
	require.NoError(t, err)
	assert.Equal(t, "Compiler notes v2", updated.Title)
	assert.Equal(t, "CSC301", updated.Course)
	assert.Equal(t, 2, updated.Downloads)

	assert.ErrorIs(t, env.Resources.Delete(ctx, other.Actor(), res.ID), account.ErrForbidden)
	require.NoError(t, env.Resources.Delete(ctx, admin.Actor(), res.ID))
	assert.False(t, env.Store.Has(res.ObjectKey))
	_, err = env.Resources.Get(ctx, res.ID)
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

type failingStore struct{}

func (failingStore) SignedUploadURL(context.Context, string, string) (string, error) {
	return "", errors.New("credentials expired")
}

func (failingStore) SignedDownloadURL(context.Context, string, string) (string, error) {
	return "", errors.New("credentials expired")
}

func (failingStore) Delete(context.Context, string) error { return errors.New("credentials expired") }

func TestService_StoreFailure(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	owner := env.CreateAccount(t, "owner@example.com", "Imani", "Bello", account.RoleStudent)

	svc := resource.NewService(inmemdb.NewResourceRepository(env.DB), failingStore{}, env.Accounts, env.Validate, core.NopLogger{})
	_, err := svc.Create(context.Background(), owner.Actor(), newResource("Notes"))
	assert.True(t, core.Is(err, core.KindDependency))

	list, err := svc.Query(context.Background(), resource.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is stored when the upload cannot be signed")
}
