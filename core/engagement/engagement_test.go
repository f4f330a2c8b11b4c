package engagement_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/engagement"
	"github.com/socportal/jumuiya/testutil"
)

func TestService_LikeUnlike(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	student := env.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent)
	other := env.CreateAccount(t, "other@example.com", "Baraka", "Otieno", account.RoleStudent)

	post := env.CreatePost(t, admin, "Career fair")
	draft, err := env.Blogs.Create(ctx, student.Actor(), blog.NewPost{Title: "Draft", Content: "C"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		do      func() (engagement.LikeState, error)
		want    engagement.LikeState
		wantErr error
	}{
		{
			name:    "anonymous",
			do:      func() (engagement.LikeState, error) { return env.Engagement.Like(ctx, account.Actor{}, post.ID) },
			wantErr: account.ErrForbidden,
		},
		{
			name:    "unknown post",
			do:      func() (engagement.LikeState, error) { return env.Engagement.Like(ctx, student.Actor(), "nope") },
			wantErr: blog.ErrNotFound,
		},
		{
			name:    "unpublished post",
			do:      func() (engagement.LikeState, error) { return env.Engagement.Like(ctx, student.Actor(), draft.ID) },
			wantErr: blog.ErrNotPublished,
		},
		{
			name: "like",
			do:   func() (engagement.LikeState, error) { return env.Engagement.Like(ctx, student.Actor(), post.ID) },
			want: engagement.LikeState{LikesCount: 1, IsLikedByUser: true},
		},
		{
			name: "like again is idempotent",
			do:   func() (engagement.LikeState, error) { return env.Engagement.Like(ctx, student.Actor(), post.ID) },
			want: engagement.LikeState{LikesCount: 1, IsLikedByUser: true},
		},
		{
			name: "second account",
			do:   func() (engagement.LikeState, error) { return env.Engagement.Like(ctx, other.Actor(), post.ID) },
			want: engagement.LikeState{LikesCount: 2, IsLikedByUser: true},
		},
		{
			name: "unlike",
			do:   func() (engagement.LikeState, error) { return env.Engagement.Unlike(ctx, student.Actor(), post.ID) },
			want: engagement.LikeState{LikesCount: 1},
		},
		{
			name: "unlike again is idempotent",
			do:   func() (engagement.LikeState, error) { return env.Engagement.Unlike(ctx, student.Actor(), post.ID) },
			want: engagement.LikeState{LikesCount: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.do()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_ConcurrentLikes(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	student := env.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent)
	post := env.CreatePost(t, admin, "Career fair")

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.Engagement.Like(ctx, student.Actor(), post.ID)
		}()
	}
	wg.Wait()

	got, err := env.Blogs.Get(ctx, student.Actor(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)
}

func TestService_ViewPost(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	student := env.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent)
	post := env.CreatePost(t, admin, "Career fair")

	// anonymous views are not counted
	got, err := env.Engagement.ViewPost(ctx, account.Actor{}, post.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Views)

	got, err = env.Engagement.ViewPost(ctx, student.Actor(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Views)
	assert.False(t, got.IsLikedByUser)

	_, err = env.Engagement.Like(ctx, student.Actor(), post.ID)
	require.NoError(t, err)

	got, err = env.Engagement.ViewPost(ctx, student.Actor(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Views, "one view per account")
	assert.True(t, got.IsLikedByUser)

	got, err = env.Engagement.ViewPost(ctx, admin.Actor(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)
	assert.Equal(t, 1, got.Likes)
	assert.False(t, got.IsLikedByUser)
}

func TestService_Reconcile(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	super := env.CreateAccount(t, "super@example.com", "Zuri", "Mensah", account.RoleSuperAdmin)
	post := env.CreatePost(t, admin, "Career fair")
	_, err := env.Engagement.Like(ctx, admin.Actor(), post.ID)
	require.NoError(t, err)

	_, err = env.Engagement.Reconcile(ctx, admin.Actor())
	assert.ErrorIs(t, err, account.ErrForbidden)

	// counters already agree with their facts
	report, err := env.Engagement.Reconcile(ctx, super.Actor())
	require.NoError(t, err)
	assert.Equal(t, engagement.Report{Drifts: []engagement.Drift{}}, report)
}
