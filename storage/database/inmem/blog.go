package inmemdb

import (
	"context"
	"sort"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/blog"
)

type blogRepository struct {
	db *DB
}

func NewBlogRepository(db *DB) blog.Repository {
	return &blogRepository{db: db}
}

func copyPost(p *blog.Post) blog.Post {
	cp := *p
	cp.Tags = append([]string{}, p.Tags...)
	return cp
}

func (repo *blogRepository) CreatePost(_ context.Context, post blog.Post) (blog.Post, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if post.Tags == nil {
		post.Tags = []string{}
	}
	repo.db.posts[post.ID] = &post
	return copyPost(&post), nil
}

func (repo *blogRepository) GetPost(_ context.Context, id string) (blog.Post, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.posts[id]; ok {
		return copyPost(p), nil
	}
	return blog.Post{}, blog.ErrNotFound
}

func (repo *blogRepository) QueryPosts(_ context.Context, filter blog.QueryFilter, ordering ...core.DBOrdering) ([]blog.Post, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	posts := make([]blog.Post, 0)
	for _, p := range repo.db.posts {
		if filter.Match(*p) {
			posts = append(posts, copyPost(p))
		}
	}
	field, asc := "created_at", false
	if len(ordering) > 0 {
		field, asc = ordering[0].Field, ordering[0].Ascending
	}
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !asc {
			a, b = b, a
		}
		switch field {
		case "likes":
			return a.Likes < b.Likes
		case "views":
			return a.Views < b.Views
		case "title":
			return a.Title < b.Title
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	return posts, nil
}

func (repo *blogRepository) UpdatePost(_ context.Context, post blog.Post) (blog.Post, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.posts[post.ID]
	if !ok {
		return blog.Post{}, blog.ErrNotFound
	}
	// counters are owned by the engagement ledger
	post.Likes, post.Views = orig.Likes, orig.Views
	post.IsLikedByUser = false
	repo.db.posts[post.ID] = &post
	return copyPost(&post), nil
}

func (repo *blogRepository) DeletePost(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.posts[id]; !ok {
		return blog.ErrNotFound
	}
	delete(repo.db.posts, id)
	for key := range repo.db.likes {
		if key.target == id {
			delete(repo.db.likes, key)
		}
	}
	for key := range repo.db.views {
		if key.target == id {
			delete(repo.db.views, key)
		}
	}
	for cid, c := range repo.db.comments {
		if c.PostID == id {
			delete(repo.db.comments, cid)
		}
	}
	return nil
}

func (repo *blogRepository) CreateComment(_ context.Context, cmt blog.Comment) (blog.Comment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.posts[cmt.PostID]; !ok {
		return blog.Comment{}, blog.ErrNotFound
	}
	repo.db.comments[cmt.ID] = &cmt
	return cmt, nil
}

func (repo *blogRepository) GetComment(_ context.Context, postID, id string) (blog.Comment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.comments[id]; ok && c.PostID == postID {
		return *c, nil
	}
	return blog.Comment{}, blog.ErrCommentNotFound
}

func (repo *blogRepository) QueryComments(_ context.Context, postID string) ([]blog.Comment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cmts := make([]blog.Comment, 0)
	for _, c := range repo.db.comments {
		if c.PostID == postID {
			cmts = append(cmts, *c)
		}
	}
	sort.SliceStable(cmts, func(i, j int) bool { return cmts[i].CreatedAt.Before(cmts[j].CreatedAt) })
	return cmts, nil
}

func (repo *blogRepository) DeleteComment(_ context.Context, postID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if c, ok := repo.db.comments[id]; !ok || c.PostID != postID {
		return blog.ErrCommentNotFound
	}
	delete(repo.db.comments, id)
	return nil
}
