// Package inmemdb holds in-memory repositories used by tests and the
// database-less development mode. A single lock guards every table so facts and
// their counters always change together.
package inmemdb

import (
	"sync"

	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/event"
	"github.com/socportal/jumuiya/core/poll"
	"github.com/socportal/jumuiya/core/resource"
)

type factKey struct {
	target, account string
}

type voteKey struct {
	poll, account, slot string
}

type DB struct {
	mu sync.RWMutex

	accounts map[string]*account.Account

	posts    map[string]*blog.Post
	comments map[string]*blog.Comment
	likes    map[factKey]bool
	views    map[factKey]bool

	polls map[string]*poll.Poll
	votes map[voteKey]poll.Vote

	events        map[string]*event.Event
	registrations map[factKey]bool

	resources map[string]*resource.Resource
}

func Open() *DB {
	return &DB{
		accounts:      make(map[string]*account.Account),
		posts:         make(map[string]*blog.Post),
		comments:      make(map[string]*blog.Comment),
		likes:         make(map[factKey]bool),
		views:         make(map[factKey]bool),
		polls:         make(map[string]*poll.Poll),
		votes:         make(map[voteKey]poll.Vote),
		events:        make(map[string]*event.Event),
		registrations: make(map[factKey]bool),
		resources:     make(map[string]*resource.Resource),
	}
}
