package fakeuserrepo

import (
	"sort"
	"sync"

	"github.com/jrsteele09/campus-auth-client/internal/errors"
	"github.com/jrsteele09/campus-auth-client/server/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]*users.User
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	c := *user
	ur.users[user.Username] = &c
	return nil
}

func (ur *FakeUserRepo) Delete(username string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.users[username]; !ok {
		return errors.ErrUserNotFound
	}
	delete(ur.users, username)
	return nil
}

func (ur *FakeUserRepo) Get(username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[username]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (ur *FakeUserRepo) List(offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	list := make([]*users.User, 0, len(ur.users))
	for _, u := range ur.users {
		c := *u
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Username < list[j].Username
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return list[offset:end], nil
}
