package services

import (
	"context"
	"net/url"
	"strconv"

	"Soundy/client"
	"Soundy/model"
)

const defaultLatestCount = 10

// Users reads and edits user profiles.
type Users struct {
	c *client.Client
}

func NewUsers(c *client.Client) *Users {
	return &Users{c: c}
}

func (u *Users) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := u.c.Get(ctx, "/user/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *Users) ByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := u.c.Get(ctx, "/user/"+url.PathEscape(id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateMe patches the editable fields of the current user.
func (u *Users) UpdateMe(ctx context.Context, update model.UserUpdate) (*model.User, error) {
	var user model.User
	if err := u.c.Patch(ctx, "/user/me", update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Latest returns the most recently registered users.
func (u *Users) Latest(ctx context.Context, count int) ([]model.User, error) {
	var resp struct {
		Users []model.User `json:"users"`
	}
	if err := u.c.Get(ctx, "/user/latest", &resp, client.WithQuery(countQuery(count))); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func countQuery(count int) url.Values {
	if count <= 0 {
		count = defaultLatestCount
	}
	return url.Values{"count": {strconv.Itoa(count)}}
}
