package store

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/gitlab-org/rawhttp/internal/pool"
)

var (
	// ErrNotFound is returned by GetUser for an unknown id
	ErrNotFound = errors.New("not found")
	// ErrAuthentication is returned by Dial for wrong credentials
	ErrAuthentication = errors.New("password authentication failed")
	// ErrUnknownDatabase is returned by Dial for a database name the server
	// does not have
	ErrUnknownDatabase = errors.New("database does not exist")
	// ErrUnreachable is returned by Dial when nothing serves the address
	ErrUnreachable = errors.New("connection refused")
	// ErrClosed is returned by every operation once the database or the
	// connection has been closed. The pool drops connections failing with it.
	ErrClosed = fmt.Errorf("database closed: %w", pool.ErrBadConn)
	// ErrConstraint is returned by InsertUser for a row the users table
	// refuses
	ErrConstraint = errors.New("violates check constraint")
)

// User is a row of the users table
type User struct {
	ID   int32  `json:"-"`
	Name string `json:"name"`
	Age  int32  `json:"age"`
}

// Conn is an authenticated connection to the database
type Conn interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int32) (User, error)
	InsertUser(ctx context.Context, u User) (User, error)
	Ping(ctx context.Context) error
	Close() error
}

// Credentials locate and authenticate against a database
type Credentials struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// Addr returns host:port
func (c Credentials) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
