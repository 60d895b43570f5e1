package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
)

// Memory is a database kept in process memory. Rows never expire.
type Memory struct {
	creds Credentials

	users  *cache.Cache
	mux    *sync.Mutex
	nextID int32
	closed int32
	conns  int32
}

// NewMemory returns an empty database served under creds
func NewMemory(creds Credentials) *Memory {
	return &Memory{
		creds: creds,
		users: cache.New(cache.NoExpiration, 0),
		mux:   &sync.Mutex{},
	}
}

// Close makes every open and future connection fail with ErrClosed
func (m *Memory) Close() error {
	atomic.StoreInt32(&m.closed, 1)
	return nil
}

// OpenConns returns the number of connections not yet closed
func (m *Memory) OpenConns() int {
	return int(atomic.LoadInt32(&m.conns))
}

func (m *Memory) isClosed() bool {
	return atomic.LoadInt32(&m.closed) == 1
}

func (m *Memory) insert(u User) (User, error) {
	if u.Name == "" {
		return User{}, fmt.Errorf("new row for relation \"users\" %w \"users_name_check\"", ErrConstraint)
	}

	if u.Age < 0 {
		return User{}, fmt.Errorf("new row for relation \"users\" %w \"users_age_check\"", ErrConstraint)
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	m.nextID++
	u.ID = m.nextID

	m.users.Set(key(u.ID), u, cache.NoExpiration)

	return u, nil
}

func (m *Memory) get(id int32) (User, bool) {
	u, ok := m.users.Get(key(id))
	if !ok {
		return User{}, false
	}

	return u.(User), true
}

func (m *Memory) list() []User {
	items := m.users.Items()

	users := make([]User, 0, len(items))
	for _, item := range items {
		users = append(users, item.Object.(User))
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return users
}

func key(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

// Dialer opens connections to a Memory database
type Dialer struct {
	db    *Memory
	creds Credentials
}

// NewDialer returns a dialer connecting to db with creds
func NewDialer(db *Memory, creds Credentials) *Dialer {
	return &Dialer{db: db, creds: creds}
}

// Dial authenticates and returns a new connection
func (d *Dialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := d.db.creds

	switch {
	case d.db.isClosed():
		return nil, ErrClosed
	case d.creds.Addr() != want.Addr():
		return nil, fmt.Errorf("dial tcp %s: %w", d.creds.Addr(), ErrUnreachable)
	case d.creds.Name != want.Name:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatabase, d.creds.Name)
	case d.creds.User != want.User || d.creds.Password != want.Password:
		return nil, fmt.Errorf("%w for user %q", ErrAuthentication, d.creds.User)
	}

	atomic.AddInt32(&d.db.conns, 1)

	return &memoryConn{db: d.db}, nil
}

type memoryConn struct {
	db     *Memory
	closed int32
}

func (c *memoryConn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if atomic.LoadInt32(&c.closed) == 1 || c.db.isClosed() {
		return ErrClosed
	}

	return nil
}

func (c *memoryConn) ListUsers(ctx context.Context) ([]User, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	return c.db.list(), nil
}

func (c *memoryConn) GetUser(ctx context.Context, id int32) (User, error) {
	if err := c.check(ctx); err != nil {
		return User{}, err
	}

	u, ok := c.db.get(id)
	if !ok {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}

	return u, nil
}

func (c *memoryConn) InsertUser(ctx context.Context, u User) (User, error) {
	if err := c.check(ctx); err != nil {
		return User{}, err
	}

	return c.db.insert(u)
}

func (c *memoryConn) Ping(ctx context.Context) error {
	return c.check(ctx)
}

func (c *memoryConn) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		atomic.AddInt32(&c.db.conns, -1)
	}

	return nil
}
