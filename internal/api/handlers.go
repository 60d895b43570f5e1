package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gitlab.com/gitlab-org/rawhttp/internal/httperrors"
	"gitlab.com/gitlab-org/rawhttp/internal/logging"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
	"gitlab.com/gitlab-org/rawhttp/internal/store"
)

const (
	msgHello          = "Hello World"
	msgInvalidUser    = "Invalid user data"
	msgInvalidID      = "ID must be u32"
	msgUserAdded      = "User added"
	msgUserNotFound   = "User not found"
	insertErrorPrefix = "ERROR: "
)

type message struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// newUser is the body of POST /users. Both fields are required.
type newUser struct {
	Name *string `json:"name"`
	Age  *int32  `json:"age"`
}

func (a *API) hello(context.Context, *request.Request) (*response.Response, error) {
	return response.Text(http.StatusOK, msgHello), nil
}

func (a *API) listUsers(ctx context.Context, _ *request.Request, conn store.Conn) (*response.Response, error) {
	users, err := conn.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	if users == nil {
		users = []store.User{}
	}

	return response.JSON(http.StatusOK, users)
}

func (a *API) getUser(ctx context.Context, req *request.Request) (*response.Response, error) {
	id, err := parseID(req.Params.Get("id"))
	if err != nil {
		logging.LogRequest(ctx, req).WithError(err).Debug("invalid user id")
		return httperrors.BadRequest(msgInvalidID), nil
	}

	return a.withConn(func(ctx context.Context, req *request.Request, conn store.Conn) (*response.Response, error) {
		u, err := conn.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return httperrors.NotFound(msgUserNotFound), nil
		}

		if err != nil {
			return nil, err
		}

		return response.JSON(http.StatusOK, u)
	})(ctx, req)
}

func (a *API) createUser(ctx context.Context, req *request.Request) (*response.Response, error) {
	u, err := decodeUser(req.Body)
	if err != nil {
		logging.LogRequest(ctx, req).WithError(err).Debug("invalid user data")
		return httperrors.BadRequest(msgInvalidUser), nil
	}

	return a.withConn(func(ctx context.Context, req *request.Request, conn store.Conn) (*response.Response, error) {
		_, err := conn.InsertUser(ctx, u)
		if isStoreFailure(err) {
			return nil, err
		}

		if err != nil {
			return response.JSON(http.StatusInternalServerError, message{Error: insertErrorPrefix + err.Error()})
		}

		return response.JSON(http.StatusOK, message{Message: msgUserAdded})
	})(ctx, req)
}

func (a *API) listProducts(context.Context, *request.Request) (*response.Response, error) {
	return httperrors.InternalServerError(), nil
}

// parseID accepts the decimal ids a signed 32-bit column can hold, zero
// and up
func parseID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}

	if id < 0 {
		return 0, errors.New("negative id")
	}

	return int32(id), nil
}

func decodeUser(body []byte) (store.User, error) {
	var nu newUser

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&nu); err != nil {
		return store.User{}, err
	}

	if dec.More() {
		return store.User{}, errors.New("trailing data after user")
	}

	if nu.Name == nil || nu.Age == nil {
		return store.User{}, errors.New("name and age are required")
	}

	return store.User{Name: *nu.Name, Age: *nu.Age}, nil
}
