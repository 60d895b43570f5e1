package healthcheck

import (
	"context"
	"net/http"

	"gitlab.com/gitlab-org/labkit/log"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
	"gitlab.com/gitlab-org/rawhttp/internal/router"
)

const (
	body         = "success\n"
	cacheControl = "no-store"
)

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// Handler is serving the application status check. When check is set and
// fails, the status is 503.
func Handler(check Check) router.Handler {
	return router.HandlerFunc(func(ctx context.Context, _ *request.Request) (*response.Response, error) {
		if check != nil {
			if err := check(ctx); err != nil {
				log.WithError(err).Warn("status check failed")

				return response.Text(http.StatusServiceUnavailable, response.ReasonPhrase(http.StatusServiceUnavailable)+"\n").
					WithHeader(header.CacheControl, cacheControl), nil
			}
		}

		return response.Text(http.StatusOK, body).WithHeader(header.CacheControl, cacheControl), nil
	})
}

// HTTPHandler serves the same status check on a net/http listener
func HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(header.CacheControl, cacheControl)
		w.Write([]byte(body))
	})
}
