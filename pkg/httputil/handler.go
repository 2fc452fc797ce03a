package httputil

import (
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// HandlerFunc is an HTTP handler that reports failure by returning an error
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts h to http.Handler and formats any returned error
func Handle(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			logError(r, err)
			WriteAppError(w, err)
		}
	})
}

func logError(r *http.Request, err error) {
	logger := observability.FromContext(r.Context()).
		WithError(err).
		WithField("kind", string(apierrors.KindOf(err)))
	if apierrors.KindOf(err) == apierrors.KindInternal || apierrors.KindOf(err) == apierrors.KindUpstream {
		logger.Error("request failed")
		return
	}
	logger.Debug("request rejected")
}
