package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/lingodesk/bellhop/internal/pkg/ctxlog"
)

// ErrorMapping pairs a sentinel error with the status and message the
// control API should answer with.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // falls back to err.Error() when empty
}

// HandleError answers with the first mapping that matches err.
// Unmapped errors are logged and answered as a plain 500 so internal
// detail never leaks to the host shell.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
