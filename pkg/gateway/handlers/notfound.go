package handlers

import (
	"net/http"

	"github.com/vango-go/nava/pkg/core"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCoreErrorJSON(w, requestIDFromContext(r), core.NewNotFoundError("not found"), http.StatusNotFound)
}
