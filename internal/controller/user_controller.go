package controller

import (
	"net/http"

	"github.com/cassiomorais/fintrack/internal/domain/auth"
	"github.com/cassiomorais/fintrack/internal/service"
)

type UserController struct {
	identity *service.IdentityService
}

func NewUserController(identity *service.IdentityService) *UserController {
	return &UserController{identity: identity}
}

// Me returns the caller's local user, creating it on first sight.
func (h *UserController) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.identity.GetOrCreate(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, FromUser(u))
}
