package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"groupchat/pkg/chat"
	"groupchat/pkg/membership"
	"groupchat/pkg/utils"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// respondData writes a success envelope with a human message and payload.
func respondData(w http.ResponseWriter, status int, msg string, data any) {
	_ = utils.JSONWrite(w, status, map[string]any{
		"success": true,
		"message": msg,
		"data":    data,
	})
}

// writeChatErr maps pipeline sentinels onto HTTP statuses.
func writeChatErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		utils.JSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chat.ErrInvalidArgument):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrConflict):
		utils.JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrGroupFull):
		utils.JSONError(w, http.StatusConflict, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeMembershipErr maps provisioning errors onto HTTP statuses.
func writeMembershipErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, membership.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "group not found")
	case errors.Is(err, membership.ErrAlreadyMember):
		utils.JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, membership.ErrGroupExists):
		utils.JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, membership.ErrGroupFull):
		utils.JSONError(w, http.StatusConflict, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// pageParams parses page/limit query params with clamped defaults.
func pageParams(r *http.Request) (page, limit int) {
	page, limit = 1, defaultPageLimit
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// requireRole checks the role name set by the gateway middleware.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	got := r.Header.Get("X-Role-Name")
	for _, want := range roles {
		if got == want {
			return true
		}
	}
	utils.JSONError(w, http.StatusForbidden, "forbidden")
	return false
}
