package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"groupchat/pkg/logger"
	"groupchat/pkg/membership"
	"groupchat/pkg/models"
	"groupchat/pkg/store"
	"groupchat/pkg/utils"
)

type groupHandlers struct {
	authority *membership.StoreAuthority
}

// RegisterGroups registers the group provisioning endpoints. Group
// lifecycle is owned by an external service; these routes are its
// integration seam and require backend or admin API keys.
func RegisterGroups(r *mux.Router, authority *membership.StoreAuthority) {
	h := &groupHandlers{authority: authority}

	r.HandleFunc("/groups", h.createGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{groupID}", h.getGroup).Methods(http.MethodGet)
	r.HandleFunc("/groups/{groupID}/members", h.addMember).Methods(http.MethodPost)
	r.HandleFunc("/groups/{groupID}/members/{userID}", h.removeMember).Methods(http.MethodDelete)
}

type createGroupBody struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Creator    string `json:"creator"`
	IsPrivate  bool   `json:"isPrivate"`
	MaxMembers int    `json:"maxMembers"`
}

func (h *groupHandlers) createGroup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireRole(w, r, "backend", "admin") {
		return
	}
	var body createGroupBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Name == "" || body.Creator == "" {
		utils.JSONError(w, http.StatusBadRequest, "name and creator are required")
		return
	}
	g, err := h.authority.CreateGroup(models.Group{
		ID:         body.ID,
		Name:       body.Name,
		Creator:    body.Creator,
		IsPrivate:  body.IsPrivate,
		MaxMembers: body.MaxMembers,
	})
	if err != nil {
		writeMembershipErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, "group created", g)
}

func (h *groupHandlers) getGroup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireRole(w, r, "backend", "admin") {
		return
	}
	g, err := store.GetGroup(mux.Vars(r)["groupID"])
	if err != nil {
		writeMembershipErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "ok", g)
}

type addMemberBody struct {
	User string      `json:"user"`
	Role models.Role `json:"role"`
}

func (h *groupHandlers) addMember(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireRole(w, r, "backend", "admin") {
		return
	}
	groupID := mux.Vars(r)["groupID"]
	var body addMemberBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.User == "" {
		utils.JSONError(w, http.StatusBadRequest, "user is required")
		return
	}
	if err := h.authority.AddMember(groupID, body.User, body.Role); err != nil {
		writeMembershipErr(w, err)
		return
	}
	logger.Info("member_added", "group", groupID, "user", body.User)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "member added",
	})
}

func (h *groupHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireRole(w, r, "backend", "admin") {
		return
	}
	vars := mux.Vars(r)
	if err := h.authority.RemoveMember(vars["groupID"], vars["userID"]); err != nil {
		writeMembershipErr(w, err)
		return
	}
	logger.Info("member_removed", "group", vars["groupID"], "user", vars["userID"])
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "member removed",
	})
}
