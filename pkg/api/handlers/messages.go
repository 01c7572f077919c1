package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"groupchat/pkg/auth"
	"groupchat/pkg/chat"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
	"groupchat/pkg/utils"
)

type messageHandlers struct {
	svc *chat.Service
}

// RegisterMessages registers HTTP handlers for message-related endpoints.
func RegisterMessages(r *mux.Router, svc *chat.Service) {
	h := &messageHandlers{svc: svc}

	// /v1/groups/{groupID}/messages
	r.HandleFunc("/groups/{groupID}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/groups/{groupID}/messages", h.createMessage).Methods(http.MethodPost)

	// /v1/messages/{id}
	r.HandleFunc("/messages/{id}", h.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", h.editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)

	// /v1/messages/{id}/reactions and pin
	r.HandleFunc("/messages/{id}/reactions", h.addReaction).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/reactions", h.removeReaction).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/pin", h.togglePin).Methods(http.MethodPost)
}

type createMessageBody struct {
	Content     string              `json:"content"`
	Type        models.MessageType  `json:"message_type"`
	ReplyTo     string              `json:"replyTo"`
	Mentions    []string            `json:"mentions"`
	Attachments []models.Attachment `json:"attachments"`
}

func (h *messageHandlers) createMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	groupID := mux.Vars(r)["groupID"]
	var body createMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := h.svc.Submit(r.Context(), chat.SubmitInput{
		Group:       groupID,
		Sender:      user,
		Content:     body.Content,
		Type:        body.Type,
		ReplyTo:     body.ReplyTo,
		Mentions:    body.Mentions,
		Attachments: body.Attachments,
	})
	if err != nil {
		writeChatErr(w, err)
		return
	}
	logger.Info("message_created", "group", groupID, "id", m.ID)
	respondData(w, http.StatusCreated, "message sent", m)
}

func (h *messageHandlers) listMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	groupID := mux.Vars(r)["groupID"]
	page, limit := pageParams(r)
	msgs, hasMore, err := h.svc.History(r.Context(), user, groupID, page, limit)
	if err != nil {
		writeChatErr(w, err)
		return
	}
	logger.Debug("messages_list", "group", groupID, "page", page, "count", len(msgs))
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": msgs,
		"pagination": map[string]any{
			"current": page,
			"hasMore": hasMore,
		},
	})
}

func (h *messageHandlers) getMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	m, err := h.svc.Get(r.Context(), user, id)
	if err != nil {
		writeChatErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "ok", m)
}

type editMessageBody struct {
	Content string `json:"content"`
}

func (h *messageHandlers) editMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	var body editMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := h.svc.Edit(r.Context(), user, id, body.Content)
	if err != nil {
		writeChatErr(w, err)
		return
	}
	logger.Info("message_edited", "id", id, "user", user)
	respondData(w, http.StatusOK, "message edited", m)
}

func (h *messageHandlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.svc.Delete(r.Context(), user, id); err != nil {
		writeChatErr(w, err)
		return
	}
	logger.Info("message_deleted", "id", id, "user", user)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "message deleted",
	})
}

type reactionBody struct {
	Emoji string `json:"emoji"`
}

func (h *messageHandlers) addReaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	var body reactionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := h.svc.AddReaction(r.Context(), user, id, body.Emoji)
	if err != nil {
		writeChatErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "reaction added", m)
}

func (h *messageHandlers) removeReaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	var body reactionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := h.svc.RemoveReaction(r.Context(), user, id, body.Emoji)
	if err != nil {
		writeChatErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "reaction removed", m)
}

func (h *messageHandlers) togglePin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	m, err := h.svc.TogglePin(r.Context(), user, id)
	if err != nil {
		writeChatErr(w, err)
		return
	}
	verb := "message unpinned"
	if m.IsPinned {
		verb = "message pinned"
	}
	respondData(w, http.StatusOK, verb, m)
}
