package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"groupchat/pkg/api/handlers"
	"groupchat/pkg/auth"
	"groupchat/pkg/chat"
	"groupchat/pkg/membership"
)

// Handler builds the /v1 router. Every route passes through the signed-user
// middleware; the API-key gateway wraps the whole server one level up.
func Handler(svc *chat.Service, authority *membership.StoreAuthority) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	handlers.RegisterMessages(v1, svc)
	handlers.RegisterGroups(v1, authority)

	return auth.RequireSignedUser(r)
}
