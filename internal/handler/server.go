package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/dishub/internal/apperror"
	"github.com/sakif/dishub/internal/auth"
	"github.com/sakif/dishub/internal/bump"
	"github.com/sakif/dishub/internal/listing"
	"github.com/sakif/dishub/internal/model"
	"github.com/sakif/dishub/internal/service"
)

// maxBodyBytes caps create/update payloads; a listing is a few KB at most.
const maxBodyBytes = 64 << 10

// ServerHandler exposes the directory over JSON.
//
//	GET    /api/servers            public, ?q=&minMembers=&limit=&offset=
//	GET    /api/servers/{id}       public
//	GET    /api/tags               public, the tag palette
//	GET    /api/me/servers         owner's listings, ?limit=&offset=
//	POST   /api/servers            create
//	PUT    /api/servers/{id}       update
//	DELETE /api/servers/{id}       delete
//	POST   /api/servers/{id}/bump  bump
type ServerHandler struct {
	directory *service.DirectoryService
	logger    *slog.Logger
	now       func() time.Time
}

func NewServerHandler(directory *service.DirectoryService, logger *slog.Logger) *ServerHandler {
	return &ServerHandler{
		directory: directory,
		logger:    logger,
		now:       time.Now,
	}
}

// serverView is model.Server plus the values the UI derives from it.
type serverView struct {
	model.Server
	ActiveMembers int        `json:"activeMembers"`
	NextBumpAt    *time.Time `json:"nextBumpAt"`
}

func newServerView(s *model.Server) serverView {
	return serverView{
		Server:        *s,
		ActiveMembers: listing.ActiveMembers(s.MemberCount),
		NextBumpAt:    bump.NextEligible(s.LastBumpedAt),
	}
}

type listResponse struct {
	Servers []serverView `json:"servers"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

func (h *ServerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	minMembers, err := intParam(q.Get("minMembers"), "minMembers")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, offset, err := pageParams(q, listing.DefaultLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := listing.Filter{Query: q.Get("q"), MinMembers: minMembers}
	h.writeList(w, r, filter, limit, offset)
}

// HandleMine is the "my servers" view: same ordering, scoped to the caller.
// Without a limit it returns as many as one page can hold.
func (h *ServerHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r.URL.Query(), listing.MaxLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	h.writeList(w, r, listing.Filter{OwnerID: userID}, limit, offset)
}

func (h *ServerHandler) writeList(w http.ResponseWriter, r *http.Request, filter listing.Filter, limit, offset int) {
	res, err := h.directory.ListServers(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]serverView, len(res.Servers))
	for i := range res.Servers {
		views[i] = newServerView(&res.Servers[i])
	}

	writeJSON(w, http.StatusOK, listResponse{
		Servers: views,
		Total:   res.Total,
		Limit:   clampLimit(limit),
		Offset:  max(offset, 0),
	})
}

func (h *ServerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.directory.GetServer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newServerView(s))
}

func (h *ServerHandler) HandleTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tags": model.TagPalette})
}

func (h *ServerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	s, err := h.directory.CreateServer(r.Context(), userID, in, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newServerView(s))
}

func (h *ServerHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	s, err := h.directory.UpdateServer(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newServerView(s))
}

func (h *ServerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.directory.DeleteServer(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ServerHandler) HandleBump(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	s, err := h.directory.BumpServer(r.Context(), userID, chi.URLParam(r, "id"), h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newServerView(s))
}

// decodeInput writes the 400 itself and reports false on a bad body.
func decodeInput(w http.ResponseWriter, r *http.Request) (service.ServerInput, bool) {
	var in service.ServerInput

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_json",
			Message: "request body must be a JSON server object",
		})
		return in, false
	}
	return in, true
}

// intParam parses an optional non-negative query parameter; "" is 0.
// pageParams reads limit and offset. An absent limit means defaultLimit.
func pageParams(q url.Values, defaultLimit int) (limit, offset int, err error) {
	limit, err = intParam(q.Get("limit"), "limit")
	if err != nil {
		return 0, 0, err
	}
	if q.Get("limit") == "" {
		limit = defaultLimit
	}
	offset, err = intParam(q.Get("offset"), "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return listing.DefaultLimit
	}
	return min(limit, listing.MaxLimit)
}
