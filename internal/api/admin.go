package api

import (
	"encoding/json"
	"net/http"

	"example.com/remud/internal/store"
	"example.com/remud/internal/world"
)

// These four endpoints exist because object override editing and script
// hook attachment are structured, multi-field edits (see DESIGN.md's
// admin command scope decision) better expressed as JSON than a line
// command; they reuse the "scripts" scope since both are immortal-only
// world edits and the spec defines no separate admin scope.

type objectOverrideRequest struct {
	Object uint64 `json:"object"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

// objectOverrideSet godoc
// @Summary Set an object's per-field override
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Param request body objectOverrideRequest true "Override edit"
// @Success 200
// @Failure 400 {object} errorBody
// @Router /admin/objects/override [post]
func (s *Server) objectOverrideSet(w http.ResponseWriter, r *http.Request) {
	var req objectOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	s.sys.World.Lock()
	err := s.sys.SetObjectOverride(world.ObjectId(req.Object), req.Field, req.Value)
	s.sys.World.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_OVERRIDE_FIELD")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type objectInheritRequest struct {
	Object uint64 `json:"object"`
	Field  string `json:"field"`
}

// objectOverrideClear godoc
// @Summary Clear an object's per-field override, reverting to its prototype
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Param request body objectInheritRequest true "Field to inherit"
// @Success 200
// @Failure 400 {object} errorBody
// @Router /admin/objects/inherit [post]
func (s *Server) objectOverrideClear(w http.ResponseWriter, r *http.Request) {
	var req objectInheritRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	s.sys.World.Lock()
	err := s.sys.ClearObjectOverride(world.ObjectId(req.Object), req.Field)
	s.sys.World.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_OVERRIDE_FIELD")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type hookAttachRequest struct {
	Host    string `json:"host"`
	ID      uint64 `json:"id"`
	Script  string `json:"script"`
	Trigger string `json:"trigger"`
	Kind    string `json:"kind"`
}

// hooksAttach godoc
// @Summary Attach a script hook to a room/object/prototype/player
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Param request body hookAttachRequest true "Hook binding"
// @Success 200
// @Failure 400 {object} errorBody
// @Router /admin/hooks/attach [post]
func (s *Server) hooksAttach(w http.ResponseWriter, r *http.Request) {
	var req hookAttachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	if !validTriggers[req.Trigger] {
		writeError(w, http.StatusBadRequest, "BAD_TRIGGER")
		return
	}
	s.sys.World.Lock()
	err := s.sys.AttachHook(store.HookHost(req.Host), req.ID, req.Script, world.Trigger(req.Trigger), world.TriggerKind(req.Kind))
	s.sys.World.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_HOOK_HOST")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type hookDetachRequest struct {
	Host   string `json:"host"`
	ID     uint64 `json:"id"`
	Script string `json:"script"`
}

// hooksDetach godoc
// @Summary Detach a named script hook from a room/object/prototype/player
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Param request body hookDetachRequest true "Hook to remove"
// @Success 200
// @Failure 400 {object} errorBody
// @Router /admin/hooks/detach [post]
func (s *Server) hooksDetach(w http.ResponseWriter, r *http.Request) {
	var req hookDetachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	s.sys.World.Lock()
	err := s.sys.DetachHook(store.HookHost(req.Host), req.ID, req.Script)
	s.sys.World.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_HOOK_HOST")
		return
	}
	w.WriteHeader(http.StatusOK)
}
