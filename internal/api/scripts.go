package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"example.com/remud/internal/store"
	"example.com/remud/internal/world"
)

// validTriggers is the closed set of script trigger names create/update
// accept; anything else is a BAD_TRIGGER per spec.md §6.
var validTriggers = map[string]bool{
	string(world.TriggerInit):      true,
	string(world.TriggerDrop):      true,
	string(world.TriggerEmote):     true,
	string(world.TriggerExits):     true,
	string(world.TriggerGet):       true,
	string(world.TriggerInventory): true,
	string(world.TriggerLook):      true,
	string(world.TriggerLookAt):    true,
	string(world.TriggerMove):      true,
	string(world.TriggerSay):       true,
	string(world.TriggerSend):      true,
	string(world.TriggerTimer):     true,
	string(world.TriggerUse):       true,
}

type scriptRequest struct {
	Name    string `json:"name"`
	Trigger string `json:"trigger"`
	Code    string `json:"code"`
}

type scriptWriteResponse struct {
	Error string `json:"error,omitempty"`
}

// scriptsCreate godoc
// @Summary Create a script
// @Tags Scripts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body scriptRequest true "Script source"
// @Success 200 {object} scriptWriteResponse
// @Failure 400 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /scripts/create [post]
func (s *Server) scriptsCreate(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "BAD_NAME")
		return
	}
	if !validTriggers[req.Trigger] {
		writeError(w, http.StatusBadRequest, "BAD_TRIGGER")
		return
	}
	compileErr := s.runtime.Compile(req.Name, req.Code)
	if err := s.scripts.Create(req.Name, req.Trigger, req.Code, compileErr); err != nil {
		if errors.Is(err, store.ErrScriptExists) {
			writeError(w, http.StatusConflict, "DUPLICATE_SCRIPT_NAME")
			return
		}
		s.logInternal("/scripts/create", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}
	s.syncScript(req.Name, req.Trigger, req.Code, compileErr)
	s.publishCompileError(req.Name, compileErr)
	writeJSON(w, scriptWriteResponse{Error: compileErr})
}

// publishCompileError notifies the admin live tail of a non-empty compile
// error recorded on create/update.
func (s *Server) publishCompileError(name, compileErr string) {
	if compileErr == "" || s.eng == nil {
		return
	}
	s.eng.PublishScriptError(name, compileErr)
}

// syncScript mirrors a successful durable write onto the live
// world.Scripts cache the dispatcher reads, under the world lock.
func (s *Server) syncScript(name, trigger, code, compileErr string) {
	if s.sys == nil {
		return
	}
	s.sys.World.Lock()
	s.sys.SyncScript(world.ScriptSource{Name: name, Trigger: world.Trigger(trigger), Code: code, CompileErr: compileErr})
	s.sys.World.Unlock()
}

// forgetScript removes name from the live world.Scripts cache under the
// world lock, mirroring a durable delete.
func (s *Server) forgetScript(name string) {
	if s.sys == nil {
		return
	}
	s.sys.World.Lock()
	s.sys.ForgetScript(name)
	s.sys.World.Unlock()
}

type scriptNameRequest struct {
	Name string `json:"name"`
}

type scriptReadResponse struct {
	Name    string `json:"name"`
	Trigger string `json:"trigger"`
	Code    string `json:"code"`
	Error   string `json:"error,omitempty"`
}

// scriptsRead godoc
// @Summary Read a script by name
// @Tags Scripts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body scriptNameRequest true "Script name"
// @Success 200 {object} scriptReadResponse
// @Failure 404 {object} errorBody
// @Router /scripts/read [post]
func (s *Server) scriptsRead(w http.ResponseWriter, r *http.Request) {
	var req scriptNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	rec, err := s.scripts.Read(req.Name)
	if err != nil {
		writeError(w, http.StatusNotFound, "SCRIPT_NOT_FOUND")
		return
	}
	writeJSON(w, scriptReadResponse{Name: rec.Name, Trigger: rec.Trigger, Code: rec.Code, Error: rec.CompileError})
}

type scriptSummary struct {
	Name    string `json:"name"`
	Trigger string `json:"trigger"`
	Lines   int    `json:"lines"`
	Error   string `json:"error,omitempty"`
}

type scriptListResponse struct {
	Scripts []scriptSummary `json:"scripts"`
}

// scriptsReadAll godoc
// @Summary List every script
// @Tags Scripts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} scriptListResponse
// @Router /scripts/read/all [post]
func (s *Server) scriptsReadAll(w http.ResponseWriter, r *http.Request) {
	recs, err := s.scripts.ReadAll()
	if err != nil {
		s.logInternal("/scripts/read/all", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}
	out := make([]scriptSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, scriptSummary{
			Name:    rec.Name,
			Trigger: rec.Trigger,
			Lines:   strings.Count(rec.Code, "\n") + 1,
			Error:   rec.CompileError,
		})
	}
	writeJSON(w, scriptListResponse{Scripts: out})
}

// scriptsUpdate godoc
// @Summary Update a script's trigger/code
// @Tags Scripts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body scriptRequest true "Script source"
// @Success 200 {object} scriptWriteResponse
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /scripts/update [post]
func (s *Server) scriptsUpdate(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	if !validTriggers[req.Trigger] {
		writeError(w, http.StatusBadRequest, "BAD_TRIGGER")
		return
	}
	compileErr := s.runtime.Compile(req.Name, req.Code)
	if err := s.scripts.Update(req.Name, req.Trigger, req.Code, compileErr); err != nil {
		if errors.Is(err, store.ErrScriptNotFound) {
			writeError(w, http.StatusNotFound, "SCRIPT_NOT_FOUND")
			return
		}
		s.logInternal("/scripts/update", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}
	s.syncScript(req.Name, req.Trigger, req.Code, compileErr)
	s.publishCompileError(req.Name, compileErr)
	writeJSON(w, scriptWriteResponse{Error: compileErr})
}

// scriptsDelete godoc
// @Summary Delete a script
// @Tags Scripts
// @Security BearerAuth
// @Accept json
// @Param request body scriptNameRequest true "Script name"
// @Success 200
// @Failure 404 {object} errorBody
// @Router /scripts/delete [post]
func (s *Server) scriptsDelete(w http.ResponseWriter, r *http.Request) {
	var req scriptNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	if err := s.scripts.Delete(req.Name); err != nil {
		if errors.Is(err, store.ErrScriptNotFound) {
			writeError(w, http.StatusNotFound, "SCRIPT_NOT_FOUND")
			return
		}
		s.logInternal("/scripts/delete", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}
	s.forgetScript(req.Name)
	w.WriteHeader(http.StatusOK)
}
