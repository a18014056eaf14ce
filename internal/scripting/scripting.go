// Package scripting embeds Lua (github.com/Shopify/go-lua) as the
// sandboxed scripting runtime bound to entity hooks. Each script compiles
// to a loadable chunk; "compiled" means parsed without syntax error and
// ready to call — go-lua keeps no bytecode object distinct from the
// loaded chunk, so a parse error is exactly the stored compilation-error
// record the spec calls for. Execution happens on a fresh *lua.State per
// dispatch (go-lua's stand-in for the spec's "fresh coroutine-like
// state"), with SELF/WORLD/EVENT/allow_action bound before the chunk runs.
package scripting

import (
	"fmt"

	lua "github.com/Shopify/go-lua"

	"example.com/remud/internal/world"
)

// Host exposes exactly the operations a script's SELF/WORLD bridge may
// perform against the world, kept narrow on purpose: scripts mutate only
// through queued actions or journal updates, never by writing components
// directly, so ordering matches ordinary action semantics.
type Host interface {
	Name(e world.Entity) string
	Description(e world.Entity) string
	SetName(e world.Entity, name string)
	SetDescription(e world.Entity, desc string)
	HasFlag(e world.Entity, flag world.ObjectFlags) bool
	QueueAction(actor world.Entity, kind string, args ...string)
	RecordError(host world.Entity, script string, err string)
}

// Event is the immutable action payload bound as EVENT for event-driven
// triggers. Kind is the trigger name; Fields carries action-specific
// string-keyed data (direction, message, keywords joined by space, etc.)
// — deliberately simple since scripts only ever read it.
type Event struct {
	Kind   string
	Actor  world.Entity
	Fields map[string]string
}

// Runtime compiles and dispatches scripts against a Host.
type Runtime struct {
	host Host
}

func NewRuntime(host Host) *Runtime {
	return &Runtime{host: host}
}

// Compile parses code without executing it, returning a non-empty error
// string (the stored compilation-error record) on syntax failure, or ""
// on success.
func (rt *Runtime) Compile(name, code string) string {
	state := lua.NewState()
	if err := lua.LoadString(state, code); err != nil {
		return err.Error()
	}
	return ""
}

// selfHandle is the userdata bound as SELF: the host entity plus enough
// of Host to answer getters/setters and enqueue actions.
type selfHandle struct {
	entity world.Entity
	host   Host
}

const selfMetaTable = "remud.self"
const worldMetaTable = "remud.world"
const eventMetaTable = "remud.event"

var selfMethods = []lua.RegistryFunction{
	{Name: "name", Function: selfGetName},
	{Name: "set_name", Function: selfSetName},
	{Name: "description", Function: selfGetDescription},
	{Name: "set_description", Function: selfSetDescription},
	{Name: "is_fixed", Function: selfIsFixed},
	{Name: "say", Function: selfSay},
	{Name: "emote", Function: selfEmote},
	{Name: "move", Function: selfMove},
}

func checkSelf(state *lua.State) *selfHandle {
	ud := lua.CheckUserData(state, 1, selfMetaTable)
	h, ok := ud.(*selfHandle)
	if !ok {
		lua.Errorf(state, "invalid SELF handle")
	}
	return h
}

func selfGetName(state *lua.State) int {
	h := checkSelf(state)
	state.PushString(h.host.Name(h.entity))
	return 1
}

func selfSetName(state *lua.State) int {
	h := checkSelf(state)
	name := lua.CheckString(state, 2)
	h.host.SetName(h.entity, name)
	return 0
}

func selfGetDescription(state *lua.State) int {
	h := checkSelf(state)
	state.PushString(h.host.Description(h.entity))
	return 1
}

func selfSetDescription(state *lua.State) int {
	h := checkSelf(state)
	desc := lua.CheckString(state, 2)
	h.host.SetDescription(h.entity, desc)
	return 0
}

func selfIsFixed(state *lua.State) int {
	h := checkSelf(state)
	state.PushBoolean(h.host.HasFlag(h.entity, world.ObjectFixed))
	return 1
}

func selfSay(state *lua.State) int {
	h := checkSelf(state)
	msg := lua.CheckString(state, 2)
	h.host.QueueAction(h.entity, "say", msg)
	return 0
}

func selfEmote(state *lua.State) int {
	h := checkSelf(state)
	msg := lua.CheckString(state, 2)
	h.host.QueueAction(h.entity, "emote", msg)
	return 0
}

func selfMove(state *lua.State) int {
	h := checkSelf(state)
	dir := lua.CheckString(state, 2)
	h.host.QueueAction(h.entity, "move", dir)
	return 0
}

// worldHandle is the userdata bound as WORLD: read-only field accessors
// across arbitrary entities, by domain ID where the script only knows a
// number (scripts never hold raw Entity values).
type worldHandle struct {
	lookup func(kind world.EntityKind, id uint64) (world.Entity, bool)
	host   Host
}

var worldMethods = []lua.RegistryFunction{
	{Name: "name_of_room", Function: worldNameOfRoom},
	{Name: "name_of_player", Function: worldNameOfPlayer},
}

func checkWorld(state *lua.State) *worldHandle {
	ud := lua.CheckUserData(state, 1, worldMetaTable)
	h, ok := ud.(*worldHandle)
	if !ok {
		lua.Errorf(state, "invalid WORLD handle")
	}
	return h
}

func worldNameOfRoom(state *lua.State) int {
	h := checkWorld(state)
	id := lua.CheckInteger(state, 2)
	e, ok := h.lookup(world.KindRoom, uint64(id))
	if !ok {
		state.PushNil()
		return 1
	}
	state.PushString(h.host.Name(e))
	return 1
}

func worldNameOfPlayer(state *lua.State) int {
	h := checkWorld(state)
	id := lua.CheckInteger(state, 2)
	e, ok := h.lookup(world.KindPlayer, uint64(id))
	if !ok {
		state.PushNil()
		return 1
	}
	state.PushString(h.host.Name(e))
	return 1
}

// eventHandle is the userdata bound as EVENT for event-driven triggers.
type eventHandle struct {
	ev Event
}

var eventMethods = []lua.RegistryFunction{
	{Name: "kind", Function: eventKind},
	{Name: "field", Function: eventField},
}

func checkEvent(state *lua.State) *eventHandle {
	ud := lua.CheckUserData(state, 1, eventMetaTable)
	h, ok := ud.(*eventHandle)
	if !ok {
		lua.Errorf(state, "invalid EVENT handle")
	}
	return h
}

func eventKind(state *lua.State) int {
	state.PushString(checkEvent(state).ev.Kind)
	return 1
}

func eventField(state *lua.State) int {
	h := checkEvent(state)
	key := lua.CheckString(state, 2)
	state.PushString(h.ev.Fields[key])
	return 1
}

func registerMetaTable(state *lua.State, name string, methods []lua.RegistryFunction) {
	lua.NewMetaTable(state, name)
	state.NewTable()
	lua.SetFunctions(state, methods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

// Dispatch runs one script against host entity with the given event (nil
// for Init/Timer triggers that carry no payload) and, for PreEvent hooks,
// an initial allow_action value. It returns the final value of
// allow_action (irrelevant for non-PreEvent kinds) and any runtime error,
// which the caller is responsible for recording via Host.RecordError —
// kept a caller responsibility so the (host, script) key is available
// without threading it through Dispatch's signature.
func (rt *Runtime) Dispatch(scriptName, code string, self world.Entity, kind world.TriggerKind, ev *Event, lookup func(world.EntityKind, uint64) (world.Entity, bool)) (allowAction bool, err error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	registerMetaTable(state, selfMetaTable, selfMethods)
	registerMetaTable(state, worldMetaTable, worldMethods)
	registerMetaTable(state, eventMetaTable, eventMethods)

	state.PushUserData(&selfHandle{entity: self, host: rt.host})
	lua.SetMetaTableNamed(state, selfMetaTable)
	state.SetGlobal("SELF")

	state.PushUserData(&worldHandle{lookup: lookup, host: rt.host})
	lua.SetMetaTableNamed(state, worldMetaTable)
	state.SetGlobal("WORLD")

	if ev != nil {
		state.PushUserData(&eventHandle{ev: *ev})
		lua.SetMetaTableNamed(state, eventMetaTable)
		state.SetGlobal("EVENT")
	}

	if kind == world.KindPreEventHook {
		state.PushBoolean(true)
		state.SetGlobal("allow_action")
	}

	if loadErr := lua.LoadString(state, code); loadErr != nil {
		return true, fmt.Errorf("scripting: load %s: %w", scriptName, loadErr)
	}
	if callErr := state.ProtectedCall(0, 0, 0); callErr != nil {
		return true, fmt.Errorf("scripting: run %s: %w", scriptName, callErr)
	}

	if kind != world.KindPreEventHook {
		return true, nil
	}
	state.Global("allow_action")
	defer state.Pop(1)
	if state.TypeOf(-1) != lua.TypeBoolean {
		return true, nil
	}
	return state.ToBoolean(-1), nil
}
