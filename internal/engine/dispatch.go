package engine

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/remud/internal/action"
	"example.com/remud/internal/scripting"
	"example.com/remud/internal/session"
	"example.com/remud/internal/world"
)

// ingestInput drains Submit's inbox: a negotiate-state line is handed
// straight to its session.Stack, an in-game line is parsed into an Action
// and queued for this tick's PreEvent/Update stage.
func (e *Engine) ingestInput() {
	e.inboxMu.Lock()
	lines := e.inbox
	e.inbox = nil
	e.inboxMu.Unlock()

	for _, in := range lines {
		e.clientsMu.Lock()
		conn, ok := e.clients[in.client]
		e.clientsMu.Unlock()
		if !ok {
			continue
		}
		if conn.stack.Current().ID() != session.StateInGame {
			conn.stack.Handle(in.line)
			continue
		}
		if conn.actor.IsNil() {
			continue
		}
		immortal := false
		if flags, ok := world.Get[world.PlayerFlags](e.World, conn.actor); ok {
			immortal = flags.Has(world.PlayerImmortal)
		}
		act, err := action.Parse(conn.actor, in.line, immortal)
		if err != nil {
			var parseErr *action.ParseError
			if errors.As(err, &parseErr) {
				world.GetMut(e.World, conn.actor, func(m *world.Messages) { m.Push(parseErr.Message) })
			}
			if e.metrics != nil {
				e.metrics.CommandReject.WithLabelValues("parse").Inc()
			}
			continue
		}
		e.ActionQueue.Push(conn.actor, act)
	}
}

// requeueTimedActions moves every TimedAction due by now back onto the
// ActionQueue so it runs through the ordinary pre/post-script pipeline
// like any client-submitted action.
func (e *Engine) requeueTimedActions() {
	for _, ta := range e.TimedActions.Ready(time.Now().UnixNano()) {
		act, ok := ta.Action.(action.Action)
		if !ok {
			continue
		}
		e.ActionQueue.Push(act.Actor(), act)
	}
}

// runPreScripts drains this tick's ActionQueue and runs each action's
// PreEvent hooks, recording whether it survives to commit. Actions whose
// trigger has no PreEvent kind (the Init/Timer-only ones) always commit.
func (e *Engine) runPreScripts() {
	batch := e.ActionQueue.Drain()
	e.committed = e.committed[:0]
	for _, qa := range batch {
		act, ok := qa.Action.(action.Action)
		if !ok {
			continue
		}
		allow := true
		if hasKind(act.Kind(), world.KindPreEventHook) {
			allow = e.runHooks(act, world.KindPreEventHook)
		}
		e.committed = append(e.committed, committedAction{act: act, allowed: allow})
	}
}

// applyCommitted runs the Main-phase mutation for every action that
// survived its pre-scripts. Vetoed actions are dropped silently here; the
// veto itself is the only feedback a player gets (spec.md §4.4).
func (e *Engine) applyCommitted() {
	for _, c := range e.committed {
		if c.allowed {
			e.Systems.Apply(c.act)
		}
	}
}

// runPostScripts runs PostEvent hooks for every committed, applied action.
func (e *Engine) runPostScripts() {
	for _, c := range e.committed {
		if !c.allowed {
			continue
		}
		if hasKind(c.act.Kind(), world.KindPostEventHook) {
			e.runHooks(c.act, world.KindPostEventHook)
		}
	}
}

func hasKind(t world.Trigger, want world.TriggerKind) bool {
	for _, k := range t.ValidKinds() {
		if k == want {
			return true
		}
	}
	return false
}

// gatherHosts lists every scriptable entity that can see act's effect, in
// spec.md §4.4's fixed dispatch order: the room itself, the objects lying
// in it (insertion order), the players standing in it (join order), then
// each of those players' inventory objects (insertion order).
func (e *Engine) gatherHosts(room world.Entity) []world.Entity {
	hosts := []world.Entity{room}
	if c, ok := world.Get[world.Contents](e.World, room); ok {
		hosts = append(hosts, c.Objects...)
	}
	var players []world.Entity
	if r, ok := world.Get[world.Room](e.World, room); ok {
		players = r.Players
	}
	hosts = append(hosts, players...)
	for _, p := range players {
		if c, ok := world.Get[world.Contents](e.World, p); ok {
			hosts = append(hosts, c.Objects...)
		}
	}
	return hosts
}

// effectiveHooks resolves host's live hook set: a prototype or any entity not
// carrying an Object component uses its own ScriptHooks directly, but an
// object still flagged InheritScripts has never had a hook table of its own
// materialized onto it (AttachHook/DetachHook only do that the first time
// someone edits its hooks), so dispatch has to resolve it dynamically onto
// the prototype's hooks instead (spec.md §4.4: "inherit_scripts selects the
// prototype's hook set").
func (e *Engine) effectiveHooks(host world.Entity) (world.ScriptHooks, bool) {
	if obj, ok := world.Get[world.Object](e.World, host); ok && obj.InheritScripts {
		return world.Get[world.ScriptHooks](e.World, obj.Prototype)
	}
	return world.Get[world.ScriptHooks](e.World, host)
}

// runHooks dispatches every hook on every gathered host matching act's
// trigger and kind, in each host's own hook insertion order. For
// PreEvent, the return is the cumulative AND of every matching hook's
// allow_action — any false vetoes the action.
func (e *Engine) runHooks(act action.Action, kind world.TriggerKind) bool {
	room, ok := e.roomOf(act.Actor())
	if !ok {
		return true
	}
	ev := eventForAction(act)
	allow := true
	for _, host := range e.gatherHosts(room) {
		hooks, ok := e.effectiveHooks(host)
		if !ok {
			continue
		}
		for _, h := range hooks.List {
			if h.Trigger != act.Kind() || h.Kind != kind {
				continue
			}
			src, ok := e.Scripts.ByName[h.Script]
			if !ok || src.CompileErr != "" {
				continue
			}
			result, err := e.Runtime.Dispatch(h.Script, src.Code, host, kind, &ev, e.lookupEntity)
			if err != nil {
				e.recordScriptError(host, h.Script, err.Error())
				continue
			}
			if kind == world.KindPreEventHook && !result {
				allow = false
			}
		}
	}
	return allow
}

// dispatchTimers fires every due Timer's Timer-kind hooks directly — a
// timer has no actor-rooted audience to gather, so it runs against its
// own host entity only, re-arming repeating timers with the same period.
func (e *Engine) dispatchTimers() {
	now := time.Now()
	for _, ent := range world.Query1[world.Timers](e.World) {
		timers, ok := world.Get[world.Timers](e.World, ent)
		if !ok {
			continue
		}
		hooks, hasHooks := e.effectiveHooks(ent)
		changed := false
		for name, t := range timers.ByName {
			if t.Due.After(now) {
				continue
			}
			changed = true
			if hasHooks {
				ev := scripting.Event{Kind: string(world.TriggerTimer), Actor: ent, Fields: map[string]string{"name": name}}
				for _, h := range hooks.List {
					if h.Trigger != world.TriggerTimer || h.Kind != world.KindTimerHook {
						continue
					}
					src, ok := e.Scripts.ByName[h.Script]
					if !ok || src.CompileErr != "" {
						continue
					}
					if _, err := e.Runtime.Dispatch(h.Script, src.Code, ent, world.KindTimerHook, &ev, e.lookupEntity); err != nil {
						e.recordScriptError(ent, h.Script, err.Error())
					}
				}
			}
			if t.Repeating {
				t.Due = now.Add(t.Period)
				timers.ByName[name] = t
			} else {
				delete(timers.ByName, name)
			}
		}
		if changed {
			world.Insert(e.World, ent, timers)
		}
	}
}

// recordScriptError writes err onto host's ExecutionErrors under script's
// key and bumps the script-error metric; RecordError on hostAdapter calls
// through to this same path for errors scripts trigger against themselves.
func (e *Engine) recordScriptError(host world.Entity, script, msg string) {
	world.GetMut(e.World, host, func(ee *world.ExecutionErrors) {
		if ee.ByScript == nil {
			ee.ByScript = map[string]string{}
		}
		ee.ByScript[script] = msg
	})
	e.Updates.Push("script.error", struct {
		Script string
		Error  string
	}{script, msg})
	e.adminFeed.publish(AdminEvent{Kind: AdminEventScriptError, Script: script, Error: msg})
	if e.metrics != nil {
		e.metrics.ScriptErrorTotal.WithLabelValues(script).Inc()
	}
	if e.logger != nil {
		e.logger.Warn("script error", zap.String("script", script), zap.String("error", msg))
	}
}

// lookupEntity adapts the four domain indices into the single
// (kind, id) -> Entity function scripting.Runtime.Dispatch calls WORLD
// accessors through.
func (e *Engine) lookupEntity(kind world.EntityKind, id uint64) (world.Entity, bool) {
	switch kind {
	case world.KindRoom:
		return e.Rooms.Lookup(world.RoomId(id))
	case world.KindObject:
		return e.Objects.Lookup(world.ObjectId(id))
	case world.KindPrototype:
		return e.Prototypes.Lookup(world.PrototypeId(id))
	case world.KindPlayer:
		return e.Players.Lookup(world.PlayerId(id))
	default:
		return world.Nil, false
	}
}

// eventForAction projects an Action's fields into the string-keyed map a
// script's EVENT:field() reads, keeping the mapping in one place so a new
// Action variant is an easy, visible omission rather than a silent gap.
func eventForAction(act action.Action) scripting.Event {
	ev := scripting.Event{Kind: string(act.Kind()), Actor: act.Actor(), Fields: map[string]string{}}
	switch v := act.(type) {
	case action.Move:
		ev.Fields["direction"] = string(v.Direction)
	case action.Say:
		ev.Fields["message"] = v.Message
	case action.Emote:
		ev.Fields["message"] = v.Message
	case action.LookAt:
		ev.Fields["keywords"] = strings.Join(v.Keywords, " ")
	case action.Get:
		ev.Fields["keywords"] = strings.Join(v.Keywords, " ")
	case action.Drop:
		ev.Fields["keywords"] = strings.Join(v.Keywords, " ")
	case action.Use:
		ev.Fields["keywords"] = strings.Join(v.Keywords, " ")
	case action.Send:
		ev.Fields["recipient"] = v.Recipient
		ev.Fields["message"] = v.Message
	}
	return ev
}

// hostAdapter is the scripting.Host the Runtime dispatches against: it
// reads and writes components directly for name/description/flags, and
// funnels everything else (say/emote/move, runtime errors) back through
// the ordinary action queue and ExecutionErrors component so a script can
// never bypass the pipeline's ordering.
type hostAdapter struct {
	e *Engine
}

func (h *hostAdapter) Name(e world.Entity) string { return h.e.nameOf(e) }

func (h *hostAdapter) Description(e world.Entity) string {
	if d, ok := world.Get[world.Description](h.e.World, e); ok {
		return d.Text
	}
	return ""
}

func (h *hostAdapter) SetName(e world.Entity, name string) {
	world.Insert(h.e.World, e, world.Named{Name: name})
}

func (h *hostAdapter) SetDescription(e world.Entity, desc string) {
	world.Insert(h.e.World, e, world.Description{Text: desc})
}

func (h *hostAdapter) HasFlag(e world.Entity, flag world.ObjectFlags) bool {
	if o, ok := world.Get[world.Object](h.e.World, e); ok {
		if o.FlagsOverride.Set {
			return o.FlagsOverride.Value.Has(flag)
		}
		if proto, ok := world.Get[world.ObjectFlags](h.e.World, o.Prototype); ok {
			return proto.Has(flag)
		}
		return false
	}
	if f, ok := world.Get[world.ObjectFlags](h.e.World, e); ok {
		return f.Has(flag)
	}
	return false
}

func (h *hostAdapter) QueueAction(actor world.Entity, kind string, args ...string) {
	var act action.Action
	switch kind {
	case "say":
		if len(args) < 1 {
			return
		}
		act = action.NewSay(actor, args[0])
	case "emote":
		if len(args) < 1 {
			return
		}
		act = action.NewEmote(actor, args[0])
	case "move":
		if len(args) < 1 {
			return
		}
		act = action.NewMove(actor, world.Direction(args[0]))
	default:
		return
	}
	h.e.ActionQueue.Push(actor, act)
}

func (h *hostAdapter) RecordError(host world.Entity, script string, err string) {
	h.e.recordScriptError(host, script, err)
}
