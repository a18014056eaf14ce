// Package systems implements the Main-phase action systems: the code
// that actually mutates world.World in response to an applied action.Action,
// the authoritative source of truth for world changes (spec.md §4.3).
package systems

import (
	"fmt"
	"strconv"
	"strings"

	"example.com/remud/internal/action"
	"example.com/remud/internal/store"
	"example.com/remud/internal/text"
	"example.com/remud/internal/world"
)

// Systems bundles the world plus the process-singleton resources action
// systems read and write. It is owned by the engine task; every method
// here assumes the caller already holds the world's write lock for the
// duration of the call, matching the tick's Main phase.
type Systems struct {
	World         *world.World
	Rooms         *world.Rooms
	Objects       *world.Objects
	Players       *world.Players
	Prototypes    *world.Prototypes
	Scripts       *world.Scripts
	Updates       *world.Updates
	Configuration *world.Configuration
	ActionQueue   *world.ActionQueue
}

// SyncScript mirrors a script CRUD write from the durable store's
// ScriptRepo onto the live world.Scripts cache the dispatcher reads,
// keeping the two in step without the hot tick path ever touching SQL.
// Callers must hold the world's write lock, same as Apply.
func (s *Systems) SyncScript(src world.ScriptSource) {
	if s.Scripts == nil {
		return
	}
	s.Scripts.ByName[src.Name] = src
}

// ForgetScript removes name from the live world.Scripts cache after a
// durable delete. Callers must hold the world's write lock.
func (s *Systems) ForgetScript(name string) {
	if s.Scripts == nil {
		return
	}
	delete(s.Scripts.ByName, name)
}

// Apply runs the Main-phase mutation for one action. It never suspends
// and never errors to the caller: user-visible failures are queued as a
// Messages line on the actor, and internal inconsistencies are dropped
// silently (the caller is expected to log them before calling Apply, or
// wrap Apply to do so — kept out of this function to keep it a pure
// world transform for testing).
func (s *Systems) Apply(a action.Action) {
	switch act := a.(type) {
	case action.Move:
		s.applyMove(act)
	case action.Say:
		s.applySay(act)
	case action.Emote:
		s.applyEmote(act)
	case action.Look:
		s.applyLook(act.Actor())
	case action.LookAt:
		s.applyLookAt(act)
	case action.Exits:
		s.applyExits(act.Actor())
	case action.Inventory:
		s.applyInventory(act.Actor())
	case action.Get:
		s.applyGet(act)
	case action.Drop:
		s.applyDrop(act)
	case action.Send:
		s.applySend(act)
	case action.Use:
		s.applyUse(act)
	case action.Shutdown:
		s.applyShutdown()
	case action.Teleport:
		s.applyTeleport(act)
	case action.Dig:
		s.applyDig(act)
	case action.RoomName:
		s.applyRoomName(act)
	case action.RoomDescription:
		s.applyRoomDescription(act)
	case action.MakePrototype:
		s.applyMakePrototype(act)
	case action.SpawnObject:
		s.applySpawnObject(act)
	case action.RoomRemove:
		s.applyRoomRemove(act)
	}
}

func (s *Systems) tell(e world.Entity, line string) {
	world.GetMut(s.World, e, func(m *world.Messages) { m.Push(line) })
}

func (s *Systems) roomOf(e world.Entity) (world.Entity, bool) {
	loc, ok := world.Get[world.Location](s.World, e)
	if !ok {
		return world.Nil, false
	}
	return loc.Room, true
}

func (s *Systems) roomPlayers(room world.Entity) []world.Entity {
	r, ok := world.Get[world.Room](s.World, room)
	if !ok {
		return nil
	}
	return r.Players
}

// applyMove validates the exit, relocates the actor between rooms,
// announces arrival/departure, journals the new room, and queues an
// implicit Look.
func (s *Systems) applyMove(act action.Move) {
	actor := act.Actor()
	srcRoom, ok := s.roomOf(actor)
	if !ok {
		return
	}
	r, ok := world.Get[world.Room](s.World, srcRoom)
	if !ok {
		return
	}
	dest, ok := r.Exits[act.Direction]
	if !ok {
		s.tell(actor, fmt.Sprintf("You can't go %s from here.", act.Direction))
		return
	}
	destRoom, ok := world.Get[world.Room](s.World, dest)
	if !ok {
		s.tell(actor, fmt.Sprintf("You can't go %s from here.", act.Direction))
		return
	}

	removePlayer(&r.Players, actor)
	world.Insert(s.World, srcRoom, r)

	destRoom.Players = append(destRoom.Players, actor)
	world.Insert(s.World, dest, destRoom)

	world.GetMut(s.World, actor, func(loc *world.Location) { loc.Room = dest })

	name := s.nameOf(actor)
	for _, p := range r.Players {
		if p == actor {
			continue
		}
		s.tell(p, fmt.Sprintf("%s leaves to the %s.", name, act.Direction))
	}
	for _, p := range destRoom.Players {
		if p == actor {
			continue
		}
		s.tell(p, fmt.Sprintf("%s arrives.", name))
	}

	if pid, ok := s.Players.IDOf(actor); ok {
		if rid, ok := s.Rooms.IDOf(dest); ok {
			s.Updates.Push("player.room", struct {
				Player world.PlayerId
				Room   world.RoomId
			}{pid, rid})
		}
	}

	if s.ActionQueue != nil {
		s.ActionQueue.Push(actor, action.NewLook(actor))
	}
}

func removePlayer(players *[]world.Entity, target world.Entity) {
	out := (*players)[:0]
	for _, p := range *players {
		if p != target {
			out = append(out, p)
		}
	}
	*players = out
}

func (s *Systems) nameOf(e world.Entity) string {
	if n, ok := world.Get[world.Named](s.World, e); ok {
		return n.Name
	}
	return "Someone"
}

func (s *Systems) applySay(act action.Say) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	name := s.nameOf(actor)
	for _, p := range s.roomPlayers(room) {
		if p == actor {
			s.tell(p, fmt.Sprintf("You say, \"%s\"", act.Message))
			continue
		}
		s.tell(p, fmt.Sprintf("%s says, \"%s\"", name, act.Message))
	}
}

func (s *Systems) applyEmote(act action.Emote) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	name := s.nameOf(actor)
	for _, p := range s.roomPlayers(room) {
		s.tell(p, fmt.Sprintf("%s %s", name, act.Message))
	}
}

func (s *Systems) applyLook(actor world.Entity) {
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	s.tell(actor, s.describeRoom(room))
}

func (s *Systems) describeRoom(room world.Entity) string {
	var b strings.Builder
	if n, ok := world.Get[world.Named](s.World, room); ok {
		b.WriteString(text.Render(n.Name))
		b.WriteString("\n")
	}
	if d, ok := world.Get[world.Description](s.World, room); ok {
		b.WriteString(text.Render(d.Text))
	}
	return b.String()
}

// applyLookAt performs the three-tier keyword search: players by exact
// full name, then room objects by all-keywords-match, then the actor's
// own inventory objects by all-keywords-match.
func (s *Systems) applyLookAt(act action.LookAt) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	wantName := strings.ToLower(strings.Join(act.Keywords, " "))
	for _, p := range s.roomPlayers(room) {
		if strings.ToLower(s.nameOf(p)) == wantName {
			s.tell(actor, s.describeEntity(p))
			return
		}
	}
	if c, ok := world.Get[world.Contents](s.World, room); ok {
		if target, ok := s.matchKeywords(c.Objects, act.Keywords); ok {
			s.tell(actor, s.describeEntity(target))
			return
		}
	}
	if c, ok := world.Get[world.Contents](s.World, actor); ok {
		if target, ok := s.matchKeywords(c.Objects, act.Keywords); ok {
			s.tell(actor, s.describeEntity(target))
			return
		}
	}
	s.tell(actor, "You don't see that here.")
}

func (s *Systems) matchKeywords(candidates []world.Entity, want []string) (world.Entity, bool) {
	for _, c := range candidates {
		kw, ok := world.Get[world.Keywords](s.World, c)
		if !ok {
			continue
		}
		if allKeywordsMatch(kw.List, want) {
			return c, true
		}
	}
	return world.Nil, false
}

func allKeywordsMatch(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[strings.ToLower(h)] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[strings.ToLower(w)]; !ok {
			return false
		}
	}
	return true
}

func (s *Systems) describeEntity(e world.Entity) string {
	var b strings.Builder
	if n, ok := world.Get[world.Named](s.World, e); ok {
		b.WriteString(text.Render(n.Name))
		b.WriteString("\n")
	}
	if d, ok := world.Get[world.Description](s.World, e); ok {
		b.WriteString(text.Render(d.Text))
	}
	return b.String()
}

func (s *Systems) applyExits(actor world.Entity) {
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	r, ok := world.Get[world.Room](s.World, room)
	if !ok || len(r.Exits) == 0 {
		s.tell(actor, "There are no exits.")
		return
	}
	dirs := make([]string, 0, len(r.Exits))
	for d := range r.Exits {
		dirs = append(dirs, string(d))
	}
	s.tell(actor, "Exits: "+text.WordList(dirs))
}

func (s *Systems) applyInventory(actor world.Entity) {
	c, ok := world.Get[world.Contents](s.World, actor)
	if !ok || len(c.Objects) == 0 {
		s.tell(actor, "You aren't carrying anything.")
		return
	}
	names := make([]string, 0, len(c.Objects))
	for _, o := range c.Objects {
		names = append(names, s.nameOf(o))
	}
	s.tell(actor, "You are carrying: "+text.WordList(names))
}

// relocate moves object from one container entity's Contents to another,
// updating the Container component on object to match.
func (s *Systems) relocate(object, from, to world.Entity) {
	world.GetMut(s.World, from, func(c *world.Contents) {
		out := c.Objects[:0]
		for _, o := range c.Objects {
			if o != object {
				out = append(out, o)
			}
		}
		c.Objects = out
	})
	world.GetMut(s.World, to, func(c *world.Contents) {
		c.Objects = append(c.Objects, object)
	})
	world.Insert(s.World, object, world.Container{Entity: to})
}

func (s *Systems) applyGet(act action.Get) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	c, ok := world.Get[world.Contents](s.World, room)
	if !ok {
		s.tell(actor, "You don't see that here.")
		return
	}
	target, ok := s.matchKeywords(c.Objects, act.Keywords)
	if !ok {
		s.tell(actor, "You don't see that here.")
		return
	}
	if flags, ok := world.Get[world.Object](s.World, target); ok {
		if resolvedFlags(s.World, flags).Has(world.ObjectFixed) {
			s.tell(actor, "You can't take that.")
			return
		}
	}
	s.relocate(target, room, actor)
	s.tell(actor, fmt.Sprintf("You take %s.", s.nameOf(target)))
}

func resolvedFlags(w *world.World, o world.Object) world.ObjectFlags {
	if o.FlagsOverride.Set {
		return o.FlagsOverride.Value
	}
	if proto, ok := world.Get[world.ObjectFlags](w, o.Prototype); ok {
		return proto
	}
	return 0
}

func (s *Systems) applyDrop(act action.Drop) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	c, ok := world.Get[world.Contents](s.World, actor)
	if !ok {
		s.tell(actor, "You aren't carrying that.")
		return
	}
	target, ok := s.matchKeywords(c.Objects, act.Keywords)
	if !ok {
		s.tell(actor, "You aren't carrying that.")
		return
	}
	s.relocate(target, actor, room)
	s.tell(actor, fmt.Sprintf("You drop %s.", s.nameOf(target)))
}

func (s *Systems) applySend(act action.Send) {
	actor := act.Actor()
	pid, ok := s.Players.LookupName(act.Recipient)
	if !ok {
		s.tell(actor, "User not found.")
		return
	}
	recipient, ok := s.Players.Lookup(pid)
	if !ok {
		s.tell(actor, "User not found.")
		return
	}
	name := s.nameOf(actor)
	s.tell(recipient, fmt.Sprintf("%s sends, \"%s\"", name, act.Message))
	s.tell(actor, fmt.Sprintf("You send, \"%s\"", act.Message))
}

// applyUse has no built-in effect beyond giving the object's script hooks
// a chance to run; behavior is entirely script-driven, matching spec.md's
// treatment of Use as a hook-only trigger.
func (s *Systems) applyUse(act action.Use) {
	actor := act.Actor()
	var candidates []world.Entity
	if c, ok := world.Get[world.Contents](s.World, actor); ok {
		candidates = append(candidates, c.Objects...)
	}
	if room, ok := s.roomOf(actor); ok {
		if c, ok := world.Get[world.Contents](s.World, room); ok {
			candidates = append(candidates, c.Objects...)
		}
	}
	if _, ok := s.matchKeywords(candidates, act.Keywords); !ok {
		s.tell(actor, "You don't see that here.")
	}
}

func (s *Systems) applyShutdown() {
	s.Configuration.ShutdownRequested = true
}

func (s *Systems) applyTeleport(act action.Teleport) {
	actor := act.Actor()
	dest, ok := s.Rooms.Lookup(act.Target)
	if !ok {
		s.tell(actor, "No such room.")
		return
	}
	if src, ok := s.roomOf(actor); ok {
		world.GetMut(s.World, src, func(r *world.Room) { removePlayer(&r.Players, actor) })
	}
	world.GetMut(s.World, dest, func(r *world.Room) { r.Players = append(r.Players, actor) })
	world.Insert(s.World, actor, world.Location{Room: dest})
	s.applyLook(actor)
}

// applyDig creates a new room off the actor's current room in Direction,
// linking it both ways so an administrator can walk back the way they
// came, and journals the room and both exits.
func (s *Systems) applyDig(act action.Dig) {
	actor := act.Actor()
	src, ok := s.roomOf(actor)
	if !ok {
		return
	}
	srcID, ok := s.Rooms.IDOf(src)
	if !ok {
		return
	}

	newID := s.Rooms.Next()
	room := s.World.Spawn()
	world.Insert(s.World, room, world.Named{Name: act.Name})
	world.Insert(s.World, room, world.Description{Text: act.Description})
	world.Insert(s.World, room, world.Room{ID: newID, Exits: map[world.Direction]world.Entity{act.Direction.Opposite(): src}})
	world.Insert(s.World, room, world.Contents{})
	world.Insert(s.World, room, world.Timers{ByName: map[string]world.Timer{}})
	world.Insert(s.World, room, world.ExecutionErrors{ByScript: map[string]string{}})
	s.Rooms.Insert(newID, room)

	world.GetMut(s.World, src, func(r *world.Room) {
		if r.Exits == nil {
			r.Exits = make(map[world.Direction]world.Entity)
		}
		r.Exits[act.Direction] = room
	})

	s.Updates.Push("room.create", struct {
		Room        world.RoomId
		Name        string
		Description string
	}{newID, act.Name, act.Description})
	s.Updates.Push("room.exit", struct {
		Room        world.RoomId
		Direction   world.Direction
		Destination world.RoomId
	}{srcID, act.Direction, newID})
	s.Updates.Push("room.exit", struct {
		Room        world.RoomId
		Direction   world.Direction
		Destination world.RoomId
	}{newID, act.Direction.Opposite(), srcID})

	s.tell(actor, fmt.Sprintf("You dig %s into a new room.", act.Direction))
}

func (s *Systems) applyRoomName(act action.RoomName) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	rid, ok := s.Rooms.IDOf(room)
	if !ok {
		return
	}
	world.Insert(s.World, room, world.Named{Name: act.Name})
	s.Updates.Push("room.name", struct {
		Room world.RoomId
		Name string
	}{rid, act.Name})
	s.tell(actor, "Room renamed.")
}

func (s *Systems) applyRoomDescription(act action.RoomDescription) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	rid, ok := s.Rooms.IDOf(room)
	if !ok {
		return
	}
	world.Insert(s.World, room, world.Description{Text: act.Description})
	s.Updates.Push("room.description", struct {
		Room        world.RoomId
		Description string
	}{rid, act.Description})
	s.tell(actor, "Room redescribed.")
}

func (s *Systems) applyMakePrototype(act action.MakePrototype) {
	actor := act.Actor()
	id := s.Prototypes.Next()
	e := s.World.Spawn()
	world.Insert(s.World, e, world.Prototype{ID: id})
	world.Insert(s.World, e, world.Named{Name: act.Name})
	world.Insert(s.World, e, world.Description{Text: act.Description})
	world.Insert(s.World, e, world.ObjectFlags(0))
	world.Insert(s.World, e, world.Keywords{List: []string{strings.ToLower(act.Name)}})
	world.Insert(s.World, e, world.ExecutionErrors{ByScript: map[string]string{}})
	s.Prototypes.Insert(id, e)

	s.Updates.Push("prototype.create", struct {
		Prototype   world.PrototypeId
		Name        string
		Description string
	}{id, act.Name, act.Description})
	s.tell(actor, fmt.Sprintf("Prototype #%d created.", uint64(id)))
}

func (s *Systems) applySpawnObject(act action.SpawnObject) {
	actor := act.Actor()
	protoEntity, ok := s.Prototypes.Lookup(act.Prototype)
	if !ok {
		s.tell(actor, "No such prototype.")
		return
	}
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	rid, ok := s.Rooms.IDOf(room)
	if !ok {
		return
	}

	id := s.Objects.Next()
	e := s.World.Spawn()
	world.Insert(s.World, e, world.Object{ID: id, Prototype: protoEntity, InheritScripts: true})
	world.Insert(s.World, e, world.Location{Room: room})
	world.Insert(s.World, e, world.ExecutionErrors{ByScript: map[string]string{}})
	if kw, ok := world.Get[world.Keywords](s.World, protoEntity); ok {
		world.Insert(s.World, e, kw)
	}
	if n, ok := world.Get[world.Named](s.World, protoEntity); ok {
		world.Insert(s.World, e, n)
	}
	if d, ok := world.Get[world.Description](s.World, protoEntity); ok {
		world.Insert(s.World, e, d)
	}
	s.Objects.Insert(id, e)
	world.GetMut(s.World, room, func(c *world.Contents) { c.Objects = append(c.Objects, e) })

	s.Updates.Push("object.create", struct {
		Object    world.ObjectId
		Prototype world.PrototypeId
		Room      world.RoomId
	}{id, act.Prototype, rid})
	s.tell(actor, fmt.Sprintf("Object #%d spawned.", uint64(id)))
}

// applyRoomRemove destroys the actor's current room. Every player and
// contained object is relocated into the void room first (spec.md §3's
// invariant: a destroyed room's occupants and contents move to room 0
// before it is despawned), then the room entity itself is despawned and
// dropped from the Rooms index, and the removal is journaled so the
// relational store reflects it on the next restart.
func (s *Systems) applyRoomRemove(act action.RoomRemove) {
	actor := act.Actor()
	room, ok := s.roomOf(actor)
	if !ok {
		return
	}
	rid, ok := s.Rooms.IDOf(room)
	if !ok {
		return
	}
	if rid == world.VoidRoomId {
		s.tell(actor, "You cannot remove the void.")
		return
	}
	void, ok := s.Rooms.Lookup(world.VoidRoomId)
	if !ok {
		return
	}

	r, ok := world.Get[world.Room](s.World, room)
	if !ok {
		return
	}
	for _, p := range r.Players {
		s.tell(p, "The world begins to disintegrate around you.")
		world.GetMut(s.World, void, func(vr *world.Room) { vr.Players = append(vr.Players, p) })
		world.Insert(s.World, p, world.Location{Room: void})
		if pid, ok := s.Players.IDOf(p); ok {
			s.Updates.Push("player.room", struct {
				Player world.PlayerId
				Room   world.RoomId
			}{pid, world.VoidRoomId})
		}
	}

	if c, ok := world.Get[world.Contents](s.World, room); ok {
		for _, obj := range c.Objects {
			world.Insert(s.World, obj, world.Location{Room: void})
		}
		world.GetMut(s.World, void, func(vc *world.Contents) { vc.Objects = append(vc.Objects, c.Objects...) })
	}

	s.Rooms.Remove(room)
	s.World.Despawn(room)

	s.Updates.Push("room.remove", struct {
		Room world.RoomId
	}{rid})

	for _, p := range r.Players {
		if s.ActionQueue != nil {
			s.ActionQueue.Push(p, action.NewLook(p))
		}
	}
	s.tell(actor, fmt.Sprintf("Room #%d removed.", uint64(rid)))
}

// The methods below are called directly by internal/api's admin HTTP
// handlers rather than through action.Parse/Apply: object override editing
// and hook attachment are structured, multi-field edits spec.md §6 routes
// through JSON instead of a line command (see DESIGN.md's admin command
// scope decision). Callers must hold the world's write lock, same as Apply.

// SetObjectOverride sets object's per-field override to value, baking the
// resolved value onto the entity's live component for name/description/
// keywords (matching how Load resolves overrides at cold load) since those
// three are read directly off the entity elsewhere in this package; flags
// stays resolved through Object.FlagsOverride alone (resolvedFlags).
func (s *Systems) SetObjectOverride(id world.ObjectId, field, value string) error {
	e, ok := s.Objects.Lookup(id)
	if !ok {
		return fmt.Errorf("systems: unknown object %d", uint64(id))
	}
	obj, ok := world.Get[world.Object](s.World, e)
	if !ok {
		return fmt.Errorf("systems: object %d missing its Object component", uint64(id))
	}
	switch field {
	case "name":
		obj.NameOverride = world.Override[string]{Set: true, Value: value}
		world.Insert(s.World, e, world.Named{Name: value})
	case "description":
		obj.DescriptionOverride = world.Override[string]{Set: true, Value: value}
		world.Insert(s.World, e, world.Description{Text: value})
	case "keywords":
		kw := text.Tokenize(value)
		obj.KeywordsOverride = world.Override[[]string]{Set: true, Value: kw}
		world.Insert(s.World, e, world.Keywords{List: kw})
	case "flags":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("systems: bad flags override %q: %w", value, err)
		}
		obj.FlagsOverride = world.Override[world.ObjectFlags]{Set: true, Value: world.ObjectFlags(n)}
	default:
		return fmt.Errorf("systems: unknown object override field %q", field)
	}
	world.Insert(s.World, e, obj)
	s.Updates.Push("object.override", struct {
		Object world.ObjectId
		Field  string
		Value  string
	}{id, field, value})
	return nil
}

// ClearObjectOverride drops object's override on field, re-baking the
// prototype's current value onto the entity for name/description/keywords.
func (s *Systems) ClearObjectOverride(id world.ObjectId, field string) error {
	e, ok := s.Objects.Lookup(id)
	if !ok {
		return fmt.Errorf("systems: unknown object %d", uint64(id))
	}
	obj, ok := world.Get[world.Object](s.World, e)
	if !ok {
		return fmt.Errorf("systems: object %d missing its Object component", uint64(id))
	}
	proto := obj.Prototype
	switch field {
	case "name":
		obj.NameOverride = world.Override[string]{}
		if n, ok := world.Get[world.Named](s.World, proto); ok {
			world.Insert(s.World, e, n)
		}
	case "description":
		obj.DescriptionOverride = world.Override[string]{}
		if d, ok := world.Get[world.Description](s.World, proto); ok {
			world.Insert(s.World, e, d)
		}
	case "keywords":
		obj.KeywordsOverride = world.Override[[]string]{}
		if kw, ok := world.Get[world.Keywords](s.World, proto); ok {
			world.Insert(s.World, e, kw)
		}
	case "flags":
		obj.FlagsOverride = world.Override[world.ObjectFlags]{}
	default:
		return fmt.Errorf("systems: unknown object override field %q", field)
	}
	world.Insert(s.World, e, obj)
	s.Updates.Push("object.inherit", struct {
		Object world.ObjectId
		Field  string
	}{id, field})
	return nil
}

// lookupHost resolves a journal HookHost/id pair to the entity carrying that
// hook table's ScriptHooks component.
func (s *Systems) lookupHost(host store.HookHost, id uint64) (world.Entity, bool) {
	switch host {
	case store.HookHostRoom:
		return s.Rooms.Lookup(world.RoomId(id))
	case store.HookHostObject:
		return s.Objects.Lookup(world.ObjectId(id))
	case store.HookHostPrototype:
		return s.Prototypes.Lookup(world.PrototypeId(id))
	case store.HookHostPlayer:
		return s.Players.Lookup(world.PlayerId(id))
	default:
		return world.Nil, false
	}
}

// materializeObjectHooks bakes an inheriting object's prototype hook set
// onto the object itself and flips InheritScripts off, the one-time step
// spec.md requires before an object's own hook list can be edited ("detaching/
// attaching on an object automatically materializes the inherited set onto
// the object and sets inherit_scripts = false"). A no-op for anything that
// isn't a still-inheriting object.
func (s *Systems) materializeObjectHooks(host store.HookHost, e world.Entity) {
	if host != store.HookHostObject {
		return
	}
	obj, ok := world.Get[world.Object](s.World, e)
	if !ok || !obj.InheritScripts {
		return
	}
	protoHooks, _ := world.Get[world.ScriptHooks](s.World, obj.Prototype)
	copied := append([]world.ScriptHook(nil), protoHooks.List...)
	world.Insert(s.World, e, world.ScriptHooks{List: copied})

	obj.InheritScripts = false
	world.Insert(s.World, e, obj)

	id, _ := s.Objects.IDOf(e)
	s.Updates.Push("object.materialize_scripts", struct {
		Object world.ObjectId
		Hooks  []world.ScriptHook
	}{id, copied})
}

// AttachHook appends a new (trigger, kind, script) binding to host's
// ScriptHooks list. Order is insertion order; spec.md's deterministic
// dispatch depends on that, so this never sorts or dedupes. For an object
// still inheriting its prototype's hooks, the inherited set is materialized
// onto the object first so the new binding lands alongside it rather than
// replacing it.
func (s *Systems) AttachHook(host store.HookHost, id uint64, script string, trig world.Trigger, kind world.TriggerKind) error {
	e, ok := s.lookupHost(host, id)
	if !ok {
		return fmt.Errorf("systems: unknown hook host %s %d", host, id)
	}
	s.materializeObjectHooks(host, e)
	hooks, _ := world.Get[world.ScriptHooks](s.World, e)
	hooks.List = append(hooks.List, world.ScriptHook{Trigger: trig, Kind: kind, Script: script})
	world.Insert(s.World, e, hooks)
	s.Updates.Push("hook.attach", struct {
		Host    store.HookHost
		HostID  uint64
		Script  string
		Trigger world.Trigger
		Kind    world.TriggerKind
	}{host, id, script, trig, kind})
	return nil
}

// DetachHook removes every binding naming script from host's ScriptHooks
// list. For an object still inheriting its prototype's hooks, the inherited
// set is materialized onto the object first, so "detach" on an inheriting
// object means "stop inheriting this one" rather than a no-op.
func (s *Systems) DetachHook(host store.HookHost, id uint64, script string) error {
	e, ok := s.lookupHost(host, id)
	if !ok {
		return fmt.Errorf("systems: unknown hook host %s %d", host, id)
	}
	s.materializeObjectHooks(host, e)
	hooks, ok := world.Get[world.ScriptHooks](s.World, e)
	if !ok {
		return nil
	}
	out := hooks.List[:0]
	for _, h := range hooks.List {
		if h.Script != script {
			out = append(out, h)
		}
	}
	hooks.List = out
	world.Insert(s.World, e, hooks)
	s.Updates.Push("hook.detach", struct {
		Host   store.HookHost
		HostID uint64
		Script string
	}{host, id, script})
	return nil
}
