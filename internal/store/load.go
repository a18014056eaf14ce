package store

import (
	"context"
	"database/sql"
	"strings"

	"example.com/remud/internal/world"
)

// Loaded bundles everything cold load produces: the populated world plus
// every process-singleton index, ready to hand to the engine.
type Loaded struct {
	World      *world.World
	Rooms      *world.Rooms
	Objects    *world.Objects
	Prototypes *world.Prototypes
	Players    *world.Players
	Scripts    *world.Scripts
}

// Load reads every table back into a fresh world.World, resolving object
// inheritance and hook attachment, and seeds each domain ID counter from
// the store's maximum (spec.md §3: "counter seeded from the store's
// maximum at load"). It creates the void room (id 0) if it isn't present,
// since the spec guarantees it always exists.
func Load(ctx context.Context, s *Store) (*Loaded, error) {
	w := world.New()
	rooms := world.NewRooms()
	objects := world.NewObjects()
	protos := world.NewPrototypes()
	players := world.NewPlayers()
	scripts := world.NewScripts()

	// No other goroutine can reach w until Load returns it, but every
	// world.Insert/Get still goes through the same lock the running engine
	// uses so a future refactor that parallelizes load doesn't silently
	// drop the invariant.
	w.Lock()
	defer w.Unlock()

	roomRows, err := s.allRooms(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := roomRows[uint64(world.VoidRoomId)]; !ok {
		roomRows[uint64(world.VoidRoomId)] = roomRow{ID: uint64(world.VoidRoomId), Name: "The Void", Description: "An empty grey nothing."}
	}

	roomEntities := make(map[uint64]world.Entity, len(roomRows))
	rawExits := make(map[uint64]map[world.Direction]uint64, len(roomRows))
	var maxRoom uint64
	for id, r := range roomRows {
		e := w.Spawn()
		world.Insert(w, e, world.Named{Name: r.Name})
		world.Insert(w, e, world.Description{Text: r.Description})
		dests, err := s.rawExits(ctx, id)
		if err != nil {
			return nil, err
		}
		rawExits[id] = dests
		world.Insert(w, e, world.Room{ID: world.RoomId(id), Exits: make(map[world.Direction]world.Entity), Players: nil})
		world.Insert(w, e, world.Contents{})
		regions, err := s.regionsFor(ctx, id)
		if err != nil {
			return nil, err
		}
		world.Insert(w, e, world.Regions{List: regions})
		world.Insert(w, e, world.Timers{ByName: map[string]world.Timer{}})
		world.Insert(w, e, world.ExecutionErrors{ByScript: map[string]string{}})
		rooms.Insert(world.RoomId(id), e)
		roomEntities[id] = e
		if id > maxRoom {
			maxRoom = id
		}
	}
	// A second pass resolves each exit's destination entity now that every
	// room has one, since exits may reference rooms created later in id
	// order than their source. Dangling exits (destination never persisted)
	// are dropped rather than left pointing at a nil entity.
	for id, e := range roomEntities {
		dests := rawExits[id]
		if len(dests) == 0 {
			continue
		}
		r, _ := world.Get[world.Room](w, e)
		for dir, destID := range dests {
			if destEntity, ok := roomEntities[destID]; ok {
				r.Exits[dir] = destEntity
			}
		}
		world.Insert(w, e, r)
	}

	protoRows, err := s.allPrototypes(ctx)
	if err != nil {
		return nil, err
	}
	protoEntities := make(map[uint64]world.Entity, len(protoRows))
	var maxProto uint64
	for id, p := range protoRows {
		e := w.Spawn()
		world.Insert(w, e, world.Prototype{ID: world.PrototypeId(id)})
		world.Insert(w, e, world.Named{Name: p.Name})
		world.Insert(w, e, world.Description{Text: p.Description})
		world.Insert(w, e, world.ObjectFlags(p.Flags))
		world.Insert(w, e, world.Keywords{List: splitKeywords(p.Keywords)})
		world.Insert(w, e, world.ExecutionErrors{ByScript: map[string]string{}})
		protos.Insert(world.PrototypeId(id), e)
		protoEntities[id] = e
		if id > maxProto {
			maxProto = id
		}
	}

	objRows, err := s.allObjects(ctx)
	if err != nil {
		return nil, err
	}
	objEntities := make(map[uint64]world.Entity, len(objRows))
	var maxObject uint64
	for id, o := range objRows {
		e := w.Spawn()
		protoEntity := protoEntities[o.PrototypeID]
		obj := world.Object{
			ID:             world.ObjectId(id),
			Prototype:      protoEntity,
			InheritScripts: o.InheritScripts,
		}
		if o.Name != nil {
			obj.NameOverride = world.Override[string]{Set: true, Value: *o.Name}
		}
		if o.Description != nil {
			obj.DescriptionOverride = world.Override[string]{Set: true, Value: *o.Description}
		}
		if o.Flags != nil {
			obj.FlagsOverride = world.Override[world.ObjectFlags]{Set: true, Value: world.ObjectFlags(*o.Flags)}
		}
		if o.Keywords != nil {
			obj.KeywordsOverride = world.Override[[]string]{Set: true, Value: splitKeywords(*o.Keywords)}
		}
		world.Insert(w, e, obj)
		kw := o.Keywords
		if kw != nil {
			world.Insert(w, e, world.Keywords{List: splitKeywords(*kw)})
		} else if protoEntity != world.Nil {
			if pk, ok := world.Get[world.Keywords](w, protoEntity); ok {
				world.Insert(w, e, pk)
			}
		}
		world.Insert(w, e, world.ExecutionErrors{ByScript: map[string]string{}})
		objects.Insert(world.ObjectId(id), e)
		objEntities[id] = e
		if id > maxObject {
			maxObject = id
		}
	}

	playerRows, err := s.allPlayers(ctx)
	if err != nil {
		return nil, err
	}
	var maxPlayer uint64
	for _, p := range playerRows {
		e := w.Spawn()
		world.Insert(w, e, world.Player{ID: world.PlayerId(p.ID)})
		world.Insert(w, e, world.Named{Name: p.Name})
		world.Insert(w, e, world.PlayerFlags(p.Flags))
		world.Insert(w, e, world.Attributes{Strength: p.Strength, Agility: p.Agility, Intellect: p.Intellect})
		world.Insert(w, e, world.Health{Current: p.HealthCurrent, Max: p.HealthMax})
		world.Insert(w, e, world.Contents{})
		world.Insert(w, e, world.Messages{})
		world.Insert(w, e, world.Timers{ByName: map[string]world.Timer{}})
		world.Insert(w, e, world.ExecutionErrors{ByScript: map[string]string{}})
		players.Insert(world.PlayerId(p.ID), p.Name, e)
		if p.ID > maxPlayer {
			maxPlayer = p.ID
		}
		// Persisted players are not placed in a Location/Room.Players until
		// they actually log in (spec.md §3: "session entity is spawned on
		// login, despawned on disconnect"); room_id is read back by the
		// session directory's login handoff instead.
	}

	for id, e := range roomEntities {
		rows, err := s.objectsInRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		var contents []world.Entity
		for _, objID := range rows {
			if oe, ok := objEntities[objID]; ok {
				contents = append(contents, oe)
				world.Insert(w, oe, world.Location{Room: e})
			}
		}
		if len(contents) > 0 {
			world.Insert(w, e, world.Contents{Objects: contents})
		}
	}

	rooms.Seed(maxRoom)
	objects.Seed(maxObject)
	protos.Seed(maxProto)
	players.Seed(maxPlayer)

	scriptRows, err := s.allScripts(ctx)
	if err != nil {
		return nil, err
	}
	for name, r := range scriptRows {
		scripts.ByName[name] = world.ScriptSource{Name: name, Trigger: world.Trigger(r.Trigger), Code: r.Code, CompileErr: r.CompileError}
	}

	if err := loadHooks(ctx, s, w, HookHostRoom, roomEntities); err != nil {
		return nil, err
	}
	if err := loadHooks(ctx, s, w, HookHostObject, objEntities); err != nil {
		return nil, err
	}
	if err := loadHooks(ctx, s, w, HookHostPrototype, protoEntities); err != nil {
		return nil, err
	}

	return &Loaded{World: w, Rooms: rooms, Objects: objects, Prototypes: protos, Players: players, Scripts: scripts}, nil
}

func loadHooks(ctx context.Context, s *Store, w *world.World, host HookHost, entities map[uint64]world.Entity) error {
	for id, e := range entities {
		rows, err := s.hooksFor(ctx, host, id)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		list := make([]world.ScriptHook, 0, len(rows))
		for _, r := range rows {
			list = append(list, world.ScriptHook{Trigger: world.Trigger(r.Trigger), Kind: world.TriggerKind(r.Kind), Script: r.ScriptName})
		}
		world.Insert(w, e, world.ScriptHooks{List: list})
	}
	return nil
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func (s *Store) allRooms(ctx context.Context) (map[uint64]roomRow, error) {
	out := make(map[uint64]roomRow)
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for id, r := range s.rooms {
			out[id] = r
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id,name,description FROM rooms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r roomRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// rawExits reads a room's exits keyed by destination RoomId, not Entity:
// Load resolves these to entities once every room has been spawned, since
// an exit may point at a room created later in iteration order.
func (s *Store) rawExits(ctx context.Context, roomID uint64) (map[world.Direction]uint64, error) {
	out := make(map[world.Direction]uint64)
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, e := range s.exits[roomID] {
			out[world.Direction(e.Direction)] = e.DestinationID
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT direction,destination_id FROM exits WHERE room_id=?`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var dir string
		var dest uint64
		if err := rows.Scan(&dir, &dest); err != nil {
			return nil, err
		}
		out[world.Direction(dir)] = dest
	}
	return out, rows.Err()
}

func (s *Store) regionsFor(ctx context.Context, roomID uint64) ([]string, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return append([]string(nil), s.regions[roomID]...), nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT region FROM room_regions WHERE room_id=?`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, err
		}
		out = append(out, region)
	}
	return out, rows.Err()
}

func (s *Store) allPrototypes(ctx context.Context) (map[uint64]protoRow, error) {
	out := make(map[uint64]protoRow)
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for id, p := range s.protos {
			out[id] = p
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id,name,description,flags,keywords FROM prototypes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p protoRow
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Flags, &p.Keywords); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) allObjects(ctx context.Context) (map[uint64]objectRow, error) {
	out := make(map[uint64]objectRow)
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for id, o := range s.objects {
			out[id] = o
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id,prototype_id,inherit_scripts,name,description,flags,keywords FROM objects`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var o objectRow
		var flags sql.NullInt64
		var name, desc, keywords sql.NullString
		if err := rows.Scan(&o.ID, &o.PrototypeID, &o.InheritScripts, &name, &desc, &flags, &keywords); err != nil {
			return nil, err
		}
		if name.Valid {
			v := name.String
			o.Name = &v
		}
		if desc.Valid {
			v := desc.String
			o.Description = &v
		}
		if flags.Valid {
			v := uint8(flags.Int64)
			o.Flags = &v
		}
		if keywords.Valid {
			v := keywords.String
			o.Keywords = &v
		}
		out[o.ID] = o
	}
	return out, rows.Err()
}

func (s *Store) objectsInRoom(ctx context.Context, roomID uint64) ([]uint64, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return append([]uint64(nil), s.roomObjs[roomID]...), nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT object_id FROM room_objects WHERE room_id=? ORDER BY position ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) allPlayers(ctx context.Context) ([]playerRow, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]playerRow, 0, len(s.players))
		for _, p := range s.players {
			out = append(out, p)
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT name,password_hash,id,room_id,flags,strength,agility,intellect,health_current,health_max FROM players`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []playerRow
	for rows.Next() {
		var p playerRow
		if err := rows.Scan(&p.Name, &p.PasswordHash, &p.ID, &p.RoomID, &p.Flags, &p.Strength, &p.Agility, &p.Intellect, &p.HealthCurrent, &p.HealthMax); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) allScripts(ctx context.Context) (map[string]scriptRow, error) {
	out := make(map[string]scriptRow)
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for name, r := range s.scripts {
			out[name] = r
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT name,trigger_name,code,compile_error FROM scripts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r scriptRow
		if err := rows.Scan(&r.Name, &r.Trigger, &r.Code, &r.CompileError); err != nil {
			return nil, err
		}
		out[r.Name] = r
	}
	return out, rows.Err()
}

func (s *Store) hooksFor(ctx context.Context, host HookHost, hostID uint64) ([]hookRow, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return append([]hookRow(nil), s.hooks[hookKey{Kind: host, ID: hostID}]...), nil
	}
	table, column := hookTable(host)
	rows, err := s.DB.QueryContext(ctx, `SELECT script_name,trigger_name,kind FROM `+table+` WHERE `+column+`=? ORDER BY position ASC`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []hookRow
	for rows.Next() {
		var h hookRow
		if err := rows.Scan(&h.ScriptName, &h.Trigger, &h.Kind); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
