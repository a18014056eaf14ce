package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"example.com/remud/internal/world"
)

// Journal drains world.Updates in submission order against a Store. It is
// owned by the background worker the engine hands its end-of-tick queue to
// (spec.md §4.7): systems never write to durable storage directly, they
// push a record here instead.
type Journal struct {
	store *Store
}

func NewJournal(s *Store) *Journal {
	return &Journal{store: s}
}

// Apply runs every update in updates, in order, inside one transaction (a
// tick's records are an ordered fragment: spec.md's "Records from a tick
// are applied in submission order"). An update whose Kind this journal
// doesn't recognize is ignored rather than failing the batch — forward
// compatibility for a future record kind an older binary doesn't know yet.
func (j *Journal) Apply(ctx context.Context, updates []world.Update) error {
	if len(updates) == 0 {
		return nil
	}
	return j.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			if err := j.applyOne(ctx, tx, u); err != nil {
				return fmt.Errorf("store: apply %s: %w", u.Kind, err)
			}
		}
		return nil
	})
}

func (j *Journal) applyOne(ctx context.Context, tx *sql.Tx, u world.Update) error {
	switch u.Kind {
	case "room.create":
		p := u.Payload.(struct {
			Room        world.RoomId
			Name        string
			Description string
		})
		return j.roomCreate(ctx, tx, p.Room, p.Name, p.Description)
	case "room.name":
		p := u.Payload.(struct {
			Room world.RoomId
			Name string
		})
		return j.roomSetName(ctx, tx, p.Room, p.Name)
	case "room.description":
		p := u.Payload.(struct {
			Room        world.RoomId
			Description string
		})
		return j.roomSetDescription(ctx, tx, p.Room, p.Description)
	case "room.exit":
		p := u.Payload.(struct {
			Room        world.RoomId
			Direction   world.Direction
			Destination world.RoomId
		})
		return j.roomSetExit(ctx, tx, p.Room, p.Direction, p.Destination)
	case "prototype.create":
		p := u.Payload.(struct {
			Prototype   world.PrototypeId
			Name        string
			Description string
		})
		return j.protoCreate(ctx, tx, p.Prototype, p.Name, p.Description)
	case "object.create":
		p := u.Payload.(struct {
			Object    world.ObjectId
			Prototype world.PrototypeId
			Room      world.RoomId
		})
		return j.objectCreate(ctx, tx, p.Object, p.Prototype, p.Room)
	case "object.inherit":
		p := u.Payload.(struct {
			Object world.ObjectId
			Field  string
		})
		return j.objectClearOverride(ctx, tx, p.Object, p.Field)
	case "object.override":
		p := u.Payload.(struct {
			Object world.ObjectId
			Field  string
			Value  string
		})
		return j.objectSetOverride(ctx, tx, p.Object, p.Field, p.Value)
	case "player.room":
		p := u.Payload.(struct {
			Player world.PlayerId
			Room   world.RoomId
		})
		return j.playerSetRoom(ctx, tx, p.Player, p.Room)
	case "room.remove":
		p := u.Payload.(struct {
			Room world.RoomId
		})
		return j.roomRemove(ctx, tx, p.Room)
	case "object.materialize_scripts":
		p := u.Payload.(struct {
			Object world.ObjectId
			Hooks  []world.ScriptHook
		})
		return j.objectMaterializeScripts(ctx, tx, p.Object, p.Hooks)
	case "hook.attach":
		p := u.Payload.(struct {
			Host    HookHost
			HostID  uint64
			Script  string
			Trigger world.Trigger
			Kind    world.TriggerKind
		})
		return j.hookAttach(ctx, tx, p.Host, p.HostID, p.Script, p.Trigger, p.Kind)
	case "hook.detach":
		p := u.Payload.(struct {
			Host   HookHost
			HostID uint64
			Script string
		})
		return j.hookDetach(ctx, tx, p.Host, p.HostID, p.Script)
	}
	return nil
}

func (j *Journal) roomCreate(ctx context.Context, tx *sql.Tx, id world.RoomId, name, desc string) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		j.store.rooms[uint64(id)] = roomRow{ID: uint64(id), Name: name, Description: desc}
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (id,name,description) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE name=VALUES(name), description=VALUES(description)`,
		uint64(id), name, desc)
	return err
}

func (j *Journal) roomSetName(ctx context.Context, tx *sql.Tx, id world.RoomId, name string) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		r := j.store.rooms[uint64(id)]
		r.ID = uint64(id)
		r.Name = name
		j.store.rooms[uint64(id)] = r
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE rooms SET name=? WHERE id=?`, name, uint64(id))
	return err
}

func (j *Journal) roomSetDescription(ctx context.Context, tx *sql.Tx, id world.RoomId, desc string) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		r := j.store.rooms[uint64(id)]
		r.ID = uint64(id)
		r.Description = desc
		j.store.rooms[uint64(id)] = r
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE rooms SET description=? WHERE id=?`, desc, uint64(id))
	return err
}

func (j *Journal) roomSetExit(ctx context.Context, tx *sql.Tx, room world.RoomId, dir world.Direction, dest world.RoomId) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		exits := j.store.exits[uint64(room)]
		for i, e := range exits {
			if e.Direction == string(dir) {
				exits[i].DestinationID = uint64(dest)
				j.store.exits[uint64(room)] = exits
				return nil
			}
		}
		j.store.exits[uint64(room)] = append(exits, exitRow{Direction: string(dir), DestinationID: uint64(dest)})
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO exits (room_id,direction,destination_id) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE destination_id=VALUES(destination_id)`,
		uint64(room), string(dir), uint64(dest))
	return err
}

// roomRemove despawns a non-void room: any room_objects rows it still owns
// are reassigned to the void room (id 0), matching the world-side relocation
// applyRoomRemove already performed, and the room's own row, its outbound
// exits, regions and hooks are deleted. Inbound exits elsewhere that still
// point at this room id are left as-is — the spec states only that "a room
// with RoomId = 0 always exists" and that destroying any other room
// relocates its occupants, not that every other room's exit table is
// rewritten; an administrator who digs a passage to a room they then
// destroy is expected to also clear that exit.
func (j *Journal) roomRemove(ctx context.Context, tx *sql.Tx, id world.RoomId) error {
	if id == world.VoidRoomId {
		return nil
	}
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		void := uint64(world.VoidRoomId)
		j.store.roomObjs[void] = append(j.store.roomObjs[void], j.store.roomObjs[uint64(id)]...)
		delete(j.store.roomObjs, uint64(id))
		delete(j.store.rooms, uint64(id))
		delete(j.store.exits, uint64(id))
		delete(j.store.regions, uint64(id))
		delete(j.store.hooks, hookKey{Kind: HookHostRoom, ID: uint64(id)})
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE room_objects SET room_id=? WHERE room_id=?`, uint64(world.VoidRoomId), uint64(id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_hooks WHERE room_id=?`, uint64(id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_regions WHERE room_id=?`, uint64(id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM exits WHERE room_id=?`, uint64(id)); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id=?`, uint64(id))
	return err
}

func (j *Journal) protoCreate(ctx context.Context, tx *sql.Tx, id world.PrototypeId, name, desc string) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		j.store.protos[uint64(id)] = protoRow{ID: uint64(id), Name: name, Description: desc}
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO prototypes (id,name,description) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE name=VALUES(name), description=VALUES(description)`,
		uint64(id), name, desc)
	return err
}

func (j *Journal) objectCreate(ctx context.Context, tx *sql.Tx, id world.ObjectId, proto world.PrototypeId, room world.RoomId) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		j.store.objects[uint64(id)] = objectRow{ID: uint64(id), PrototypeID: uint64(proto), InheritScripts: true}
		j.store.roomObjs[uint64(room)] = append(j.store.roomObjs[uint64(room)], uint64(id))
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO objects (id,prototype_id,inherit_scripts) VALUES (?,?,TRUE)`,
		uint64(id), uint64(proto)); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO room_objects (room_id,object_id,position) VALUES (?,?,
			(SELECT COALESCE(MAX(position)+1,0) FROM room_objects AS ro WHERE ro.room_id=?))`,
		uint64(room), uint64(id), uint64(room))
	return err
}

// objectClearOverride sets one of an object's inheritable fields back to
// "inherit from prototype" (NULL), matching the spec's object::Inherit
// journal record.
func (j *Journal) objectClearOverride(ctx context.Context, tx *sql.Tx, id world.ObjectId, field string) error {
	column, err := objectOverrideColumn(field)
	if err != nil {
		return err
	}
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		o := j.store.objects[uint64(id)]
		clearObjectOverride(&o, field)
		j.store.objects[uint64(id)] = o
		return nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE objects SET `+column+`=NULL WHERE id=?`, uint64(id))
	return err
}

func (j *Journal) objectSetOverride(ctx context.Context, tx *sql.Tx, id world.ObjectId, field, value string) error {
	column, err := objectOverrideColumn(field)
	if err != nil {
		return err
	}
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		o := j.store.objects[uint64(id)]
		setObjectOverride(&o, field, value)
		j.store.objects[uint64(id)] = o
		return nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE objects SET `+column+`=? WHERE id=?`, value, uint64(id))
	return err
}

func objectOverrideColumn(field string) (string, error) {
	switch field {
	case "name":
		return "name", nil
	case "description":
		return "description", nil
	case "flags":
		return "flags", nil
	case "keywords":
		return "keywords", nil
	default:
		return "", fmt.Errorf("unknown object override field %q", field)
	}
}

func clearObjectOverride(o *objectRow, field string) {
	switch field {
	case "name":
		o.Name = nil
	case "description":
		o.Description = nil
	case "flags":
		o.Flags = nil
	case "keywords":
		o.Keywords = nil
	}
}

func setObjectOverride(o *objectRow, field, value string) {
	switch field {
	case "name":
		o.Name = &value
	case "description":
		o.Description = &value
	case "keywords":
		o.Keywords = &value
	case "flags":
		if n, err := strconv.ParseUint(value, 10, 8); err == nil {
			f := uint8(n)
			o.Flags = &f
		}
	}
}

func (j *Journal) playerSetRoom(ctx context.Context, tx *sql.Tx, player world.PlayerId, room world.RoomId) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		for name, p := range j.store.players {
			if p.ID == uint64(player) {
				p.RoomID = uint64(room)
				j.store.players[name] = p
				return nil
			}
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE players SET room_id=? WHERE id=?`, uint64(room), uint64(player))
	return err
}

// objectMaterializeScripts bakes an inherited hook set onto an object row:
// inherit_scripts flips to false and hooks is replaced wholesale with the
// copy the world side already resolved, so this never reads the prototype's
// own hook rows — it just persists what AttachHook/DetachHook computed.
func (j *Journal) objectMaterializeScripts(ctx context.Context, tx *sql.Tx, id world.ObjectId, hooks []world.ScriptHook) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		o := j.store.objects[uint64(id)]
		o.InheritScripts = false
		j.store.objects[uint64(id)] = o
		rows := make([]hookRow, len(hooks))
		for i, h := range hooks {
			rows[i] = hookRow{ScriptName: h.Script, Trigger: string(h.Trigger), Kind: string(h.Kind)}
		}
		j.store.hooks[hookKey{Kind: HookHostObject, ID: uint64(id)}] = rows
		return nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE objects SET inherit_scripts=FALSE WHERE id=?`, uint64(id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM object_hooks WHERE object_id=?`, uint64(id)); err != nil {
		return err
	}
	for i, h := range hooks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO object_hooks (object_id,script_name,trigger_name,kind,position) VALUES (?,?,?,?,?)`,
			uint64(id), h.Script, string(h.Trigger), string(h.Kind), i); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) hookAttach(ctx context.Context, tx *sql.Tx, host HookHost, hostID uint64, script string, trig world.Trigger, kind world.TriggerKind) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		key := hookKey{Kind: host, ID: hostID}
		list := j.store.hooks[key]
		for i, h := range list {
			if h.ScriptName == script && h.Kind == string(kind) {
				list[i] = hookRow{ScriptName: script, Trigger: string(trig), Kind: string(kind)}
				j.store.hooks[key] = list
				return nil
			}
		}
		j.store.hooks[key] = append(list, hookRow{ScriptName: script, Trigger: string(trig), Kind: string(kind)})
		return nil
	}
	table, column := hookTable(host)
	q := fmt.Sprintf(`INSERT INTO %s (%s,script_name,trigger_name,kind,position)
		VALUES (?,?,?,?,(SELECT COALESCE(MAX(position)+1,0) FROM %s AS t WHERE t.%s=?))
		ON DUPLICATE KEY UPDATE trigger_name=VALUES(trigger_name)`, table, column, table, column)
	_, err := tx.ExecContext(ctx, q, hostID, script, string(trig), string(kind), hostID)
	return err
}

func (j *Journal) hookDetach(ctx context.Context, tx *sql.Tx, host HookHost, hostID uint64, script string) error {
	if j.store.MemoryMode {
		j.store.mu.Lock()
		defer j.store.mu.Unlock()
		key := hookKey{Kind: host, ID: hostID}
		list := j.store.hooks[key]
		out := list[:0]
		for _, h := range list {
			if h.ScriptName != script {
				out = append(out, h)
			}
		}
		j.store.hooks[key] = out
		return nil
	}
	table, column := hookTable(host)
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=? AND script_name=?`, table, column), hostID, script)
	return err
}

func hookTable(host HookHost) (table, column string) {
	switch host {
	case HookHostRoom:
		return "room_hooks", "room_id"
	case HookHostObject:
		return "object_hooks", "object_id"
	case HookHostPrototype:
		return "prototype_hooks", "prototype_id"
	case HookHostPlayer:
		return "player_hooks", "player_id"
	default:
		return "room_hooks", "room_id"
	}
}
