package world

import "container/heap"

// index is a bidirectional mapping between a dense domain ID and the
// entity currently holding it, plus the counter that issues new IDs.
// Rooms, Objects, Prototypes and Players each get one of these; despawning
// an entity and removing it from the owning index must happen together or
// the store and index diverge (the spec's index/store invariant).
type index struct {
	counter  IDCounter
	byID     map[uint64]Entity
	entityID map[Entity]uint64
}

func newIndex() *index {
	return &index{byID: make(map[uint64]Entity), entityID: make(map[Entity]uint64)}
}

func (x *index) insert(id uint64, e Entity) {
	x.byID[id] = e
	x.entityID[e] = id
}

func (x *index) remove(e Entity) {
	if id, ok := x.entityID[e]; ok {
		delete(x.byID, id)
		delete(x.entityID, e)
	}
}

func (x *index) lookup(id uint64) (Entity, bool) {
	e, ok := x.byID[id]
	return e, ok
}

func (x *index) idOf(e Entity) (uint64, bool) {
	id, ok := x.entityID[e]
	return id, ok
}

// Rooms indexes RoomId -> Entity.
type Rooms struct{ index }

// Objects indexes ObjectId -> Entity.
type Objects struct{ index }

// Prototypes indexes PrototypeId -> Entity.
type Prototypes struct{ index }

// Players indexes PlayerId -> Entity, plus name -> PlayerId for login
// lookup (names are unique and case-insensitive at the storage layer).
type Players struct {
	index
	byName map[string]PlayerId
}

func NewRooms() *Rooms            { return &Rooms{index: *newIndex()} }
func NewObjects() *Objects        { return &Objects{index: *newIndex()} }
func NewPrototypes() *Prototypes  { return &Prototypes{index: *newIndex()} }
func NewPlayers() *Players {
	return &Players{index: *newIndex(), byName: make(map[string]PlayerId)}
}

func (r *Rooms) Lookup(id RoomId) (Entity, bool)            { return r.lookup(uint64(id)) }
func (r *Rooms) Insert(id RoomId, e Entity)                 { r.insert(uint64(id), e) }
func (r *Rooms) IDOf(e Entity) (RoomId, bool) {
	id, ok := r.idOf(e)
	return RoomId(id), ok
}

// Seed sets the room ID counter so the next spawned room gets max+1,
// matching the store's highest persisted room ID at cold load.
func (r *Rooms) Seed(max uint64) { r.counter.Seed(max) }

// Remove drops e from the room index, used when a room is destroyed. The
// caller is responsible for despawning e itself and for relocating
// whatever it held before calling Remove.
func (r *Rooms) Remove(e Entity) { r.index.remove(e) }

// Next issues the next unused RoomId without spawning an entity for it.
func (r *Rooms) Next() RoomId { return RoomId(r.counter.Next()) }

func (o *Objects) Lookup(id ObjectId) (Entity, bool)        { return o.lookup(uint64(id)) }
func (o *Objects) Insert(id ObjectId, e Entity)             { o.insert(uint64(id), e) }
func (o *Objects) IDOf(e Entity) (ObjectId, bool) {
	id, ok := o.idOf(e)
	return ObjectId(id), ok
}

func (o *Objects) Seed(max uint64) { o.counter.Seed(max) }
func (o *Objects) Next() ObjectId  { return ObjectId(o.counter.Next()) }

func (p *Prototypes) Lookup(id PrototypeId) (Entity, bool)  { return p.lookup(uint64(id)) }
func (p *Prototypes) Insert(id PrototypeId, e Entity)       { p.insert(uint64(id), e) }
func (p *Prototypes) IDOf(e Entity) (PrototypeId, bool) {
	id, ok := p.idOf(e)
	return PrototypeId(id), ok
}

func (p *Prototypes) Seed(max uint64) { p.counter.Seed(max) }
func (p *Prototypes) Next() PrototypeId { return PrototypeId(p.counter.Next()) }

func (p *Players) Lookup(id PlayerId) (Entity, bool)        { return p.lookup(uint64(id)) }
func (p *Players) IDOf(e Entity) (PlayerId, bool) {
	id, ok := p.idOf(e)
	return PlayerId(id), ok
}

func (p *Players) Seed(max uint64) { p.counter.Seed(max) }
func (p *Players) Next() PlayerId  { return PlayerId(p.counter.Next()) }

func (p *Players) Insert(id PlayerId, name string, e Entity) {
	p.insert(uint64(id), e)
	p.byName[name] = id
}

func (p *Players) Remove(e Entity) {
	p.index.remove(e)
	for name, id := range p.byName {
		if _, ok := p.byID[uint64(id)]; !ok {
			delete(p.byName, name)
		}
	}
}

func (p *Players) LookupName(name string) (PlayerId, bool) {
	id, ok := p.byName[name]
	return id, ok
}

// Scripts indexes script name -> source text and compile state. The
// scripting runtime owns compilation; this resource is just the name
// index so HTTP CRUD and the dispatcher can find source by name.
type Scripts struct {
	ByName map[string]ScriptSource
}

// ScriptSource is one script's durable content plus its most recent
// compile outcome.
type ScriptSource struct {
	Name        string
	Trigger     Trigger
	Code        string
	CompileErr  string
}

func NewScripts() *Scripts {
	return &Scripts{ByName: make(map[string]ScriptSource)}
}

// Update is one outbound journal record produced during a tick, destined
// for the persistence worker in submission order.
type Update struct {
	Kind    string
	Payload any
}

// Updates is the outbound queue the journal worker drains after each tick.
// It is only ever appended to during a tick and only ever drained between
// ticks, so no lock is needed beyond the world lock already held by the
// appending system.
type Updates struct {
	Pending []Update
}

func (u *Updates) Push(kind string, payload any) {
	u.Pending = append(u.Pending, Update{Kind: kind, Payload: payload})
}

// Drain removes and returns every pending update, in submission order.
func (u *Updates) Drain() []Update {
	out := u.Pending
	u.Pending = nil
	return out
}

// Configuration is the engine's shutdown/restart/spawn-point state,
// mutated only by privileged actions and read by the tick loop between
// stages.
type Configuration struct {
	ShutdownRequested bool
	RestartRequested  bool
	SpawnRoom         RoomId
}

// TimedAction is one action scheduled to re-enter the pipeline at Due,
// ordered by Due and, for equal Due, by Sequence so insertion order is
// preserved and two actions never coalesce into one slot.
type TimedAction struct {
	Due      int64 // UnixNano; see note below on why not time.Time
	Sequence uint64
	Action   any
}

// timedActionHeap is a container/heap.Interface min-heap over TimedAction,
// ordered by (Due, Sequence).
type timedActionHeap []TimedAction

func (h timedActionHeap) Len() int { return len(h) }
func (h timedActionHeap) Less(i, j int) bool {
	if h[i].Due != h[j].Due {
		return h[i].Due < h[j].Due
	}
	return h[i].Sequence < h[j].Sequence
}
func (h timedActionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timedActionHeap) Push(x any)   { *h = append(*h, x.(TimedAction)) }
func (h *timedActionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TimedActions is the priority queue of actions waiting to re-enter the
// pipeline at a future tick. Due is stored as UnixNano rather than
// time.Time so the heap ordering never depends on monotonic-vs-wall
// clock reading quirks across comparisons.
type TimedActions struct {
	heap timedActionHeap
	seq  uint64
}

func NewTimedActions() *TimedActions {
	return &TimedActions{}
}

// Schedule enqueues action to fire at dueUnixNano, returning the sequence
// number assigned for tie-breaking.
func (t *TimedActions) Schedule(dueUnixNano int64, action any) uint64 {
	seq := t.seq
	t.seq++
	heap.Push(&t.heap, TimedAction{Due: dueUnixNano, Sequence: seq, Action: action})
	return seq
}

// Ready pops and returns every action due at or before nowUnixNano, in
// (Due, Sequence) order.
func (t *TimedActions) Ready(nowUnixNano int64) []TimedAction {
	var out []TimedAction
	for t.heap.Len() > 0 && t.heap[0].Due <= nowUnixNano {
		out = append(out, heap.Pop(&t.heap).(TimedAction))
	}
	return out
}

func (t *TimedActions) Len() int { return t.heap.Len() }

// QueuedAction is one action awaiting dispatch in the current tick,
// submitted either by a client command or a fired TimedAction.
type QueuedAction struct {
	Client Entity
	Action any
}

// ActionQueue is the inbound queue of actions to run this tick's Main
// phase, drained in submission order at the start of the stage.
type ActionQueue struct {
	Pending []QueuedAction
}

func (q *ActionQueue) Push(client Entity, action any) {
	q.Pending = append(q.Pending, QueuedAction{Client: client, Action: action})
}

func (q *ActionQueue) Drain() []QueuedAction {
	out := q.Pending
	q.Pending = nil
	return out
}
