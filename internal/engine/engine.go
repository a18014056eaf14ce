// Package engine owns the world and every process-singleton resource and
// runs the tick loop (spec.md §4.1): drain inbound client input, PreEvent,
// Main, PostEvent, flush Messages to clients, drain Updates to the
// journal. It is the single place client connections and the HTTP API
// funnel world-mutating requests through, matching spec.md §5's "the
// world is shared mutably only inside the engine task" policy — grounded
// on the teacher's RoomActor (internal/room/room.go), generalized from
// "one room, one command channel" to "one world, three phases".
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/remud/internal/action"
	"example.com/remud/internal/observability"
	"example.com/remud/internal/scheduler"
	"example.com/remud/internal/scripting"
	"example.com/remud/internal/session"
	"example.com/remud/internal/store"
	"example.com/remud/internal/systems"
	"example.com/remud/internal/text"
	"example.com/remud/internal/world"
)

// TickInterval is the fixed tick cadence spec.md §4.1 calls for. A tick
// whose work runs long simply delays the next one; none is ever dropped
// or coalesced (see scheduler.Clock).
const TickInterval = 15 * time.Millisecond

// Sink is how the engine delivers output lines to one connection,
// implemented by the client I/O fabric (internal/netio) and the admin
// live-tail websocket.
type Sink interface {
	Send(line string)
	Prompt(line string, sensitive bool)
	Close()
}

// clientConn is everything the engine tracks per live connection: its
// negotiate FSM stack until login completes, and its in-world actor once
// it does.
type clientConn struct {
	id    session.ClientId
	sink  Sink
	stack *session.Stack
	actor world.Entity
	name  string
}

// playerDirectory adapts store.PlayerRepo to session.Directory.
type playerDirectory struct {
	repo    *store.PlayerRepo
	players *world.Players
}

func (d playerDirectory) IsOnline(name string) bool { return d.repo.IsOnline(name) }
func (d playerDirectory) PasswordHash(name string) (string, bool) {
	return d.repo.PasswordHash(name)
}
func (d playerDirectory) Create(name, passwordHash string) error {
	return d.repo.CreateWithIDs(name, passwordHash, d.players)
}

// Engine bundles the world, its process resources, the live Systems and
// Runtime, the Scheduler driving the tick, the Journal worker, and the
// bookkeeping for every connected client.
type Engine struct {
	World         *world.World
	Rooms         *world.Rooms
	Objects       *world.Objects
	Prototypes    *world.Prototypes
	Players       *world.Players
	Scripts       *world.Scripts
	Updates       *world.Updates
	Configuration *world.Configuration
	TimedActions  *world.TimedActions
	ActionQueue   *world.ActionQueue

	Systems    *systems.Systems
	Runtime    *scripting.Runtime
	Scheduler  *scheduler.Scheduler
	Journal    *store.Journal
	PlayerRepo *store.PlayerRepo
	ScriptRepo *store.ScriptRepo

	logger  *zap.Logger
	metrics *observability.Metrics

	clientsMu sync.Mutex
	clients   map[session.ClientId]*clientConn

	inboxMu sync.Mutex
	inbox   []inboundLine

	journalCh chan []world.Update
	adminFeed *adminFeed
	updateSeq uint64

	// committed holds the actions that survived PreEvent pre-scripts for
	// the tick currently in progress; Main reads it, PostEvent consumes it.
	committed []committedAction
}

type inboundLine struct {
	client session.ClientId
	line   string
}

type committedAction struct {
	act     action.Action
	allowed bool
}

// New builds an Engine from a cold-loaded world and the durable repos the
// HTTP surface and session FSM need, and registers its tick systems.
func New(loaded *store.Loaded, journal *store.Journal, playerRepo *store.PlayerRepo, scriptRepo *store.ScriptRepo, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	e := &Engine{
		World:         loaded.World,
		Rooms:         loaded.Rooms,
		Objects:       loaded.Objects,
		Prototypes:    loaded.Prototypes,
		Players:       loaded.Players,
		Scripts:       loaded.Scripts,
		Updates:       &world.Updates{},
		Configuration: &world.Configuration{SpawnRoom: world.VoidRoomId},
		TimedActions:  world.NewTimedActions(),
		ActionQueue:   &world.ActionQueue{},
		Journal:       journal,
		PlayerRepo:    playerRepo,
		ScriptRepo:    scriptRepo,
		logger:        logger,
		metrics:       metrics,
		clients:       make(map[session.ClientId]*clientConn),
		journalCh:     make(chan []world.Update, 64),
		adminFeed:     newAdminFeed(),
	}
	e.Systems = &systems.Systems{
		World:         e.World,
		Rooms:         e.Rooms,
		Objects:       e.Objects,
		Players:       e.Players,
		Prototypes:    e.Prototypes,
		Scripts:       e.Scripts,
		Updates:       e.Updates,
		Configuration: e.Configuration,
		ActionQueue:   e.ActionQueue,
	}
	e.Runtime = scripting.NewRuntime(&hostAdapter{e: e})
	e.Scheduler = scheduler.New(logger)
	e.registerSystems()
	return e
}

// registerSystems wires the Action Pipeline onto the Scheduler's phases.
// Every system here is Exclusive: the gather/dispatch logic scans
// arbitrary parts of the world for an arbitrary action, so no two
// registered systems have a provably disjoint access set worth declaring
// — parallelism within a stage is left to systems with narrower,
// component-scoped access, which a larger world would add alongside
// these (spec.md's hook-indexing Open Question).
func (e *Engine) registerSystems() {
	e.Scheduler.Register(scheduler.System{
		Name: "ingest-input", Phase: scheduler.PreEvent, Stage: scheduler.First,
		Access: scheduler.Access{Exclusive: true}, Run: e.ingestInput,
	})
	e.Scheduler.Register(scheduler.System{
		Name: "requeue-timed-actions", Phase: scheduler.PreEvent, Stage: scheduler.First,
		Access: scheduler.Access{Exclusive: true}, Run: e.requeueTimedActions,
	})
	e.Scheduler.Register(scheduler.System{
		Name: "pre-event-scripts", Phase: scheduler.PreEvent, Stage: scheduler.Update,
		Access: scheduler.Access{Exclusive: true}, Run: e.runPreScripts,
	})
	e.Scheduler.Register(scheduler.System{
		Name: "apply-actions", Phase: scheduler.Main, Stage: scheduler.Update,
		Access: scheduler.Access{Exclusive: true}, Run: e.applyCommitted,
	})
	e.Scheduler.Register(scheduler.System{
		Name: "timer-dispatch", Phase: scheduler.PostEvent, Stage: scheduler.First,
		Access: scheduler.Access{Exclusive: true}, Run: e.dispatchTimers,
	})
	e.Scheduler.Register(scheduler.System{
		Name: "post-event-scripts", Phase: scheduler.PostEvent, Stage: scheduler.Update,
		Access: scheduler.Access{Exclusive: true}, Run: e.runPostScripts,
	})
}

// Submit enqueues one raw input line from client for processing at the
// start of the next tick. Safe to call from any connection's goroutine.
func (e *Engine) Submit(client session.ClientId, line string) {
	e.inboxMu.Lock()
	e.inbox = append(e.inbox, inboundLine{client: client, line: line})
	e.inboxMu.Unlock()
}

// Connect registers a brand new connection and starts its negotiate FSM,
// returning the ClientId the caller (the I/O fabric) should tag every
// subsequent Submit/Disconnect call with.
func (e *Engine) Connect(sink Sink) session.ClientId {
	id := session.NextClientId()
	conn := &clientConn{id: id, sink: sink}
	params := &session.Params{
		Client:    id,
		Directory: playerDirectory{repo: e.PlayerRepo, players: e.Players},
		Send:      func(line string) { sink.Send(text.Render(line)) },
		Prompt:    func(line string) { sink.Prompt(text.Render(line), false) },
		SensitivePrompt: func(line string) { sink.Prompt(text.Render(line), true) },
		Arrive: func(name string) {
			e.arrive(conn, name)
		},
	}
	conn.stack = session.NewStack(params, session.DefaultFactory, session.StateLoginName)
	e.clientsMu.Lock()
	e.clients[id] = conn
	e.clientsMu.Unlock()
	if e.metrics != nil {
		e.metrics.ActiveConnections.Inc()
	}
	return id
}

// Disconnect tears down a connection: if it reached InGame, despawns its
// session presence from the room it stood in and marks it offline.
func (e *Engine) Disconnect(client session.ClientId) {
	e.clientsMu.Lock()
	conn, ok := e.clients[client]
	delete(e.clients, client)
	e.clientsMu.Unlock()
	if !ok {
		return
	}
	if e.metrics != nil {
		e.metrics.ActiveConnections.Dec()
	}
	if conn.actor.IsNil() {
		return
	}
	e.World.Lock()
	e.departRoom(conn.actor, fmt.Sprintf("%s leaves the game.", conn.name))
	e.World.Unlock()
	e.PlayerRepo.MarkOffline(conn.name)
}

// PublishScriptError reports a compile-time script error to the admin
// live tail. Runtime errors recorded against a host entity go through
// recordScriptError instead, which also writes ExecutionErrors; a script
// that fails to compile has no host yet, only a name.
func (e *Engine) PublishScriptError(script, err string) {
	e.adminFeed.publish(AdminEvent{Kind: AdminEventScriptError, Script: script, Error: err})
	if e.metrics != nil {
		e.metrics.ScriptErrorTotal.WithLabelValues(script).Inc()
	}
}

// ForceLogout disconnects an in-game player by name, pushing the spec's
// forced-logout line before closing the sink (used when single-session
// enforcement bounces an HTTP token for a player currently connected).
func (e *Engine) ForceLogout(name string) {
	e.clientsMu.Lock()
	var target *clientConn
	for _, c := range e.clients {
		if c.name == name {
			target = c
			break
		}
	}
	e.clientsMu.Unlock()
	if target == nil {
		return
	}
	target.sink.Send("Your session was ended by a new login elsewhere.")
	target.sink.Close()
}

// arrive runs once a connection's negotiate FSM reaches InGame: it spawns
// (or finds) the player's in-world presence, attaches it to the spawn
// room, and announces the arrival the way applyMove announces a Move.
func (e *Engine) arrive(conn *clientConn, name string) {
	conn.name = name
	e.PlayerRepo.MarkOnline(name)

	e.World.Lock()
	actor := e.spawnOrFindPlayer(name)
	conn.actor = actor
	room, _ := e.roomOf(actor)
	e.announceArrival(actor, room)
	greeting := e.describeRoomFor(actor)
	e.World.Unlock()

	e.clientsMu.Lock()
	e.clients[conn.id] = conn
	e.clientsMu.Unlock()

	conn.sink.Send(greeting)
}

// roomOf returns the Room entity actor currently stands in. Callers must
// hold at least a read lock.
func (e *Engine) roomOf(actor world.Entity) (world.Entity, bool) {
	loc, ok := world.Get[world.Location](e.World, actor)
	if !ok {
		return world.Nil, false
	}
	return loc.Room, true
}

// nameOf returns actor's display name, or a placeholder if it somehow has
// none. Callers must hold at least a read lock.
func (e *Engine) nameOf(actor world.Entity) string {
	if n, ok := world.Get[world.Named](e.World, actor); ok {
		return n.Name
	}
	return "Someone"
}

// describeRoomFor renders the room actor stands in, the same text a Look
// action produces. Callers must hold at least a read lock.
func (e *Engine) describeRoomFor(actor world.Entity) string {
	room, ok := e.roomOf(actor)
	if !ok {
		return ""
	}
	var b strings.Builder
	if n, ok := world.Get[world.Named](e.World, room); ok {
		b.WriteString(text.Render(n.Name))
		b.WriteString("\n")
	}
	if d, ok := world.Get[world.Description](e.World, room); ok {
		b.WriteString(text.Render(d.Text))
	}
	return b.String()
}

// spawnOrFindPlayer looks the player up by name; if they have never
// logged in before, it spawns a brand new persisted Player entity at the
// configured spawn room. Callers must hold the world lock.
func (e *Engine) spawnOrFindPlayer(name string) world.Entity {
	if id, ok := e.Players.LookupName(name); ok {
		if ent, ok := e.Players.Lookup(id); ok {
			return ent
		}
	}
	// The durable row (and its PlayerId) already exists: either this is a
	// returning player whose entity isn't yet in the index, or verifyPassword
	// just ran Directory.Create, which issued the id from this same
	// e.Players counter. Recovering it here, rather than calling Next()
	// again, keeps the store row and the in-world entity on one id.
	var id world.PlayerId
	if raw, ok := e.PlayerRepo.IDByName(name); ok {
		id = world.PlayerId(raw)
	} else {
		id = e.Players.Next()
	}

	room, ok := e.Rooms.Lookup(e.Configuration.SpawnRoom)
	if !ok {
		room, ok = e.Rooms.Lookup(world.VoidRoomId)
	}
	ent := e.World.Spawn()
	world.Insert(e.World, ent, world.Player{ID: id})
	world.Insert(e.World, ent, world.Named{Name: name})
	world.Insert(e.World, ent, world.Messages{})
	world.Insert(e.World, ent, world.Contents{})
	world.Insert(e.World, ent, world.Attributes{Strength: 10, Agility: 10, Intellect: 10})
	world.Insert(e.World, ent, world.Health{Current: 10, Max: 10})
	world.Insert(e.World, ent, world.Timers{ByName: map[string]world.Timer{}})
	world.Insert(e.World, ent, world.ExecutionErrors{ByScript: map[string]string{}})
	e.Players.Insert(id, name, ent)
	if ok {
		world.Insert(e.World, ent, world.Location{Room: room})
		world.GetMut(e.World, room, func(r *world.Room) { r.Players = append(r.Players, ent) })
	}
	if rid, ok := e.Rooms.IDOf(room); ok {
		e.Updates.Push("player.room", struct {
			Player world.PlayerId
			Room   world.RoomId
		}{id, rid})
	}
	return ent
}

// announceArrival tells every other player in room that name has
// arrived, mirroring applyMove's arrival message. Callers must hold the
// world lock.
func (e *Engine) announceArrival(actor, room world.Entity) {
	if room.IsNil() {
		return
	}
	name := e.nameOf(actor)
	r, ok := world.Get[world.Room](e.World, room)
	if !ok {
		return
	}
	for _, p := range r.Players {
		if p == actor {
			continue
		}
		world.GetMut(e.World, p, func(m *world.Messages) {
			m.Push(fmt.Sprintf("%s has entered the game.", name))
		})
	}
}

// departRoom removes actor from its current room's player list and pushes
// a departure line to the remaining occupants, without despawning the
// persisted entity (the spec keeps the player record; only the session
// presence goes away on disconnect). Callers must hold the world lock.
func (e *Engine) departRoom(actor world.Entity, line string) {
	room, ok := e.roomOf(actor)
	if !ok {
		return
	}
	r, ok := world.Get[world.Room](e.World, room)
	if !ok {
		return
	}
	out := r.Players[:0]
	for _, p := range r.Players {
		if p != actor {
			out = append(out, p)
		}
	}
	r.Players = out
	world.Insert(e.World, room, r)
	for _, p := range r.Players {
		world.GetMut(e.World, p, func(m *world.Messages) { m.Push(line) })
	}
}

// RunTick executes one full tick: the pipeline phases, then flushing
// Messages to clients and Updates to the journal worker. Exported so
// tests can drive ticks one at a time without the Clock.
func (e *Engine) RunTick() error {
	start := time.Now()
	e.World.Lock()
	err := e.Scheduler.RunTick()
	commandCount := len(e.committed)
	updates := e.Updates.Drain()
	lines := e.collectOutbound()
	e.World.Unlock()

	e.deliver(lines)
	seqStart := e.updateSeq
	if len(updates) > 0 {
		e.updateSeq += uint64(len(updates))
		select {
		case e.journalCh <- updates:
		default:
			if e.logger != nil {
				e.logger.Warn("journal channel full, applying inline")
			}
			if e.Journal != nil {
				_ = e.Journal.Apply(context.Background(), updates)
			}
		}
	}
	e.adminFeed.publish(AdminEvent{
		Kind:         AdminEventTick,
		SeqStart:     seqStart,
		SeqEnd:       e.updateSeq,
		CommandCount: commandCount,
		DurationMS:   float64(time.Since(start)) / float64(time.Millisecond),
	})
	if e.metrics != nil {
		e.metrics.ActionQueueDepth.Set(float64(len(e.ActionQueue.Pending)))
	}
	return err
}

type outboundLine struct {
	actor world.Entity
	line  string
}

// collectOutbound drains every player's Messages queue. Callers must
// hold the world lock.
func (e *Engine) collectOutbound() []outboundLine {
	var out []outboundLine
	for _, ent := range world.Query1[world.Player](e.World) {
		m, ok := world.Get[world.Messages](e.World, ent)
		if !ok || len(m.Queue) == 0 {
			continue
		}
		for _, msg := range m.Queue {
			out = append(out, outboundLine{actor: ent, line: msg.Line})
		}
		m.Queue = nil
		world.Insert(e.World, ent, m)
	}
	return out
}

// deliver writes each collected line to the sink of whichever connection
// currently holds that player's actor, if any is connected.
func (e *Engine) deliver(lines []outboundLine) {
	if len(lines) == 0 {
		return
	}
	e.clientsMu.Lock()
	byActor := make(map[world.Entity]Sink, len(e.clients))
	for _, c := range e.clients {
		if !c.actor.IsNil() {
			byActor[c.actor] = c.sink
		}
	}
	e.clientsMu.Unlock()
	for _, l := range lines {
		if sink, ok := byActor[l.actor]; ok {
			sink.Send(text.Render(l.line))
		}
	}
}

// RunJournalWorker drains journalCh and applies each batch to the
// durable store in submission order, the background worker spec.md §4.7
// describes. It returns once ctx is cancelled and the channel is closed.
func (e *Engine) RunJournalWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-e.journalCh:
			if !ok {
				return
			}
			if e.Journal == nil {
				continue
			}
			start := time.Now()
			if err := e.Journal.Apply(ctx, batch); err != nil && e.logger != nil {
				e.logger.Error("journal apply failed", zap.Error(err))
			}
			if e.metrics != nil {
				e.metrics.JournalBatchSize.Observe(float64(len(batch)))
				e.metrics.JournalLagSeconds.Set(time.Since(start).Seconds())
			}
		}
	}
}

// Run drives RunTick at the fixed cadence until stop is closed or a tick
// reports the configuration's shutdown flag set.
func (e *Engine) Run(stop <-chan struct{}) {
	clock := scheduler.Clock{Interval: TickInterval}
	clock.Run(stop, e.RunTick, func(err error) bool {
		if err != nil && e.logger != nil {
			e.logger.Error("tick failed", zap.Error(err))
			if e.metrics != nil {
				e.metrics.TickOverruns.Inc()
			}
		}
		e.World.RLock()
		shutdown := e.Configuration.ShutdownRequested
		e.World.RUnlock()
		return shutdown
	})
}
