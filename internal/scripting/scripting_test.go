package scripting

import (
	"strings"
	"testing"

	"example.com/remud/internal/world"
)

type queuedAction struct {
	actor world.Entity
	kind  string
	args  []string
}

type fakeHost struct {
	names    map[world.Entity]string
	descs    map[world.Entity]string
	flags    map[world.Entity]world.ObjectFlags
	queued   []queuedAction
	errors   map[string]string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		names:  map[world.Entity]string{},
		descs:  map[world.Entity]string{},
		flags:  map[world.Entity]world.ObjectFlags{},
		errors: map[string]string{},
	}
}

func (h *fakeHost) Name(e world.Entity) string        { return h.names[e] }
func (h *fakeHost) Description(e world.Entity) string  { return h.descs[e] }
func (h *fakeHost) SetName(e world.Entity, name string) { h.names[e] = name }
func (h *fakeHost) SetDescription(e world.Entity, desc string) { h.descs[e] = desc }
func (h *fakeHost) HasFlag(e world.Entity, flag world.ObjectFlags) bool {
	return h.flags[e].Has(flag)
}
func (h *fakeHost) QueueAction(actor world.Entity, kind string, args ...string) {
	h.queued = append(h.queued, queuedAction{actor: actor, kind: kind, args: args})
}
func (h *fakeHost) RecordError(host world.Entity, script string, err string) {
	h.errors[script] = err
}

func noLookup(world.EntityKind, uint64) (world.Entity, bool) { return world.Entity{}, false }

func TestCompileValidScriptReturnsEmptyString(t *testing.T) {
	rt := NewRuntime(newFakeHost())
	if got := rt.Compile("greet", `SELF:say("hello")`); got != "" {
		t.Fatalf("Compile() = %q, want empty string for valid script", got)
	}
}

func TestCompileSyntaxErrorReturnsMessage(t *testing.T) {
	rt := NewRuntime(newFakeHost())
	got := rt.Compile("broken", `SELF:say("hello"`)
	if got == "" {
		t.Fatal("Compile() = \"\", want a non-empty error for malformed source")
	}
}

func TestDispatchSayQueuesAction(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}
	host.names[actor] = "Shane"

	allow, err := rt.Dispatch("greet", `SELF:say("hello there")`, actor, world.KindPostEventHook, nil, noLookup)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !allow {
		t.Fatal("Dispatch() allow = false, want true for a PostEvent hook")
	}
	if len(host.queued) != 1 {
		t.Fatalf("queued actions = %d, want 1", len(host.queued))
	}
	got := host.queued[0]
	if got.kind != "say" || len(got.args) != 1 || got.args[0] != "hello there" {
		t.Fatalf("queued action = %+v, want say(\"hello there\")", got)
	}
}

func TestDispatchPreEventHookCanDenyAction(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}

	allow, err := rt.Dispatch("guard", `allow_action = false`, actor, world.KindPreEventHook, nil, noLookup)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if allow {
		t.Fatal("Dispatch() allow = true, want false after script sets allow_action = false")
	}
}

func TestDispatchPreEventHookDefaultsToAllow(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}

	allow, err := rt.Dispatch("noop", `local x = 1`, actor, world.KindPreEventHook, nil, noLookup)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !allow {
		t.Fatal("Dispatch() allow = false, want true when script never touches allow_action")
	}
}

func TestDispatchReadsSelfNameAndDescription(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}
	host.names[actor] = "a rusty sword"
	host.descs[actor] = "It is pitted with age."

	_, err := rt.Dispatch("inspect", `
		if SELF:name() ~= "a rusty sword" then error("wrong name") end
		if SELF:description() ~= "It is pitted with age." then error("wrong description") end
	`, actor, world.KindPostEventHook, nil, noLookup)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want script assertions to pass", err)
	}
}

func TestDispatchIsFixedReflectsHostFlag(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}
	host.flags[actor] = world.ObjectFixed

	_, err := rt.Dispatch("check", `if not SELF:is_fixed() then error("expected fixed") end`,
		actor, world.KindPostEventHook, nil, noLookup)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

func TestDispatchEventFieldIsReadable(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}
	ev := &Event{Kind: "Say", Actor: actor, Fields: map[string]string{"message": "hi"}}

	_, err := rt.Dispatch("observe", `
		if EVENT:kind() ~= "Say" then error("wrong kind") end
		if EVENT:field("message") ~= "hi" then error("wrong field") end
	`, actor, world.KindPostEventHook, ev, noLookup)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

func TestDispatchWorldLookupMissingEntityIsNil(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}

	_, err := rt.Dispatch("lookup", `if WORLD:name_of_room(999) ~= nil then error("expected nil") end`,
		actor, world.KindPostEventHook, nil, noLookup)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

func TestDispatchRuntimeErrorIsWrapped(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(host)
	actor := world.Entity{}

	_, err := rt.Dispatch("boom", `error("deliberate failure")`, actor, world.KindPostEventHook, nil, noLookup)
	if err == nil {
		t.Fatal("Dispatch() error = nil, want a wrapped runtime error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Dispatch() error = %v, want it to name the script", err)
	}
}
