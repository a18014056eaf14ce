package systems

import (
	"strings"
	"testing"

	"example.com/remud/internal/action"
	"example.com/remud/internal/world"
)

func newTestSystems() (*Systems, *world.World) {
	w := world.New()
	return &Systems{
		World:         w,
		Rooms:         world.NewRooms(),
		Objects:       world.NewObjects(),
		Players:       world.NewPlayers(),
		Prototypes:    world.NewPrototypes(),
		Updates:       &world.Updates{},
		Configuration: &world.Configuration{},
		ActionQueue:   &world.ActionQueue{},
	}, w
}

func spawnRoom(s *Systems, id world.RoomId, name string) world.Entity {
	e := s.World.Spawn()
	world.Insert(s.World, e, world.Room{ID: id, Exits: map[world.Direction]world.Entity{}})
	world.Insert(s.World, e, world.Named{Name: name})
	world.Insert(s.World, e, world.Description{Text: name + " description"})
	world.Insert(s.World, e, world.Contents{})
	s.Rooms.Insert(id, e)
	return e
}

func spawnPlayer(s *Systems, id world.PlayerId, name string, room world.Entity) world.Entity {
	e := s.World.Spawn()
	world.Insert(s.World, e, world.Player{ID: id})
	world.Insert(s.World, e, world.Named{Name: name})
	world.Insert(s.World, e, world.Location{Room: room})
	world.Insert(s.World, e, world.Messages{})
	world.Insert(s.World, e, world.Contents{})
	s.Players.Insert(id, name, e)
	world.GetMut(s.World, room, func(r *world.Room) { r.Players = append(r.Players, e) })
	return e
}

func lastMessage(s *Systems, e world.Entity) string {
	m, _ := world.Get[world.Messages](s.World, e)
	if len(m.Queue) == 0 {
		return ""
	}
	return m.Queue[len(m.Queue)-1].Line
}

func TestMoveRelocatesPlayerAndAnnouncesTwoWay(t *testing.T) {
	s, w := newTestSystems()
	room1 := spawnRoom(s, 1, "Room One")
	room2 := spawnRoom(s, 2, "Room Two")
	world.GetMut(w, room1, func(r *world.Room) { r.Exits[world.North] = room2 })

	shane := spawnPlayer(s, 1, "Shane", room1)
	krixi := spawnPlayer(s, 2, "krixi", room1)

	s.Apply(buildMove(shane, world.North))

	loc, _ := world.Get[world.Location](w, shane)
	if loc.Room != room2 {
		t.Fatalf("shane's room = %v, want room2", loc.Room)
	}
	r1, _ := world.Get[world.Room](w, room1)
	for _, p := range r1.Players {
		if p == shane {
			t.Fatal("shane still listed in room1's Players")
		}
	}
	r2, _ := world.Get[world.Room](w, room2)
	found := false
	for _, p := range r2.Players {
		if p == shane {
			found = true
		}
	}
	if !found {
		t.Fatal("shane not listed in room2's Players")
	}

	got := lastMessage(s, krixi)
	if !strings.Contains(got, "Shane leaves to the north.") {
		t.Fatalf("krixi message = %q, want mention of Shane leaving north", got)
	}
}

func TestSayDistinguishesSpeaker(t *testing.T) {
	s, _ := newTestSystems()
	room := spawnRoom(s, 1, "Room")
	shane := spawnPlayer(s, 1, "Shane", room)
	krixi := spawnPlayer(s, 2, "krixi", room)

	s.Apply(buildSay(shane, "hello"))

	if got := lastMessage(s, shane); !strings.Contains(got, "You say") {
		t.Fatalf("speaker message = %q, want \"You say...\"", got)
	}
	if got := lastMessage(s, krixi); !strings.Contains(got, "Shane says") {
		t.Fatalf("listener message = %q, want \"Shane says...\"", got)
	}
}

func TestLookAtFindsPlayerByExactName(t *testing.T) {
	s, _ := newTestSystems()
	room := spawnRoom(s, 1, "Room")
	shane := spawnPlayer(s, 1, "Shane", room)
	krixi := spawnPlayer(s, 2, "krixi", room)
	world.Insert(s.World, krixi, world.Description{Text: "A curious sprite."})

	s.Apply(buildLookAt(shane, []string{"krixi"}))

	got := lastMessage(s, shane)
	if !strings.Contains(got, "curious sprite") {
		t.Fatalf("lookat message = %q, want krixi's description", got)
	}
}

func TestDropThenGetRoundTrips(t *testing.T) {
	s, w := newTestSystems()
	room := spawnRoom(s, 1, "Room")
	shane := spawnPlayer(s, 1, "Shane", room)

	sword := w.Spawn()
	world.Insert(w, sword, world.Named{Name: "a sword"})
	world.Insert(w, sword, world.Keywords{List: []string{"sword"}})
	world.Insert(w, sword, world.Object{})
	world.GetMut(w, shane, func(c *world.Contents) { c.Objects = append(c.Objects, sword) })
	world.Insert(w, sword, world.Container{Entity: shane})

	s.Apply(buildDrop(shane, []string{"sword"}))
	roomContents, _ := world.Get[world.Contents](w, room)
	if len(roomContents.Objects) != 1 || roomContents.Objects[0] != sword {
		t.Fatalf("room contents after drop = %v, want [sword]", roomContents.Objects)
	}

	s.Apply(buildGet(shane, []string{"sword"}))
	playerContents, _ := world.Get[world.Contents](w, shane)
	if len(playerContents.Objects) != 1 || playerContents.Objects[0] != sword {
		t.Fatalf("player contents after get = %v, want [sword]", playerContents.Objects)
	}
}

// The action package's constructors are all internal to that package
// (sigils/parser build them), so tests reach for Parse to build one
// rather than poke at unexported fields directly.

func buildMove(actor world.Entity, dir world.Direction) action.Action {
	a, _ := action.Parse(actor, string(dir), false)
	return a
}

func buildSay(actor world.Entity, msg string) action.Action {
	a, _ := action.Parse(actor, "say "+msg, false)
	return a
}

func buildLookAt(actor world.Entity, keywords []string) action.Action {
	a, _ := action.Parse(actor, "look "+strings.Join(keywords, " "), false)
	return a
}

func buildDrop(actor world.Entity, keywords []string) action.Action {
	a, _ := action.Parse(actor, "drop "+strings.Join(keywords, " "), false)
	return a
}

func buildGet(actor world.Entity, keywords []string) action.Action {
	a, _ := action.Parse(actor, "get "+strings.Join(keywords, " "), false)
	return a
}
