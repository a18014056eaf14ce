// Package action defines the closed set of Actions the command parser
// produces and the action pipeline applies, plus the parser itself: a
// shallow first-token dispatcher mapping a trimmed line and a privilege
// level to an Action or a user-facing error string. The parser never
// touches the world — it only builds values for the pipeline to apply.
package action

import (
	"fmt"
	"strings"

	"example.com/remud/internal/text"
	"example.com/remud/internal/world"
)

// Action is implemented by every action variant. Kind returns the script
// Trigger the action matches for pre/post-event hook dispatch — the
// "static table mapping action kind to trigger enum" the design calls for,
// expressed here as a method instead of a separate lookup table so a new
// Action variant can't forget to register itself.
type Action interface {
	Actor() world.Entity
	Kind() world.Trigger
}

type base struct {
	actor world.Entity
}

func (b base) Actor() world.Entity { return b.actor }

// Move relocates the actor through a room exit.
type Move struct {
	base
	Direction world.Direction
}

func (Move) Kind() world.Trigger { return world.TriggerMove }

// Say broadcasts a spoken line to the actor's room.
type Say struct {
	base
	Message string
}

func (Say) Kind() world.Trigger { return world.TriggerSay }

// Emote broadcasts a third-person action line to the actor's room.
type Emote struct {
	base
	Message string
}

func (Emote) Kind() world.Trigger { return world.TriggerEmote }

// LookAt inspects a keyword-matched target: a player, a room object, or an
// inventory object, in that priority order.
type LookAt struct {
	base
	Keywords []string
}

func (LookAt) Kind() world.Trigger { return world.TriggerLookAt }

// Look re-describes the actor's current room.
type Look struct{ base }

func (Look) Kind() world.Trigger { return world.TriggerLook }

// NewLook builds a Look action for actor, for systems that need to queue
// one implicitly (Move does, after relocating the actor).
func NewLook(actor world.Entity) Look { return Look{base: base{actor}} }

// NewSay, NewEmote and NewMove build actions on behalf of a script's
// self:say/self:emote/self:move calls, which only ever have an actor
// entity in hand, never a raw input line to run back through Parse.
func NewSay(actor world.Entity, message string) Say { return Say{base: base{actor}, Message: message} }

func NewEmote(actor world.Entity, message string) Emote {
	return Emote{base: base{actor}, Message: message}
}

func NewMove(actor world.Entity, dir world.Direction) Move {
	return Move{base: base{actor}, Direction: dir}
}

// Exits lists the actor's current room's exits.
type Exits struct{ base }

func (Exits) Kind() world.Trigger { return world.TriggerExits }

// Inventory lists the actor's carried objects.
type Inventory struct{ base }

func (Inventory) Kind() world.Trigger { return world.TriggerInventory }

// Get picks up a keyword-matched object from the actor's room.
type Get struct {
	base
	Keywords []string
}

func (Get) Kind() world.Trigger { return world.TriggerGet }

// Drop places a keyword-matched inventory object into the actor's room.
type Drop struct {
	base
	Keywords []string
}

func (Drop) Kind() world.Trigger { return world.TriggerDrop }

// Send delivers a private line to a named online player.
type Send struct {
	base
	Recipient string
	Message   string
}

func (Send) Kind() world.Trigger { return world.TriggerSend }

// Use invokes a keyword-matched object's Use hook with no further
// built-in semantics; behavior is entirely script-driven.
type Use struct {
	base
	Keywords []string
}

func (Use) Kind() world.Trigger { return world.TriggerUse }

// Timer marks a fired per-entity timer re-entering the pipeline.
type Timer struct {
	base
	Name string
}

func (Timer) Kind() world.Trigger { return world.TriggerTimer }

// Immortal-gated administrative actions. These have no script hook kind
// of their own — Init is a reasonable default since nothing hooks them.

type Shutdown struct{ base }

func (Shutdown) Kind() world.Trigger { return world.TriggerInit }

type Teleport struct {
	base
	Target world.RoomId
}

func (Teleport) Kind() world.Trigger { return world.TriggerInit }

// Dig creates a brand new room and links it to the actor's current room by
// Direction (and back again, since an administrator digging a passage
// expects to be able to walk back).
type Dig struct {
	base
	Direction   world.Direction
	Name        string
	Description string
}

func (Dig) Kind() world.Trigger { return world.TriggerInit }

// RoomName renames the actor's current room.
type RoomName struct {
	base
	Name string
}

func (RoomName) Kind() world.Trigger { return world.TriggerInit }

// RoomDescription redescribes the actor's current room.
type RoomDescription struct {
	base
	Description string
}

func (RoomDescription) Kind() world.Trigger { return world.TriggerInit }

// MakePrototype creates a new object prototype that SpawnObject instances
// inherit from by default.
type MakePrototype struct {
	base
	Name        string
	Description string
}

func (MakePrototype) Kind() world.Trigger { return world.TriggerInit }

// SpawnObject creates a new object from an existing prototype and places it
// in the actor's current room.
type SpawnObject struct {
	base
	Prototype world.PrototypeId
}

func (SpawnObject) Kind() world.Trigger { return world.TriggerInit }

// RoomRemove destroys the actor's current room (any room but the void),
// relocating every player and object it holds into the void room first
// (spec.md §3's invariant: "destroying any other room relocates all
// players and contained objects into it before the room is despawned").
type RoomRemove struct{ base }

func (RoomRemove) Kind() world.Trigger { return world.TriggerInit }

// ParseError is returned by Parse for any line the parser rejects,
// carrying the exact user-facing line to queue on the actor's Messages.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

const notRecognized = "Huh?!"

// Parse maps a trimmed input line to an Action for actor, given whether
// actor holds the IMMORTAL flag. Synonyms: a leading '\'' opens a Say, a
// leading ';' or '/' opens an Emote.
func Parse(actor world.Entity, line string, immortal bool) (Action, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, &ParseError{Message: notRecognized}
	}

	switch line[0] {
	case '\'':
		return Say{base: base{actor}, Message: strings.TrimSpace(line[1:])}, nil
	case ';', '/':
		return Emote{base: base{actor}, Message: strings.TrimSpace(line[1:])}, nil
	}

	words := text.Tokenize(line)
	if len(words) == 0 {
		return nil, &ParseError{Message: notRecognized}
	}
	cmd := strings.ToLower(words[0])
	rest := words[1:]

	if dir, ok := directionSynonym(cmd); ok {
		return Move{base: base{actor}, Direction: dir}, nil
	}

	switch cmd {
	case "say":
		return Say{base: base{actor}, Message: strings.Join(rest, " ")}, nil
	case "emote", "em", "pose":
		return Emote{base: base{actor}, Message: strings.Join(rest, " ")}, nil
	case "look", "l":
		if len(rest) == 0 {
			return Look{base: base{actor}}, nil
		}
		return LookAt{base: base{actor}, Keywords: rest}, nil
	case "exits":
		return Exits{base: base{actor}}, nil
	case "inventory", "i", "inv":
		return Inventory{base: base{actor}}, nil
	case "get", "take":
		if len(rest) == 0 {
			return nil, &ParseError{Message: "Get what?"}
		}
		return Get{base: base{actor}, Keywords: rest}, nil
	case "drop":
		if len(rest) == 0 {
			return nil, &ParseError{Message: "Drop what?"}
		}
		return Drop{base: base{actor}, Keywords: rest}, nil
	case "use":
		if len(rest) == 0 {
			return nil, &ParseError{Message: "Use what?"}
		}
		return Use{base: base{actor}, Keywords: rest}, nil
	case "send", "tell":
		if len(rest) < 2 {
			return nil, &ParseError{Message: "Send what to whom?"}
		}
		return Send{base: base{actor}, Recipient: rest[0], Message: strings.Join(rest[1:], " ")}, nil
	}

	if immortal {
		switch cmd {
		case "shutdown":
			return Shutdown{base: base{actor}}, nil
		case "teleport":
			if len(rest) != 1 {
				return nil, &ParseError{Message: "Teleport where?"}
			}
			var id uint64
			if _, err := fmt.Sscanf(rest[0], "%d", &id); err != nil {
				return nil, &ParseError{Message: "Teleport where?"}
			}
			return Teleport{base: base{actor}, Target: world.RoomId(id)}, nil
		case "dig":
			if len(rest) == 0 {
				return nil, &ParseError{Message: "Dig which direction?"}
			}
			dir, ok := directionSynonym(rest[0])
			if !ok {
				return nil, &ParseError{Message: "Dig which direction?"}
			}
			name, desc := "An unnamed room", "You see nothing in particular."
			if len(rest) > 1 {
				name = strings.Join(rest[1:], " ")
			}
			return Dig{base: base{actor}, Direction: dir, Name: name, Description: desc}, nil
		case "roomname":
			if len(rest) == 0 {
				return nil, &ParseError{Message: "Name the room what?"}
			}
			return RoomName{base: base{actor}, Name: strings.Join(rest, " ")}, nil
		case "roomdescription", "roomdesc":
			if len(rest) == 0 {
				return nil, &ParseError{Message: "Describe the room how?"}
			}
			return RoomDescription{base: base{actor}, Description: strings.Join(rest, " ")}, nil
		case "makeprototype", "mkproto":
			if len(rest) == 0 {
				return nil, &ParseError{Message: "Make a prototype named what?"}
			}
			return MakePrototype{base: base{actor}, Name: rest[0], Description: "You see nothing in particular."}, nil
		case "spawn":
			if len(rest) != 1 {
				return nil, &ParseError{Message: "Spawn which prototype?"}
			}
			var id uint64
			if _, err := fmt.Sscanf(rest[0], "%d", &id); err != nil {
				return nil, &ParseError{Message: "Spawn which prototype?"}
			}
			return SpawnObject{base: base{actor}, Prototype: world.PrototypeId(id)}, nil
		case "roomdestroy", "roomremove":
			return RoomRemove{base: base{actor}}, nil
		}
	}

	return nil, &ParseError{Message: notRecognized}
}

func directionSynonym(word string) (world.Direction, bool) {
	switch word {
	case "north", "n":
		return world.North, true
	case "south", "s":
		return world.South, true
	case "east", "e":
		return world.East, true
	case "west", "w":
		return world.West, true
	case "northeast", "ne":
		return world.Northeast, true
	case "northwest", "nw":
		return world.Northwest, true
	case "southeast", "se":
		return world.Southeast, true
	case "southwest", "sw":
		return world.Southwest, true
	case "up", "u":
		return world.Up, true
	case "down", "d":
		return world.Down, true
	default:
		return "", false
	}
}
