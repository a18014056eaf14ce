package action

import (
	"testing"

	"example.com/remud/internal/world"
)

func TestParseMoveSynonym(t *testing.T) {
	a, err := Parse(world.Entity{}, "n", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	move, ok := a.(Move)
	if !ok {
		t.Fatalf("Parse returned %T, want Move", a)
	}
	if move.Direction != world.North {
		t.Fatalf("Direction = %q, want north", move.Direction)
	}
}

func TestParseSaySigil(t *testing.T) {
	a, err := Parse(world.Entity{}, "'hello there", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	say, ok := a.(Say)
	if !ok {
		t.Fatalf("Parse returned %T, want Say", a)
	}
	if say.Message != "hello there" {
		t.Fatalf("Message = %q, want %q", say.Message, "hello there")
	}
}

func TestParseEmoteSigils(t *testing.T) {
	for _, sigil := range []string{";", "/"} {
		a, err := Parse(world.Entity{}, sigil+"waves", false)
		if err != nil {
			t.Fatalf("Parse(%q): %v", sigil, err)
		}
		if _, ok := a.(Emote); !ok {
			t.Fatalf("Parse(%q) returned %T, want Emote", sigil, a)
		}
	}
}

func TestParseImmortalCommandRejectedForMortal(t *testing.T) {
	_, err := Parse(world.Entity{}, "shutdown", false)
	if err == nil {
		t.Fatal("Parse accepted shutdown for a non-immortal actor")
	}
	if err.Error() != notRecognized {
		t.Fatalf("err = %q, want %q", err.Error(), notRecognized)
	}
}

func TestParseImmortalCommandAcceptedForImmortal(t *testing.T) {
	a, err := Parse(world.Entity{}, "shutdown", true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := a.(Shutdown); !ok {
		t.Fatalf("Parse returned %T, want Shutdown", a)
	}
}

func TestParseLookWithAndWithoutTarget(t *testing.T) {
	a, err := Parse(world.Entity{}, "look", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := a.(Look); !ok {
		t.Fatalf("Parse(\"look\") returned %T, want Look", a)
	}

	a, err = Parse(world.Entity{}, "look sword", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	la, ok := a.(LookAt)
	if !ok {
		t.Fatalf("Parse(\"look sword\") returned %T, want LookAt", a)
	}
	if len(la.Keywords) != 1 || la.Keywords[0] != "sword" {
		t.Fatalf("Keywords = %v, want [sword]", la.Keywords)
	}
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse(world.Entity{}, "frobnicate", false)
	if err == nil {
		t.Fatal("Parse accepted an unknown command")
	}
}

func TestEveryActionKindMatchesItsTrigger(t *testing.T) {
	e := world.Entity{}
	cases := []struct {
		a    Action
		want world.Trigger
	}{
		{Move{base: base{e}}, world.TriggerMove},
		{Say{base: base{e}}, world.TriggerSay},
		{Emote{base: base{e}}, world.TriggerEmote},
		{LookAt{base: base{e}}, world.TriggerLookAt},
		{Look{base: base{e}}, world.TriggerLook},
		{Exits{base: base{e}}, world.TriggerExits},
		{Inventory{base: base{e}}, world.TriggerInventory},
		{Get{base: base{e}}, world.TriggerGet},
		{Drop{base: base{e}}, world.TriggerDrop},
		{Send{base: base{e}}, world.TriggerSend},
		{Use{base: base{e}}, world.TriggerUse},
		{Timer{base: base{e}}, world.TriggerTimer},
	}
	for _, c := range cases {
		if c.a.Kind() != c.want {
			t.Errorf("%T.Kind() = %q, want %q", c.a, c.a.Kind(), c.want)
		}
	}
}
