// Package session implements the per-connection login/negotiate state
// machine: a stack of States, the outer one walking a new connection from
// "what's your name?" through password creation or verification to
// InGame, with room for a nested flow (a password change, say) to push a
// state on top and pop back when it finishes.
package session

import (
	"regexp"
	"sync/atomic"

	"example.com/remud/internal/auth"
)

// ClientId identifies one live connection (telnet or the admin websocket),
// independent of PlayerId — a connection has a ClientId the instant it
// dials in, before it has authenticated to any player at all.
type ClientId uint64

var nextClientId uint64

// NextClientId hands out a fresh, process-wide monotonically increasing
// client identifier.
func NextClientId() ClientId {
	return ClientId(atomic.AddUint64(&nextClientId, 1) - 1)
}

// nameFilter matches names 2-32 characters long, alphanumeric plus space,
// apostrophe, hyphen, underscore.
var nameFilter = regexp.MustCompile(`^[[:alnum:] '_-]{2,32}$`)

func validName(name string) bool {
	return nameFilter.MatchString(name)
}

// Directory is the narrow view of player storage the negotiate FSM needs:
// whether a name is already live, its stored password hash, and creating a
// brand new player. The engine wires this to the real player index and
// durable store; tests use an in-memory fake.
type Directory interface {
	IsOnline(name string) bool
	PasswordHash(name string) (hash string, exists bool)
	Create(name, passwordHash string) error
}

// Params bundles everything a State's On* methods and Decide need: the
// owning connection's identity, output sinks, the player directory, and
// per-connection scratch fields the states read and write as the
// negotiation progresses.
type Params struct {
	Client    ClientId
	Directory Directory

	// Send and Prompt frame a line the ordinary way; SensitivePrompt marks
	// the line for masked-echo rendering by the line-protocol layer
	// (password entry).
	Send            func(line string)
	Prompt          func(line string)
	SensitivePrompt func(line string)

	// Arrive runs the login/creation announcement once a Params reaches
	// InGame, kept as a callback so this package never depends on the
	// action pipeline or the world store.
	Arrive func(name string)

	pendingName string
	pendingHash string
	player      string
}

// Player returns the authenticated player name once the stack has reached
// InGame; "" before then.
func (p *Params) Player() string { return p.player }

// StateID names one of the fixed negotiate states.
type StateID string

const (
	StateLoginName      StateID = "LoginName"
	StateLoginPassword  StateID = "LoginPassword"
	StateCreatePassword StateID = "CreatePassword"
	StateVerifyPassword StateID = "VerifyPassword"
	StateInGame         StateID = "InGame"
)

// DecisionKind is what a State's Decide asked the Stack to do next.
type DecisionKind int

const (
	// DecisionNone means stay on the current state; a prompt line may
	// already have been sent.
	DecisionNone DecisionKind = iota
	// DecisionTransition replaces the current (top) state with a new one
	// built from Next.
	DecisionTransition
	// DecisionPush stacks Pushed on top; the state beneath keeps its place
	// and resumes once Pushed pops.
	DecisionPush
	// DecisionPop removes the top state, resuming whatever is beneath.
	DecisionPop
)

type Decision struct {
	Kind   DecisionKind
	Next   StateID
	Pushed State
}

// State is one node in the negotiate machine.
type State interface {
	ID() StateID
	OnEnter(p *Params)
	Decide(p *Params, line string) Decision
	OnExit(p *Params)
}

// Factory builds a fresh State for a StateID — every transition starts a
// state from scratch rather than reusing one, so stale scratch fields from
// a previous visit can never leak forward.
type Factory func(id StateID) State

// Stack drives one connection's negotiate machine: a stack of States, the
// top always the one Decide is offered the next input line.
type Stack struct {
	params  *Params
	factory Factory
	frames  []State
}

// NewStack builds a Stack starting at initial and runs its OnEnter.
func NewStack(params *Params, factory Factory, initial StateID) *Stack {
	s := &Stack{params: params, factory: factory}
	first := factory(initial)
	s.frames = []State{first}
	first.OnEnter(params)
	return s
}

// Current returns the top-of-stack state.
func (s *Stack) Current() State { return s.frames[len(s.frames)-1] }

// Handle feeds one input line to the current state and applies whatever
// Decision it returns.
func (s *Stack) Handle(line string) {
	cur := s.Current()
	d := cur.Decide(s.params, line)
	switch d.Kind {
	case DecisionNone:
		return
	case DecisionTransition:
		cur.OnExit(s.params)
		next := s.factory(d.Next)
		s.frames[len(s.frames)-1] = next
		next.OnEnter(s.params)
	case DecisionPush:
		s.frames = append(s.frames, d.Pushed)
		d.Pushed.OnEnter(s.params)
	case DecisionPop:
		cur.OnExit(s.params)
		s.frames = s.frames[:len(s.frames)-1]
		if len(s.frames) > 0 {
			s.Current().OnEnter(s.params)
		}
	}
}

// DefaultFactory builds the five negotiate states by StateID, the factory
// every real connection uses (tests can substitute their own to exercise a
// single state in isolation).
func DefaultFactory(id StateID) State {
	switch id {
	case StateLoginName:
		return &loginName{}
	case StateLoginPassword:
		return &loginPassword{}
	case StateCreatePassword:
		return &createPassword{}
	case StateVerifyPassword:
		return &verifyPassword{}
	case StateInGame:
		return &inGame{}
	default:
		panic("session: unknown state id " + string(id))
	}
}

type loginName struct{}

func (s *loginName) ID() StateID { return StateLoginName }

func (s *loginName) OnEnter(p *Params) {
	p.Prompt("Name?")
}

func (s *loginName) Decide(p *Params, line string) Decision {
	if !validName(line) {
		p.Send("Invalid username.")
		p.Prompt("Name?")
		return Decision{Kind: DecisionNone}
	}
	if p.Directory.IsOnline(line) {
		p.Send("User currently online.")
		p.Prompt("Name?")
		return Decision{Kind: DecisionNone}
	}
	p.pendingName = line
	if _, exists := p.Directory.PasswordHash(line); exists {
		p.Send("User located.")
		return Decision{Kind: DecisionTransition, Next: StateLoginPassword}
	}
	p.Send("New user detected.")
	return Decision{Kind: DecisionTransition, Next: StateCreatePassword}
}

func (s *loginName) OnExit(p *Params) {}

type createPassword struct{}

func (s *createPassword) ID() StateID { return StateCreatePassword }

func (s *createPassword) OnEnter(p *Params) {
	p.SensitivePrompt("Password?")
}

func (s *createPassword) Decide(p *Params, line string) Decision {
	if len(line) < 5 {
		p.Send("|Red1|Weak password detected.|-|")
		p.SensitivePrompt("Password?")
		return Decision{Kind: DecisionNone}
	}
	if len(line) > 1024 {
		p.Send("|Red1|Password too strong :(|-|")
		p.SensitivePrompt("Password?")
		return Decision{Kind: DecisionNone}
	}
	hash, err := auth.HashPassword(line)
	if err != nil {
		p.Send("Something went wrong. Try again.")
		p.SensitivePrompt("Password?")
		return Decision{Kind: DecisionNone}
	}
	p.pendingHash = hash
	p.Send("Password accepted.")
	return Decision{Kind: DecisionTransition, Next: StateVerifyPassword}
}

func (s *createPassword) OnExit(p *Params) {}

type verifyPassword struct{}

func (s *verifyPassword) ID() StateID { return StateVerifyPassword }

func (s *verifyPassword) OnEnter(p *Params) {
	p.SensitivePrompt("Verify?")
}

func (s *verifyPassword) Decide(p *Params, line string) Decision {
	ok, err := auth.VerifyPassword(p.pendingHash, line)
	if err != nil || !ok {
		p.Send("Verification failed.")
		return Decision{Kind: DecisionTransition, Next: StateCreatePassword}
	}
	if err := p.Directory.Create(p.pendingName, p.pendingHash); err != nil {
		p.Send("Something went wrong. Try again.")
		return Decision{Kind: DecisionTransition, Next: StateCreatePassword}
	}
	p.Send("Password verified.")
	p.player = p.pendingName
	return Decision{Kind: DecisionTransition, Next: StateInGame}
}

func (s *verifyPassword) OnExit(p *Params) {}

type loginPassword struct{}

func (s *loginPassword) ID() StateID { return StateLoginPassword }

func (s *loginPassword) OnEnter(p *Params) {
	p.SensitivePrompt("Password?")
}

func (s *loginPassword) Decide(p *Params, line string) Decision {
	hash, _ := p.Directory.PasswordHash(p.pendingName)
	ok, err := auth.VerifyPassword(hash, line)
	if err != nil || !ok {
		p.Send("Verification failed.")
		return Decision{Kind: DecisionTransition, Next: StateLoginName}
	}
	p.Send("Password verified.")
	p.player = p.pendingName
	return Decision{Kind: DecisionTransition, Next: StateInGame}
}

func (s *loginPassword) OnExit(p *Params) {}

type inGame struct{}

func (s *inGame) ID() StateID { return StateInGame }

func (s *inGame) OnEnter(p *Params) {
	if p.Arrive != nil {
		p.Arrive(p.player)
	}
}

// Decide never transitions once InGame: every subsequent line is the
// caller's job to hand to the command parser instead, not this package's.
func (s *inGame) Decide(p *Params, line string) Decision {
	return Decision{Kind: DecisionNone}
}

func (s *inGame) OnExit(p *Params) {}
