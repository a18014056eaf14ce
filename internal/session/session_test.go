package session

import (
	"testing"

	"example.com/remud/internal/auth"
)

func hashForTest(password string) (string, error) {
	return auth.HashPassword(password)
}

type fakeDirectory struct {
	hashes map[string]string
	online map[string]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{hashes: map[string]string{}, online: map[string]bool{}}
}

func (d *fakeDirectory) IsOnline(name string) bool { return d.online[name] }

func (d *fakeDirectory) PasswordHash(name string) (string, bool) {
	h, ok := d.hashes[name]
	return h, ok
}

func (d *fakeDirectory) Create(name, passwordHash string) error {
	d.hashes[name] = passwordHash
	return nil
}

type harness struct {
	lines   []string
	prompts []string
	stack   *Stack
	params  *Params
}

func newHarness(dir Directory) *harness {
	h := &harness{}
	h.params = &Params{
		Directory: dir,
		Send:      func(line string) { h.lines = append(h.lines, line) },
		Prompt:    func(line string) { h.prompts = append(h.prompts, line) },
		SensitivePrompt: func(line string) {
			h.prompts = append(h.prompts, line)
		},
	}
	h.stack = NewStack(h.params, DefaultFactory, StateLoginName)
	return h
}

func (h *harness) lastPrompt() string {
	if len(h.prompts) == 0 {
		return ""
	}
	return h.prompts[len(h.prompts)-1]
}

func (h *harness) lastLine() string {
	if len(h.lines) == 0 {
		return ""
	}
	return h.lines[len(h.lines)-1]
}

func TestNewPlayerCreationFlow(t *testing.T) {
	h := newHarness(newFakeDirectory())

	if got := h.lastPrompt(); got != "Name?" {
		t.Fatalf("initial prompt = %q, want \"Name?\"", got)
	}

	h.stack.Handle("Shane")
	if h.stack.Current().ID() != StateCreatePassword {
		t.Fatalf("state after new name = %v, want CreatePassword", h.stack.Current().ID())
	}
	if got := h.lastLine(); got != "New user detected." {
		t.Fatalf("line = %q, want new-user message", got)
	}

	h.stack.Handle("s;kladjf")
	if h.stack.Current().ID() != StateVerifyPassword {
		t.Fatalf("state after password = %v, want VerifyPassword", h.stack.Current().ID())
	}

	h.stack.Handle("s;kladjf")
	if h.stack.Current().ID() != StateInGame {
		t.Fatalf("state after verify = %v, want InGame", h.stack.Current().ID())
	}
	if h.params.Player() != "Shane" {
		t.Fatalf("player = %q, want Shane", h.params.Player())
	}
}

func TestVerifyMismatchReturnsToCreatePassword(t *testing.T) {
	h := newHarness(newFakeDirectory())
	h.stack.Handle("Shane")
	h.stack.Handle("some pw")

	h.stack.Handle("some other pw")
	if h.stack.Current().ID() != StateCreatePassword {
		t.Fatalf("state after mismatch = %v, want CreatePassword", h.stack.Current().ID())
	}
	if got := h.lastLine(); got != "Verification failed." {
		t.Fatalf("line = %q, want verification-failed message", got)
	}

	h.stack.Handle("some pw")
	h.stack.Handle("some pw")
	if h.stack.Current().ID() != StateInGame {
		t.Fatal("retry after mismatch did not reach InGame")
	}
}

func TestWeakPasswordRejected(t *testing.T) {
	h := newHarness(newFakeDirectory())
	h.stack.Handle("Shane")

	h.stack.Handle("ok")
	if h.stack.Current().ID() != StateCreatePassword {
		t.Fatalf("state after weak password = %v, want CreatePassword", h.stack.Current().ID())
	}
	if got := h.lastLine(); got == "" {
		t.Fatal("expected a weak-password rejection message")
	}
}

func TestExistingPlayerLoginFlow(t *testing.T) {
	dir := newFakeDirectory()
	hash, _ := hashForTest("password")
	dir.hashes["Shane"] = hash

	h := newHarness(dir)
	h.stack.Handle("Shane")
	if h.stack.Current().ID() != StateLoginPassword {
		t.Fatalf("state after known name = %v, want LoginPassword", h.stack.Current().ID())
	}
	if got := h.lastLine(); got != "User located." {
		t.Fatalf("line = %q, want \"User located.\"", got)
	}

	h.stack.Handle("password")
	if h.stack.Current().ID() != StateInGame {
		t.Fatalf("state after correct password = %v, want InGame", h.stack.Current().ID())
	}
}

func TestLoginBadPasswordReturnsToLoginName(t *testing.T) {
	dir := newFakeDirectory()
	hash, _ := hashForTest("password")
	dir.hashes["Shane"] = hash

	h := newHarness(dir)
	h.stack.Handle("Shane")
	h.stack.Handle("wrong")

	if h.stack.Current().ID() != StateLoginName {
		t.Fatalf("state after bad password = %v, want LoginName", h.stack.Current().ID())
	}
	if got := h.lastLine(); got != "Verification failed." {
		t.Fatalf("line = %q, want verification-failed message", got)
	}
}

func TestAlreadyOnlineKeepsLoginName(t *testing.T) {
	dir := newFakeDirectory()
	dir.online["Shane"] = true

	h := newHarness(dir)
	h.stack.Handle("Shane")

	if h.stack.Current().ID() != StateLoginName {
		t.Fatalf("state after online name = %v, want LoginName", h.stack.Current().ID())
	}
	if got := h.lastLine(); got != "User currently online." {
		t.Fatalf("line = %q, want online message", got)
	}
}

func TestInvalidNameFormatRejected(t *testing.T) {
	h := newHarness(newFakeDirectory())
	h.stack.Handle("$@()* ()% (#%)#%((")

	if h.stack.Current().ID() != StateLoginName {
		t.Fatalf("state after invalid name = %v, want LoginName", h.stack.Current().ID())
	}
	if got := h.lastLine(); got != "Invalid username." {
		t.Fatalf("line = %q, want invalid-username message", got)
	}
}

func TestArriveCallbackFiresOnceInGame(t *testing.T) {
	h := newHarness(newFakeDirectory())
	arrived := ""
	h.params.Arrive = func(name string) { arrived = name }

	h.stack.Handle("Shane")
	h.stack.Handle("s;kladjf")
	h.stack.Handle("s;kladjf")

	if arrived != "Shane" {
		t.Fatalf("arrive callback received %q, want Shane", arrived)
	}
}
