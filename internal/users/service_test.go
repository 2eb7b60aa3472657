package users_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmerrifield20/profilehub/internal/identity"
	"github.com/jmerrifield20/profilehub/internal/media"
	"github.com/jmerrifield20/profilehub/internal/users"
)

// ── Fixtures ──────────────────────────────────────────────────────────────

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
)

func intPtr(n int) *int { return &n }

func alicePayload() users.SignupInput {
	return users.SignupInput{
		Username:             "alice",
		Email:                "a@x.com",
		Password:             "Str0ng!Pass",
		PasswordConfirmation: "Str0ng!Pass",
		FirstName:            "A",
		LastName:             "L",
		City:                 "NYC",
		Country:              "US",
		Age:                  intPtr(30),
		Likes:                intPtr(0),
		Followers:            intPtr(0),
		Posts:                intPtr(0),
		ProfilePic:           &users.Image{Filename: "me.png", Data: pngBytes},
		HeroBadge:            &users.Image{Filename: "badge.gif", Data: gifBytes},
	}
}

// ── Stub image store ──────────────────────────────────────────────────────

type stubImages struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newStubImages() *stubImages {
	return &stubImages{objects: make(map[string][]byte)}
}

func (s *stubImages) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *stubImages) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *stubImages) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// ── Stub notifier ─────────────────────────────────────────────────────────

type sentEmail struct {
	to       string
	username string
	token    string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (n *stubNotifier) SendVerificationEmail(_ context.Context, a *users.Account, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{to: a.Email, username: a.Username, token: token})
	return n.err
}

func (n *stubNotifier) emails() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.sent...)
}

// ── Store wrappers ────────────────────────────────────────────────────────

// countingStore records calls that reach the store.
type countingStore struct {
	users.Store
	mu    sync.Mutex
	calls int
}

func (c *countingStore) touch() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingStore) ExistsUsername(ctx context.Context, u string) (bool, error) {
	c.touch()
	return c.Store.ExistsUsername(ctx, u)
}

func (c *countingStore) ExistsEmail(ctx context.Context, e string) (bool, error) {
	c.touch()
	return c.Store.ExistsEmail(ctx, e)
}

func (c *countingStore) Atomic(ctx context.Context, fn func(context.Context, users.Tx) error) error {
	c.touch()
	return c.Store.Atomic(ctx, fn)
}

// faultyStore fails every profile insert.
type faultyStore struct {
	users.Store
}

type faultyTx struct {
	users.Tx
}

func (faultyTx) CreateProfile(context.Context, uuid.UUID, *users.Profile) error {
	return errors.New("disk full")
}

func (f faultyStore) Atomic(ctx context.Context, fn func(context.Context, users.Tx) error) error {
	return f.Store.Atomic(ctx, func(ctx context.Context, tx users.Tx) error {
		return fn(ctx, faultyTx{Tx: tx})
	})
}

// blindStore reports every username and email as free so the write-time
// constraint is the only guard.
type blindStore struct {
	users.Store
}

func (blindStore) ExistsUsername(context.Context, string) (bool, error) { return false, nil }
func (blindStore) ExistsEmail(context.Context, string) (bool, error)    { return false, nil }

// ── Helpers ───────────────────────────────────────────────────────────────

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc      *users.Service
	mem      *users.MemoryStore
	images   *stubImages
	notifier *stubNotifier
	tokens   *identity.VerificationTokens
}

func newHarness(t *testing.T, wrap func(users.Store) users.Store) *harness {
	t.Helper()
	mem := users.NewMemoryStore()
	var store users.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	tokens, err := identity.NewVerificationTokens("test-secret", identity.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		mem:      mem,
		images:   newStubImages(),
		notifier: &stubNotifier{},
		tokens:   tokens,
	}
	h.svc = users.NewService(store, users.NewPolicy(store, nil, 0), tokens, h.notifier, h.images, zap.NewNop())
	h.svc.SetBcryptCost(bcrypt.MinCost)
	return h
}

func (h *harness) counts() (int, int) { return h.mem.Count() }

// ── Register ──────────────────────────────────────────────────────────────

func TestRegister_alice(t *testing.T) {
	h := newHarness(t, nil)

	acct, err := h.svc.Register(context.Background(), alicePayload())
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if acct.Username != "alice" {
		t.Errorf("username: got %q", acct.Username)
	}
	if acct.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if acct.Profile.IsVerified {
		t.Error("new profile must not be verified")
	}
	if acct.Profile.Age != 30 || acct.Profile.City != "NYC" || acct.Profile.Country != "US" {
		t.Errorf("profile fields not carried over: %+v", acct.Profile)
	}
	if acct.PasswordHash == "" || acct.PasswordHash == "Str0ng!Pass" {
		t.Errorf("password must be hashed, got %q", acct.PasswordHash)
	}
	if !users.CheckPassword(acct.PasswordHash, "Str0ng!Pass") {
		t.Error("stored hash does not match the password")
	}

	sent := h.notifier.emails()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 email, got %d", len(sent))
	}
	if sent[0].to != "a@x.com" {
		t.Errorf("email recipient: got %q", sent[0].to)
	}
	username, err := h.tokens.Verify(sent[0].token)
	if err != nil || username != "alice" {
		t.Errorf("mailed token verifies to (%q, %v), want alice", username, err)
	}

	if a, p := h.counts(); a != 1 || p != 1 {
		t.Errorf("store: got %d accounts, %d profiles", a, p)
	}
	if h.images.count() != 2 {
		t.Errorf("expected 2 stored images, got %d", h.images.count())
	}

	stored, err := h.svc.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Profile.ProfilePic == "" || stored.Profile.HeroBadge == "" {
		t.Errorf("image keys not stored: %+v", stored.Profile)
	}
}

func TestRegister_samePayloadTwice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, alicePayload()); err != nil {
		t.Fatal(err)
	}
	_, err := h.svc.Register(ctx, alicePayload())

	var conflict *users.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T: %v", err, err)
	}
	if len(conflict.Fields) == 0 || conflict.Fields[0] != "username" {
		t.Errorf("conflict fields: got %v, want username first", conflict.Fields)
	}
	if a, p := h.counts(); a != 1 || p != 1 {
		t.Errorf("store changed: %d accounts, %d profiles", a, p)
	}
	if len(h.notifier.emails()) != 1 {
		t.Errorf("expected no second email, got %d total", len(h.notifier.emails()))
	}
	if h.images.count() != 2 {
		t.Errorf("images leaked: %d stored", h.images.count())
	}
}

func TestRegister_duplicateEmailDifferentCase(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, alicePayload()); err != nil {
		t.Fatal(err)
	}
	in := alicePayload()
	in.Username = "alice2"
	in.Email = "  A@X.COM "

	_, err := h.svc.Register(ctx, in)
	var conflict *users.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if len(conflict.Fields) != 1 || conflict.Fields[0] != "email" {
		t.Errorf("conflict fields: got %v", conflict.Fields)
	}
}

func TestRegister_passwordMismatch(t *testing.T) {
	h := newHarness(t, nil)
	in := alicePayload()
	in.PasswordConfirmation = "Str0ng!Pazz"

	_, err := h.svc.Register(context.Background(), in)
	var verr *users.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !verr.Errors.Has(users.NonFieldErrors) {
		t.Errorf("expected %s error, got %v", users.NonFieldErrors, verr.Errors)
	}
	if a, p := h.counts(); a != 0 || p != 0 {
		t.Errorf("nothing should persist, got %d/%d", a, p)
	}
	if len(h.notifier.emails()) != 0 {
		t.Error("no email should be sent")
	}
}

func TestRegister_shortPasswordNeverReachesStore(t *testing.T) {
	var counting *countingStore
	h := newHarness(t, func(s users.Store) users.Store {
		counting = &countingStore{Store: s}
		return counting
	})
	in := alicePayload()
	in.Password = "short"
	in.PasswordConfirmation = "short"

	_, err := h.svc.Register(context.Background(), in)
	var verr *users.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if got := verr.Errors.Fields()["password"]; len(got) == 0 {
		t.Errorf("expected password error, got %v", verr.Errors)
	}
	if counting.calls != 0 {
		t.Errorf("store was called %d times", counting.calls)
	}
	if h.images.count() != 0 {
		t.Error("images must not be uploaded for invalid input")
	}
}

func TestRegister_sameInvalidPayloadTwice(t *testing.T) {
	h := newHarness(t, nil)
	in := alicePayload()
	in.Email = "not-an-email"

	var first, second *users.ValidationError
	_, err1 := h.svc.Register(context.Background(), in)
	_, err2 := h.svc.Register(context.Background(), in)
	if !errors.As(err1, &first) || !errors.As(err2, &second) {
		t.Fatalf("expected two validation errors, got %v / %v", err1, err2)
	}
	if first.Error() != second.Error() {
		t.Errorf("errors differ: %q vs %q", first.Error(), second.Error())
	}
	if a, p := h.counts(); a != 0 || p != 0 {
		t.Errorf("store changed: %d/%d", a, p)
	}
}

func TestRegister_profileFailureLeavesNoAccount(t *testing.T) {
	h := newHarness(t, func(s users.Store) users.Store { return faultyStore{Store: s} })

	_, err := h.svc.Register(context.Background(), alicePayload())
	var serr *users.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StorageError, got %T: %v", err, err)
	}
	if a, p := h.counts(); a != 0 || p != 0 {
		t.Errorf("partial state left: %d accounts, %d profiles", a, p)
	}
	if h.images.count() != 0 {
		t.Errorf("uploaded images not cleaned up: %d", h.images.count())
	}
	if len(h.notifier.emails()) != 0 {
		t.Error("no email should be sent on failure")
	}
}

func TestRegister_writeTimeConflict(t *testing.T) {
	h := newHarness(t, func(s users.Store) users.Store { return blindStore{Store: s} })
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, alicePayload()); err != nil {
		t.Fatal(err)
	}
	_, err := h.svc.Register(ctx, alicePayload())
	var conflict *users.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError from the store, got %T: %v", err, err)
	}
	if h.images.count() != 2 {
		t.Errorf("losing upload not compensated: %d images", h.images.count())
	}
}

func TestRegister_concurrentSameUsername(t *testing.T) {
	h := newHarness(t, nil)
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := alicePayload()
			in.Email = fmt.Sprintf("alice%d@x.com", i)
			_, errs[i] = h.svc.Register(context.Background(), in)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		var conflict *users.ConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &conflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly 1 successful registration, got %d", ok)
	}
	if a, p := h.counts(); a != 1 || p != 1 {
		t.Errorf("store: %d accounts, %d profiles", a, p)
	}
	if h.images.count() != 2 {
		t.Errorf("expected only the winner's images, got %d", h.images.count())
	}
}

func TestRegister_deliveryFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = fmt.Errorf("%w: smtp down", users.ErrDelivery)

	acct, err := h.svc.Register(context.Background(), alicePayload())
	if err != nil {
		t.Fatalf("Register() should succeed despite delivery failure, got %v", err)
	}
	if acct == nil || acct.Username != "alice" {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if a, _ := h.counts(); a != 1 {
		t.Errorf("account must remain, got %d", a)
	}
}

func TestRegister_uploadFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.images.failPut = true

	_, err := h.svc.Register(context.Background(), alicePayload())
	var serr *users.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StorageError, got %v", err)
	}
	if a, _ := h.counts(); a != 0 {
		t.Errorf("no account should exist, got %d", a)
	}
}

func TestRegister_dottedUsernameLocalMedia(t *testing.T) {
	root := t.TempDir()
	local, err := media.NewLocalStore(root, "/media")
	if err != nil {
		t.Fatal(err)
	}
	mem := users.NewMemoryStore()
	tokens, err := identity.NewVerificationTokens("test-secret", identity.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatal(err)
	}
	svc := users.NewService(mem, users.NewPolicy(mem, nil, 0), tokens, &stubNotifier{}, local, zap.NewNop())
	svc.SetBcryptCost(bcrypt.MinCost)

	for i, username := range []string{"john..doe", "....", "a..b.c"} {
		in := alicePayload()
		in.Username = username
		in.Email = fmt.Sprintf("user%d@x.com", i)

		acct, err := svc.Register(context.Background(), in)
		if err != nil {
			t.Fatalf("Register(%q) error: %v", username, err)
		}
		for _, key := range []string{acct.Profile.ProfilePic, acct.Profile.HeroBadge} {
			if strings.Contains(key, username) {
				t.Errorf("media key %q must not embed the username", key)
			}
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(key))); err != nil {
				t.Errorf("image %q not stored: %v", key, err)
			}
		}
	}
}

// ── VerifyEmail ───────────────────────────────────────────────────────────

func TestVerifyEmail(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, alicePayload()); err != nil {
		t.Fatal(err)
	}
	token := h.notifier.emails()[0].token

	acct, err := h.svc.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("VerifyEmail() error: %v", err)
	}
	if !acct.Profile.IsVerified {
		t.Error("profile should be verified")
	}

	// Second use of the same token is a no-op success.
	if _, err := h.svc.VerifyEmail(ctx, token); err != nil {
		t.Errorf("repeat VerifyEmail() error: %v", err)
	}
}

func TestVerifyEmail_badToken(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.VerifyEmail(context.Background(), "garbage")
	if !errors.Is(err, identity.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEmail_unknownUser(t *testing.T) {
	h := newHarness(t, nil)
	token, _ := h.tokens.Issue("ghost")
	_, err := h.svc.VerifyEmail(context.Background(), token)
	if !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ── Reads and delete ──────────────────────────────────────────────────────

func TestListAndDelete(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for _, name := range []string{"alice", "bobby", "carol"} {
		in := alicePayload()
		in.Username = name
		in.Email = name + "@x.com"
		if _, err := h.svc.Register(ctx, in); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	page, err := h.svc.List(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(page))
	}

	if err := h.svc.Delete(ctx, "bobby"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := h.svc.GetByUsername(ctx, "bobby"); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if a, p := h.counts(); a != 2 || p != 2 {
		t.Errorf("after delete: %d accounts, %d profiles", a, p)
	}
	if h.images.count() != 4 {
		t.Errorf("deleted account's images should be removed, %d left", h.images.count())
	}
	if err := h.svc.Delete(ctx, "bobby"); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestList_rejectsNonPositiveLimit(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.svc.List(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error for limit 0")
	}
}
