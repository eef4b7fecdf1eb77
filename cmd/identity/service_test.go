package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestService_RegisterThenLogin(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))
	ctx := context.Background()

	u := mustRegister(t, svc, "alice", "alice@x.com", "secret1")
	if u.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", u.ID)
	}
	if u.DisplayName != "alice" {
		t.Fatalf("display name should default to username, got %q", u.DisplayName)
	}
	if u.PasswordHash == "secret1" || u.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}

	got, err := svc.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != u.ID || got.Email != "alice@x.com" {
		t.Fatalf("login returned %+v, want id=%d", got, u.ID)
	}
}

func TestService_Register_Validation(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))

	cases := []struct {
		name string
		in   RegisterInput
		want string
	}{
		{name: "missing username", in: RegisterInput{Email: "a@x.com", Password: "secret1"}, want: MsgUsernameRequired},
		{name: "blank username", in: RegisterInput{Username: "   ", Email: "a@x.com", Password: "secret1"}, want: MsgUsernameRequired},
		{name: "missing email", in: RegisterInput{Username: "a", Password: "secret1"}, want: MsgEmailRequired},
		{name: "short password", in: RegisterInput{Username: "a", Email: "a@x.com", Password: "12345"}, want: "Password must be at least 6 characters"},
		{name: "empty password", in: RegisterInput{Username: "a", Email: "a@x.com"}, want: "Password must be at least 6 characters"},
		{name: "username checked first", in: RegisterInput{Password: "1"}, want: MsgUsernameRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.in)
			if !IsInvalidInput(err) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			msg, ok := PublicMessage(err)
			if !ok || msg != tc.want {
				t.Fatalf("message=%q want=%q", msg, tc.want)
			}
		})
	}
}

func TestService_Register_Conflicts(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))
	ctx := context.Background()

	mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "bob@x.com", Password: "secret2"})
	if field, ok := ConflictField(err); !ok || field != "username" {
		t.Fatalf("expected username conflict, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "alice@x.com", Password: "secret2"})
	if field, ok := ConflictField(err); !ok || field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}

	// Matching is case-sensitive.
	if _, err := svc.Register(ctx, RegisterInput{Username: "Alice", Email: "Alice@x.com", Password: "secret2"}); err != nil {
		t.Fatalf("case-distinct registration should succeed: %v", err)
	}
}

func TestService_CheckUsernameAvailable(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))
	ctx := context.Background()

	got, err := svc.CheckUsernameAvailable(ctx, "alice")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got.Exists || !got.Available {
		t.Fatalf("fresh username: %+v", got)
	}

	mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	got, err = svc.CheckUsernameAvailable(ctx, "alice")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.Exists || got.Available {
		t.Fatalf("taken username: %+v", got)
	}

	_, err = svc.CheckUsernameAvailable(ctx, " ")
	if msg, _ := PublicMessage(err); msg != MsgUsernameParamRequired {
		t.Fatalf("expected %q, got %v", MsgUsernameParamRequired, err)
	}
}

func TestService_Login_FailuresAreIndistinguishable(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))
	ctx := context.Background()

	mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	_, errWrong := svc.Login(ctx, "alice", "wrong-password")
	_, errMissing := svc.Login(ctx, "nobody", "secret1")

	for _, err := range []error{errWrong, errMissing} {
		if !IsInvalidCredentials(err) {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
	}
	if errWrong.Error() != errMissing.Error() {
		t.Fatalf("errors differ: %q vs %q", errWrong, errMissing)
	}
	if msg, _ := PublicMessage(errWrong); msg != MsgInvalidCredentials {
		t.Fatalf("message=%q", msg)
	}
}

func TestService_Login_Validation(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))

	_, err := svc.Login(context.Background(), "", "x")
	if msg, _ := PublicMessage(err); msg != MsgUsernameRequired {
		t.Fatalf("expected %q, got %v", MsgUsernameRequired, err)
	}
	for _, blank := range []string{"", "      ", "\t\n"} {
		_, err = svc.Login(context.Background(), "alice", blank)
		if msg, _ := PublicMessage(err); msg != MsgPasswordRequired || !IsInvalidInput(err) {
			t.Fatalf("password %q: expected %q, got %v", blank, MsgPasswordRequired, err)
		}
	}
}

func TestService_Login_RehashesLegacyBcrypt(t *testing.T) {
	store := newTestSQLiteStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u, err := store.Insert(ctx, NewUser{Username: "legacy", Email: "legacy@x.com", PasswordHash: string(legacy)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := svc.Login(ctx, "legacy", "secret1"); err != nil {
		t.Fatalf("login with legacy hash: %v", err)
	}

	after, _, err := store.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if after.PasswordHash == string(legacy) {
		t.Fatalf("expected legacy hash to be replaced")
	}
	if _, err := svc.Login(ctx, "legacy", "secret1"); err != nil {
		t.Fatalf("login after rehash: %v", err)
	}
}

func TestService_UpdateProfile_Whitelist(t *testing.T) {
	store := newTestSQLiteStore(t)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newTestService(t, store, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	u := mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	clock = clock.Add(time.Hour)
	got, err := svc.UpdateProfile(ctx, u.ID, ProfilePatch{DisplayName: Set("New Name")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DisplayName != "New Name" {
		t.Fatalf("display name=%q", got.DisplayName)
	}
	if got.Email != "alice@x.com" || got.Username != "alice" || got.PasswordHash != u.PasswordHash {
		t.Fatalf("non-whitelisted fields changed: %+v", got)
	}
	if got.ProfileImageURL != nil {
		t.Fatalf("absent field must stay untouched, got %v", *got.ProfileImageURL)
	}
	if !got.UpdatedAt.After(u.UpdatedAt) {
		t.Fatalf("updated_at not refreshed: %v -> %v", u.UpdatedAt, got.UpdatedAt)
	}
	if !got.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("created_at changed")
	}

	got, err = svc.UpdateProfile(ctx, u.ID, ProfilePatch{
		DisplayName:     Clear(),
		ProfileImageURL: Set("https://cdn.example.com/a.png"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DisplayName != "alice" {
		t.Fatalf("cleared display name should fall back to username, got %q", got.DisplayName)
	}
	if got.ProfileImageURL == nil || *got.ProfileImageURL != "https://cdn.example.com/a.png" {
		t.Fatalf("profile image not set: %v", got.ProfileImageURL)
	}

	_, err = svc.UpdateProfile(ctx, 9999, ProfilePatch{DisplayName: Set("x")})
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_GetProfiles(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))
	ctx := context.Background()

	u := mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	own, err := svc.GetOwnProfile(ctx, u.ID)
	if err != nil || own.Email != "alice@x.com" {
		t.Fatalf("own profile: %+v %v", own, err)
	}

	pub, err := svc.GetPublicProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("public profile: %v", err)
	}
	if pub.ID != u.ID || pub.Username != "alice" || pub.DisplayName != "alice" {
		t.Fatalf("public profile: %+v", pub)
	}

	if _, err := svc.GetPublicProfile(ctx, "ghost"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetOwnProfile(ctx, 424242); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_ConcurrentRegister_ExactlyOneWins(t *testing.T) {
	svc := newTestService(t, newTestSQLiteStore(t))

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
		other     []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(context.Background(), RegisterInput{
				Username: "racer",
				Email:    "racer" + string(rune('a'+i)) + "@x.com",
				Password: "secret1",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case IsConflict(err):
				conflicts++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if ok != 1 || conflicts != n-1 {
		t.Fatalf("ok=%d conflicts=%d, want 1/%d", ok, conflicts, n-1)
	}
}

// blindStore hides existing rows from the Exists pre-checks, forcing Register
// down the path where only the unique constraint catches the duplicate.
type blindStore struct {
	UserStore
}

func (blindStore) ExistsByUsername(context.Context, string) (bool, error) { return false, nil }
func (blindStore) ExistsByEmail(context.Context, string) (bool, error)    { return false, nil }

func TestService_Register_ConstraintViolationIsConflict(t *testing.T) {
	svc := newTestService(t, blindStore{UserStore: newTestSQLiteStore(t)})
	ctx := context.Background()

	mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@x.com", Password: "secret1"})
	if field, ok := ConflictField(err); !ok || field != "username" {
		t.Fatalf("expected username conflict from constraint, got %v", err)
	}
	_, err = svc.Register(ctx, RegisterInput{Username: "other", Email: "alice@x.com", Password: "secret1"})
	if field, ok := ConflictField(err); !ok || field != "email" {
		t.Fatalf("expected email conflict from constraint, got %v", err)
	}
}

type failingStore struct {
	UserStore
}

func (failingStore) FindByUsername(context.Context, string) (User, bool, error) {
	return User{}, false, StoreError{Op: "identity.FindByUsername", Err: errors.New("connection reset")}
}

func TestService_StoreFailureIsNotCredentialsFailure(t *testing.T) {
	svc := newTestService(t, failingStore{UserStore: newTestSQLiteStore(t)})

	_, err := svc.Login(context.Background(), "alice", "secret1")
	if !IsStore(err) {
		t.Fatalf("expected store error, got %v", err)
	}
	if IsInvalidCredentials(err) {
		t.Fatalf("store failure must not look like bad credentials")
	}
}

type recordingCache struct {
	mu      sync.Mutex
	entries map[string]PublicProfile
	gets    int
	deletes []string
	failGet bool
}

func (c *recordingCache) Get(_ context.Context, username string) (PublicProfile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return PublicProfile{}, false, errors.New("cache down")
	}
	p, ok := c.entries[username]
	return p, ok, nil
}

func (c *recordingCache) Set(_ context.Context, p PublicProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]PublicProfile{}
	}
	c.entries[p.Username] = p
	return nil
}

func (c *recordingCache) Delete(_ context.Context, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, username)
	c.deletes = append(c.deletes, username)
	return nil
}

func TestService_PublicProfileCache(t *testing.T) {
	cache := &recordingCache{}
	svc := newTestService(t, newTestSQLiteStore(t), WithProfileCache(cache))
	ctx := context.Background()

	u := mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	if _, err := svc.GetPublicProfile(ctx, "alice"); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, ok := cache.entries["alice"]; !ok {
		t.Fatalf("expected profile to be cached")
	}

	if _, err := svc.UpdateProfile(ctx, u.ID, ProfilePatch{DisplayName: Set("Alice A.")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(cache.deletes) != 1 || cache.deletes[0] != "alice" {
		t.Fatalf("expected invalidation of alice, got %v", cache.deletes)
	}

	p, err := svc.GetPublicProfile(ctx, "alice")
	if err != nil || p.DisplayName != "Alice A." {
		t.Fatalf("stale profile after update: %+v %v", p, err)
	}

	cache.failGet = true
	if _, err := svc.GetPublicProfile(ctx, "alice"); err != nil {
		t.Fatalf("cache failure must fall back to store: %v", err)
	}
}

type recordingPublisher struct {
	users []User
	err   error
}

func (p *recordingPublisher) UserRegistered(_ context.Context, u User) error {
	p.users = append(p.users, u)
	return p.err
}

func TestService_RegisterPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	svc := newTestService(t, newTestSQLiteStore(t), WithEventPublisher(pub))

	u := mustRegister(t, svc, "alice", "alice@x.com", "secret1")

	if len(pub.users) != 1 || pub.users[0].ID != u.ID {
		t.Fatalf("expected one event for user %d, got %+v", u.ID, pub.users)
	}
}
