package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yldrmabdullah/shopguard"
	"github.com/yldrmabdullah/shopguard/clock"
	"golang.org/x/crypto/bcrypt"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateAndLookup(t *testing.T) {
	s := New(clock.NewFake(epoch))
	ctx := context.Background()

	u, err := s.CreateUser(ctx, shopguard.CreateUserInput{Email: "a@example.com", Name: "A", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := uuid.Parse(u.UserID); err != nil {
		t.Fatalf("expected uuid id, got %q", u.UserID)
	}
	if !u.Active || !u.CreatedAt.Equal(epoch) {
		t.Fatalf("unexpected record %+v", u)
	}

	byEmail, err := s.GetUserByEmail(ctx, "a@example.com")
	if err != nil || byEmail.UserID != u.UserID {
		t.Fatalf("GetUserByEmail = %+v, %v", byEmail, err)
	}
	if _, err := s.GetUserByEmail(ctx, "b@example.com"); !errors.Is(err, shopguard.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := s.CreateUser(ctx, shopguard.CreateUserInput{Email: "a@example.com"}); !errors.Is(err, shopguard.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestUpdatesAndDeactivation(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, shopguard.CreateUserInput{Email: "a@example.com", Name: "A", PasswordHash: "h1"})

	if err := s.UpdatePasswordHash(ctx, u.UserID, "h2"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}
	if err := s.RecordLogin(ctx, u.UserID, epoch); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}
	if err := s.SetActive(u.UserID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	got, _ := s.GetUserByID(ctx, u.UserID)
	if got.PasswordHash != "h2" || !got.LastLogin.Equal(epoch) || got.Active {
		t.Fatalf("unexpected record %+v", got)
	}
	if err := s.RecordLogin(ctx, "missing", epoch); !errors.Is(err, shopguard.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestConcurrentSignupsCreateOneAccount(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateUser(context.Background(), shopguard.CreateUserInput{Email: "race@example.com"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 || s.Len() != 1 {
		t.Fatalf("expected exactly one account, created=%d len=%d", created, s.Len())
	}
}

func TestEngineRoundTrip(t *testing.T) {
	cfg := shopguard.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = bcrypt.MinCost
	store := New(nil)
	engine, err := shopguard.New().WithConfig(cfg).WithUserProvider(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	up, err := engine.Signup(ctx, shopguard.SignupRequest{
		Name: "Dana", Email: "Dana@Example.com", Password: "Kx9#mPq2!vLw", ConfirmPassword: "Kx9#mPq2!vLw",
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	in, err := engine.Signin(ctx, shopguard.SigninRequest{Email: "dana@example.com", Password: "Kx9#mPq2!vLw"})
	if err != nil {
		t.Fatalf("Signin failed: %v", err)
	}
	if in.UserID != up.UserID {
		t.Fatalf("expected same account, got %s and %s", up.UserID, in.UserID)
	}
	p, err := engine.Profile(ctx, in.UserID)
	if err != nil || p.LastLogin.IsZero() {
		t.Fatalf("expected last login recorded, got %+v err=%v", p, err)
	}
}
