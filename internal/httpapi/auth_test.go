package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"kasira/backend/internal/domain"
)

type stubUserStore struct {
	users []domain.UserAccount
}

func (s *stubUserStore) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.users = append(s.users, user)
	return nil
}

func (s *stubUserStore) ListUsers(context.Context) ([]domain.UserAccount, error) {
	return s.users, nil
}

func (s *stubUserStore) UpdateUserPassword(_ context.Context, username, password string) error {
	for i := range s.users {
		if s.users[i].Username == username {
			s.users[i].Password = password
		}
	}
	return nil
}

func newTestAuth(t *testing.T) (*AuthManager, *stubUserStore) {
	t.Helper()
	hash, err := hashPassword("owner-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &stubUserStore{users: []domain.UserAccount{
		{ID: "demo-owner", Username: "owner", Password: hash, Role: domain.RoleOwner, Active: true},
	}}
	return NewAuthManager("test-secret-key", time.Hour, users), users
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "owner-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleOwner {
		t.Fatalf("expected owner role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "owner" || actor.Role != domain.RoleOwner || actor.ID != "demo-owner" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "wrong"}); err == nil {
		t.Fatalf("expected login failure")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "owner-secret"}); err == nil {
		t.Fatalf("expected login failure for unknown user")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	hash, _ := hashPassword("pw-123456")
	users := &stubUserStore{users: []domain.UserAccount{
		{Username: "dormant", Password: hash, Role: domain.RoleCashier, Active: false},
	}}
	auth := NewAuthManager("test-secret-key", time.Hour, users)

	if _, err := auth.Login(domain.LoginRequest{Username: "dormant", Password: "pw-123456"}); err == nil {
		t.Fatalf("expected inactive account rejection")
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth, _ := newTestAuth(t)
	resp, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "owner-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("expected tampered token rejection")
	}

	otherAuth := NewAuthManager("another-secret-entirely", time.Hour, nil)
	if _, err := otherAuth.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected cross-secret token rejection")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	hash, _ := hashPassword("owner-secret")
	users := &stubUserStore{users: []domain.UserAccount{
		{Username: "owner", Password: hash, Role: domain.RoleOwner, Active: true},
	}}
	auth := NewAuthManager("test-secret-key", -time.Minute, users)
	// NewAuthManager floors non-positive TTLs, so sign directly with an
	// already-expired timestamp.
	token, err := auth.sign("owner", credential{role: domain.RoleOwner}, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token rejection")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	users := &stubUserStore{users: []domain.UserAccount{
		{Username: "legacy", Password: "plain-text-pw", Role: domain.RoleCashier, Active: true},
	}}
	auth := NewAuthManager("test-secret-key", time.Hour, users)

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-text-pw"}); err != nil {
		t.Fatalf("legacy login: %v", err)
	}
	if !isPasswordHash(users.users[0].Password) {
		t.Fatalf("store password was not upgraded to a hash: %q", users.users[0].Password)
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth, users := newTestAuth(t)

	cases := []domain.CashierCreateRequest{
		{Username: "ab", Password: "longenough"},
		{Username: "has space", Password: "longenough"},
		{Username: "validname", Password: "short"},
	}
	for i, req := range cases {
		if _, err := auth.CreateCashier(req); err == nil {
			t.Errorf("case %d: expected rejection", i)
		}
	}

	cashier, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "KasirBaru", Password: "rahasia123"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.Username != "kasirbaru" || cashier.Role != domain.RoleCashier {
		t.Fatalf("unexpected cashier: %+v", cashier)
	}

	stored := users.users[len(users.users)-1]
	if stored.Username != "kasirbaru" || !isPasswordHash(stored.Password) {
		t.Fatalf("cashier not persisted hashed: %+v", stored)
	}

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "kasirbaru", Password: "rahasia123"}); err == nil || !strings.Contains(err.Error(), "exists") {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	listed := auth.ListCashiers()
	if len(listed) != 1 || listed[0].Username != "kasirbaru" {
		t.Fatalf("unexpected cashier list: %+v", listed)
	}
}

func TestNewCashierTokenCarriesIDAndBranch(t *testing.T) {
	auth, users := newTestAuth(t)

	cashier, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "kasirdua", Password: "rahasia123", BranchID: "b2"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.BranchID != "b2" {
		t.Fatalf("branch not recorded: %+v", cashier)
	}

	stored := users.users[len(users.users)-1]
	if stored.ID == "" || stored.BranchID != "b2" {
		t.Fatalf("persisted account missing id or branch: %+v", stored)
	}

	// A token issued right after creation must already identify the account.
	resp, err := auth.Login(domain.LoginRequest{Username: "kasirdua", Password: "rahasia123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.ID == "" {
		t.Fatalf("token carries empty account id: %+v", actor)
	}
	if actor.ID != stored.ID {
		t.Fatalf("token id %q does not match stored account %q", actor.ID, stored.ID)
	}
	if actor.BranchID != "b2" {
		t.Fatalf("token missing branch claim: %+v", actor)
	}
}
