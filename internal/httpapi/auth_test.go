package httpapi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"retailops/backend/internal/domain"
	"retailops/backend/internal/store"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return &user, nil
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return fmt.Errorf("%w: username taken", store.ErrValidation)
	}
	s.users[user.Username] = user
	return nil
}

func newStubWithUser(t *testing.T, account domain.UserAccount) *userStoreStub {
	t.Helper()
	hash, err := hashPassword(account.Password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	account.Password = hash
	return &userStoreStub{users: map[string]domain.UserAccount{account.Username: account}}
}

func TestLoginCarriesScopeIDsThroughToken(t *testing.T) {
	stub := newStubWithUser(t, domain.UserAccount{
		Username:   "northsupply",
		Password:   "supplier-pass",
		Role:       domain.RoleSupplier,
		SupplierID: "sup-north",
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	})
	manager := NewAuthManager("test-secret", time.Hour, stub)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "northsupply",
		Password: "supplier-pass",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleSupplier {
		t.Fatalf("unexpected role %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "northsupply" {
		t.Fatalf("unexpected actor username %s", actor.Username)
	}
	if actor.SupplierID != "sup-north" {
		t.Fatalf("expected supplier id in token claims, got %q", actor.SupplierID)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	stub := newStubWithUser(t, domain.UserAccount{
		Username:  "alice",
		Password:  "customer-pass",
		Role:      domain.RoleCustomer,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	manager := NewAuthManager("test-secret", time.Hour, stub)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "alice",
		Password: "wrong",
	}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "nobody",
		Password: "customer-pass",
	}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}

	inactive := stub.users["alice"]
	inactive.Active = false
	stub.users["alice"] = inactive
	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "alice",
		Password: "customer-pass",
	}); err == nil {
		t.Fatalf("expected inactive account to fail")
	}
}

func TestParseTokenRejectsForgedToken(t *testing.T) {
	stub := newStubWithUser(t, domain.UserAccount{
		Username:  "manager",
		Password:  "manager-pass",
		Role:      domain.RoleManager,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	issuer := NewAuthManager("real-secret", time.Hour, stub)
	forger := NewAuthManager("other-secret", time.Hour, stub)

	resp, err := forger.Login(context.Background(), domain.LoginRequest{
		Username: "manager",
		Password: "manager-pass",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := issuer.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
	if _, err := issuer.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestRegisterStaffStoresPasswordHash(t *testing.T) {
	stub := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	user, err := manager.RegisterStaff(context.Background(), domain.RegisterStaffRequest{
		Username:   "newstaff",
		Password:   "pass1234",
		EmployeeID: "emp-9",
	})
	if err != nil {
		t.Fatalf("register staff failed: %v", err)
	}
	if user.Role != domain.RoleStaff {
		t.Fatalf("unexpected role %s", user.Role)
	}

	saved := stub.users["newstaff"]
	if saved.Password == "pass1234" {
		t.Fatalf("expected password to be hashed")
	}
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}
	if saved.EmployeeID != "emp-9" {
		t.Fatalf("expected employee id to be saved, got %q", saved.EmployeeID)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "newstaff",
		Password: "pass1234",
	}); err != nil {
		t.Fatalf("login with new staff account failed: %v", err)
	}
}

func TestRegisterStaffValidatesInput(t *testing.T) {
	stub := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	if _, err := manager.RegisterStaff(context.Background(), domain.RegisterStaffRequest{
		Username: "ab",
		Password: "pass1234",
	}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := manager.RegisterStaff(context.Background(), domain.RegisterStaffRequest{
		Username: "goodname",
		Password: "short",
	}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := manager.RegisterStaff(context.Background(), domain.RegisterStaffRequest{
		Username: "bad name",
		Password: "pass1234",
	}); err == nil {
		t.Fatalf("expected username with spaces to be rejected")
	}
}
