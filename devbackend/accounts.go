package devbackend

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/users"
	"golang.org/x/crypto/bcrypt"
)

// Account is a registered user and its password hash.
type Account struct {
	users.UserProfile
	PasswordHash string
}

// Accounts is an in-memory user repository.
type Accounts struct {
	byID       map[string]*Account
	byUsername map[string]string // username to user id
	lock       sync.RWMutex
}

func NewAccounts() *Accounts {
	return &Accounts{
		byID:       make(map[string]*Account),
		byUsername: make(map[string]string),
	}
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Create stores a new account. Usernames are unique, case-insensitively.
func (a *Accounts) Create(profile users.UserProfile, password string) (*Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrapf(err, "[Accounts Create] hash password")
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	key := usernameKey(profile.Username)
	if _, ok := a.byUsername[key]; ok {
		return nil, errors.Wrapf(errors.ErrUserExists, "[Accounts Create] %s", profile.Username)
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	acc := &Account{UserProfile: profile.Normalized(), PasswordHash: hash}
	a.byID[acc.ID] = acc
	a.byUsername[key] = acc.ID
	return acc, nil
}

// Authenticate returns the account when username and password match.
func (a *Accounts) Authenticate(username, password string) (*Account, error) {
	a.lock.RLock()
	id, ok := a.byUsername[usernameKey(username)]
	acc := a.byID[id]
	a.lock.RUnlock()

	if !ok || acc == nil || !CheckPasswordHash(password, acc.PasswordHash) {
		return nil, errors.ErrInvalidCredentials
	}
	return acc, nil
}

func (a *Accounts) GetByID(id string) (*Account, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	acc, ok := a.byID[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUserNotFound, "[Accounts GetByID] %s", id)
	}
	return acc, nil
}

// List returns every profile ordered by username.
func (a *Accounts) List() []users.UserProfile {
	a.lock.RLock()
	defer a.lock.RUnlock()
	out := make([]users.UserProfile, 0, len(a.byID))
	for _, acc := range a.byID {
		out = append(out, acc.UserProfile)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}
