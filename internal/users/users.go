// Package users stores accounts in the user spreadsheet (columns A to I:
// username, name, roll_number, department, team, role, hash, salt, admin).
package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"sheetattend/internal/sheets"
)

var (
	ErrExists             = errors.New("username already exists")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalid            = errors.New("invalid user")
)

var header = []any{"username", "name", "roll_number", "department", "team", "role", "hash", "salt", "admin"}

// User is a profile row without credentials.
type User struct {
	Username   string `json:"username"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	Department string `json:"department"`
	Team       string `json:"team"`
	Role       string `json:"role"`
	Admin      bool   `json:"-"`
}

// Row returns the first six profile columns in sheet order.
func (u User) Row() []string {
	return []string{u.Username, u.Name, u.RollNumber, u.Department, u.Team, u.Role}
}

// NewUser is a signup request.
type NewUser struct {
	Username   string `json:"username" validate:"required"`
	Name       string `json:"name" validate:"required"`
	RollNumber string `json:"roll_number" validate:"required,numeric"`
	Department string `json:"department" validate:"required"`
	Team       string `json:"team"`
	Role       string `json:"role"`
	Password   string `json:"password" validate:"required"`
}

// Store reads and writes the user sheet.
type Store struct {
	client        sheets.Client
	spreadsheetID string
	tab           string
	scheme        string
	validate      *validator.Validate
}

// NewStore creates a store. scheme selects the hash for new accounts.
func NewStore(client sheets.Client, spreadsheetID, tab, scheme string) *Store {
	if tab == "" {
		tab = "Sheet1"
	}
	if scheme == "" {
		scheme = SchemeSHA256
	}
	return &Store{client: client, spreadsheetID: spreadsheetID, tab: tab, scheme: scheme, validate: validator.New()}
}

// EnsureHeader writes the header row into an empty user sheet.
func (s *Store) EnsureHeader(ctx context.Context) error {
	rng := sheets.Range(s.tab, "A1:I1")
	rows, err := s.client.Get(ctx, s.spreadsheetID, rng)
	if err != nil {
		return err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		return nil
	}
	return s.client.Update(ctx, s.spreadsheetID, rng, [][]any{header})
}

type account struct {
	User
	hash string
	salt string
}

func (s *Store) lookup(ctx context.Context, username string) (account, error) {
	rows, err := s.client.Get(ctx, s.spreadsheetID, sheets.Range(s.tab, "A:I"))
	if err != nil {
		return account{}, fmt.Errorf("read users: %w", err)
	}
	username = strings.TrimSpace(username)
	for i, raw := range rows {
		if i == 0 {
			continue
		}
		row := sheets.Strings(raw)
		for len(row) < 9 {
			row = append(row, "")
		}
		if row[0] != username {
			continue
		}
		return account{
			User: User{
				Username:   row[0],
				Name:       row[1],
				RollNumber: row[2],
				Department: row[3],
				Team:       row[4],
				Role:       row[5],
				Admin:      strings.EqualFold(strings.TrimSpace(row[8]), "TRUE"),
			},
			hash: row[6],
			salt: row[7],
		}, nil
	}
	return account{}, ErrNotFound
}

// Exists reports whether username is taken.
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	_, err := s.lookup(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create validates and stores a new, non-admin user.
func (s *Store) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Username = strings.TrimSpace(nu.Username)
	nu.RollNumber = strings.TrimSpace(nu.RollNumber)
	if err := s.validate.Struct(nu); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	roll, err := strconv.Atoi(nu.RollNumber)
	if err != nil {
		return User{}, fmt.Errorf("%w: roll_number must be an integer", ErrInvalid)
	}

	exists, err := s.Exists(ctx, nu.Username)
	if err != nil {
		return User{}, err
	}
	if exists {
		return User{}, ErrExists
	}

	hash, salt, err := Hash(s.scheme, nu.Password)
	if err != nil {
		return User{}, err
	}
	row := []any{nu.Username, nu.Name, roll, nu.Department, nu.Team, nu.Role, hash, salt, "FALSE"}
	if err := s.client.Append(ctx, s.spreadsheetID, sheets.Range(s.tab, "A:I"), [][]any{row}); err != nil {
		return User{}, fmt.Errorf("add user: %w", err)
	}
	return User{
		Username:   nu.Username,
		Name:       nu.Name,
		RollNumber: strconv.Itoa(roll),
		Department: nu.Department,
		Team:       nu.Team,
		Role:       nu.Role,
	}, nil
}

// Authenticate returns the user when password matches.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	acct, err := s.lookup(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !Verify(acct.hash, acct.salt, password) {
		return User{}, ErrInvalidCredentials
	}
	return acct.User, nil
}

// Profile returns the profile of username.
func (s *Store) Profile(ctx context.Context, username string) (User, error) {
	acct, err := s.lookup(ctx, username)
	if err != nil {
		return User{}, err
	}
	return acct.User, nil
}

// IsAdmin reports whether username has the admin flag set. Unknown users are
// not admins.
func (s *Store) IsAdmin(ctx context.Context, username string) (bool, error) {
	acct, err := s.lookup(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.Admin, nil
}
