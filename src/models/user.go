package models

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	UserTypeStandard = "standard"
	UserTypeAdmin    = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Password     string    `json:"-"`
	UserType     string    `json:"user_type"`
	AuthProvider string    `json:"auth_provider"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool { return u.UserType == UserTypeAdmin }

// ErrUserNotFound is returned by the user lookup helpers.
var ErrUserNotFound = errors.New("user not found")

type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// CheckPassword compares a given password with the user's hashed password.
func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// CreateUser inserts a new user into the database.
func (u *User) CreateUser(db DBTX) error {
	if u.UserType == "" {
		u.UserType = UserTypeStandard
	}
	if u.AuthProvider == "" {
		u.AuthProvider = "local"
	}
	res, err := db.Exec(`
	INSERT INTO users (username, password, email, name, user_type, auth_provider)
	VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.Password, u.Email, u.Name, u.UserType, u.AuthProvider)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Email,
		&user.Name, &user.UserType, &user.AuthProvider)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

const userColumns = `id, username, password, COALESCE(email, ''), COALESCE(name, ''),
	COALESCE(user_type, 'standard'), COALESCE(auth_provider, 'local')`

// GetUserByUsername retrieves a user from the database by their username.
func GetUserByUsername(db DBTX, username string) (*User, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByEmail retrieves a user from the database by their email address.
func GetUserByEmail(db DBTX, email string) (*User, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// GetUserByID retrieves a user from the database by their id.
func GetUserByID(db DBTX, id int64) (*User, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// CreateSession inserts a new session into the database.
func CreateSession(db DBTX, session *Session) error {
	res, err := db.Exec(`
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.UserID, session.Token, session.RefreshToken, session.UserAgent,
		session.ClientIP, session.IsBlocked, session.ExpiresAt, time.Now())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	session.ID = id
	return nil
}

// GetSessionByToken retrieves a session by its access token.
func GetSessionByToken(db DBTX, token string) (*Session, error) {
	row := db.QueryRow(`
	SELECT id, user_id, token, refresh_token, is_blocked, expires_at
	FROM sessions WHERE token = ?`, token)
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.RefreshToken, &s.IsBlocked, &s.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found")
		}
		return nil, err
	}
	if s.IsBlocked {
		return nil, errors.New("session is blocked")
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, errors.New("session expired")
	}
	return &s, nil
}

// GetSessionByRefreshToken retrieves a session by its refresh token, used
// for token rotation.
func GetSessionByRefreshToken(db DBTX, refreshToken string) (*Session, error) {
	row := db.QueryRow(`
	SELECT id, user_id, token, refresh_token, is_blocked, expires_at
	FROM sessions WHERE refresh_token = ?`, refreshToken)
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.RefreshToken, &s.IsBlocked, &s.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found")
		}
		return nil, err
	}
	if s.IsBlocked {
		return nil, errors.New("session is blocked")
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, errors.New("session expired")
	}
	return &s, nil
}

// DeleteSessionByToken removes a session (logout).
func DeleteSessionByToken(db DBTX, token string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}
