package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User representa un usuario del panel con su rol
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     string    `json:"full_name"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRepository maneja los usuarios que pueden iniciar sesión en la API
type UserRepository struct {
	conn *Connection
}

// NewUserRepository crea un nuevo repositorio de usuarios
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// GetUserByUsername devuelve nil si el usuario no existe
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT id, username, password_hash, role, full_name, active, created_at FROM users WHERE username = ?`

	var u User
	err := r.conn.DB.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.FullName, &u.Active, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error consultando usuario: %w", err)
	}
	return &u, nil
}

// CreateUser crea un usuario activo
func (r *UserRepository) CreateUser(ctx context.Context, u *User) error {
	u.Active = true
	u.CreatedAt = time.Now().UTC()

	query := `INSERT INTO users (username, password_hash, role, full_name, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := r.conn.DB.ExecContext(ctx, query, u.Username, u.PasswordHash, u.Role, u.FullName, u.Active, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creando usuario: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("error obteniendo ID: %w", err)
	}
	u.ID = int(id)
	return nil
}

// ListUsers lista todos los usuarios
func (r *UserRepository) ListUsers(ctx context.Context) ([]User, error) {
	query := `SELECT id, username, role, full_name, active, created_at FROM users ORDER BY username`
	rows, err := r.conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listando usuarios: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.Active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("error escaneando usuario: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
