package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

type OperatorRepository struct {
	db *pgxpool.Pool
}

func NewOperatorRepository(db *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) Create(op *entities.Operator) error {
	_, err := r.db.Exec(context.Background(),
		"INSERT INTO operators (username, password_hash) VALUES ($1, $2)",
		op.Username, op.PasswordHash)
	return err
}

func (r *OperatorRepository) GetByUsername(username string) (*entities.Operator, error) {
	var op entities.Operator
	err := r.db.QueryRow(context.Background(),
		"SELECT id, username, password_hash FROM operators WHERE username = $1",
		username).Scan(&op.ID, &op.Username, &op.PasswordHash)

	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}
