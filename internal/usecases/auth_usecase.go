package usecases

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/perzivalh/botsito-podopie/internal/entities"
	"github.com/perzivalh/botsito-podopie/internal/repository"
)

// AuthUsecase gates the ops API. Operator accounts are seeded from the
// environment; user management proper belongs to the surrounding platform.
type AuthUsecase struct {
	operatorRepo *repository.OperatorRepository
	jwtSecret    []byte
}

func NewAuthUsecase(repo *repository.OperatorRepository, secret string) *AuthUsecase {
	return &AuthUsecase{
		operatorRepo: repo,
		jwtSecret:    []byte(secret),
	}
}

func (uc *AuthUsecase) Login(username, password string) (string, error) {
	op, err := uc.operatorRepo.GetByUsername(username)
	if err != nil {
		return "", err
	}
	if op == nil {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"operator_id": op.ID,
		"username":    op.Username,
		"exp":         time.Now().Add(time.Hour * 24).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// EnsureOperator creates the seed operator if it does not exist
// (called on startup with env credentials).
func (uc *AuthUsecase) EnsureOperator(username, password string) error {
	op, err := uc.operatorRepo.GetByUsername(username)
	if err != nil {
		return err
	}
	if op != nil {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return uc.operatorRepo.Create(&entities.Operator{
		Username:     username,
		PasswordHash: string(hashed),
	})
}
