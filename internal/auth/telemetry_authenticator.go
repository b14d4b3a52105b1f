package auth

import (
	"context"
	"fmt"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/network"
)

// TelemetryAuthenticator управляет аутентификацией клиентов телеметрии.
// Принимает пары логин/пароль и JWT токены; реализует network.Authenticator.
type TelemetryAuthenticator struct {
	userRepo UserRepository
}

// NewTelemetryAuthenticator создает новый аутентификатор поверх репозитория
// операторских аккаунтов. Если задан base64-секрет, он заменяет случайный.
func NewTelemetryAuthenticator(repo UserRepository, jwtSecret string) (*TelemetryAuthenticator, error) {
	if jwtSecret != "" {
		if err := SetJWTSecret(jwtSecret); err != nil {
			return nil, fmt.Errorf("недействительный JWT секрет: %w", err)
		}
	}

	return &TelemetryAuthenticator{userRepo: repo}, nil
}

// AuthenticateCredentials выполняет аутентификацию по логину/паролю
// и выдаёт JWT токен для последующих подключений.
func (ta *TelemetryAuthenticator) AuthenticateCredentials(ctx context.Context, username, password string) (*network.AuthResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	user, err := ta.userRepo.ValidateCredentials(username, password)
	if err != nil {
		logging.Warn("❌ Неудачная аутентификация для пользователя %s: %v", username, err)
		return nil, ErrInvalidCredentials
	}

	token, err := GenerateJWT(user)
	if err != nil {
		logging.Error("⚠️ Ошибка генерации JWT для %s: %v", username, err)
		return nil, fmt.Errorf("ошибка генерации токена: %w", err)
	}

	logging.Info("✅ Успешная аутентификация пользователя %s (ID: %d)", user.Username, user.ID)

	return &network.AuthResult{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Token:    token,
	}, nil
}

// ValidateToken выполняет аутентификацию по ранее выданному JWT токену.
func (ta *TelemetryAuthenticator) ValidateToken(token string) (*network.AuthResult, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		logging.Debug("❌ Ошибка валидации JWT: %v", err)
		return nil, ErrInvalidCredentials
	}

	// Сверяем с репозиторием: аккаунт мог быть удалён после выдачи токена
	user, err := ta.userRepo.GetUserByID(claims.UserID)
	if err != nil {
		logging.Warn("❌ Пользователь с ID %d не найден: %v", claims.UserID, err)
		return nil, ErrInvalidCredentials
	}

	logging.Debug("✅ JWT аутентификация успешна для %s (ID: %d)", user.Username, user.ID)

	return &network.AuthResult{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Token:    token,
	}, nil
}
