package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

// TestGenerateJWT тестирует создание JWT токена
func TestGenerateJWT(t *testing.T) {
	user := &User{
		ID:           1,
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		IsAdmin:      false,
		CreatedAt:    time.Now(),
		LastLogin:    time.Now(),
	}

	token, err := GenerateJWT(user)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	if token == "" {
		t.Fatal("Пустой токен")
	}

	// Проверяем, что токен содержит точки (разделители частей JWT)
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}
}

// TestValidateJWT тестирует валидацию JWT токена
func TestValidateJWT(t *testing.T) {
	user := &User{
		ID:           42,
		Username:     "validuser",
		PasswordHash: "hashedpassword",
		IsAdmin:      true,
		CreatedAt:    time.Now(),
		LastLogin:    time.Now(),
	}

	// Генерируем токен
	token, err := GenerateJWT(user)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	// Валидируем токен
	userID, isValid, isAdmin := ValidateJWT(token)

	if !isValid {
		t.Error("Валидный токен определен как недействительный")
	}

	if userID != user.ID {
		t.Errorf("Неверный userID: ожидался %d, получен %d", user.ID, userID)
	}

	if isAdmin != user.IsAdmin {
		t.Errorf("Неверный флаг администратора: ожидался %v, получен %v", user.IsAdmin, isAdmin)
	}
}

// TestValidateInvalidJWT тестирует валидацию недействительного JWT
func TestValidateInvalidJWT(t *testing.T) {
	// Тестируем различные случаи недействительных токенов
	testCases := []string{
		"invalid.token.here",
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, invalidToken := range testCases {
		userID, isValid, isAdmin := ValidateJWT(invalidToken)

		if isValid {
			t.Errorf("Недействительный токен '%s' прошел валидацию", invalidToken)
		}

		if userID != 0 {
			t.Errorf("UserID должен быть 0 для недействительного токена, получен %d", userID)
		}

		if isAdmin {
			t.Errorf("isAdmin должен быть false для недействительного токена")
		}
	}
}

// TestGenerateSecureSecret тестирует генерацию секретного ключа
func TestGenerateSecureSecret(t *testing.T) {
	secret1, err1 := GenerateSecureSecret()
	if err1 != nil {
		t.Fatalf("Ошибка генерации первого секрета: %v", err1)
	}

	secret2, err2 := GenerateSecureSecret()
	if err2 != nil {
		t.Fatalf("Ошибка генерации второго секрета: %v", err2)
	}

	// Проверяем, что секреты разные
	if secret1 == secret2 {
		t.Error("Два последовательных вызова GenerateSecureSecret вернули одинаковый результат")
	}

	// Проверяем, что секрет не пустой
	if secret1 == "" || secret2 == "" {
		t.Error("GenerateSecureSecret вернул пустой секрет")
	}

	// Проверяем минимальную длину (base64 от 32 байт = ~44 символа)
	if len(secret1) < 40 || len(secret2) < 40 {
		t.Error("Секрет слишком короткий")
	}
}

// TestSetJWTSecret тестирует установку пользовательского секретного ключа
func TestSetJWTSecret(t *testing.T) {
	// Генерируем действительный секрет
	validSecret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации валидного секрета: %v", err)
	}

	// Тестируем установку действительного секрета
	if err := SetJWTSecret(validSecret); err != nil {
		t.Errorf("Ошибка установки валидного секрета: %v", err)
	}

	// Тестируем недействительные секреты
	invalidSecrets := []string{
		"too-short",
		"invalid-base64-@#$%",
		"",
	}

	for _, invalidSecret := range invalidSecrets {
		if err := SetJWTSecret(invalidSecret); err == nil {
			t.Errorf("Недействительный секрет '%s' был принят", invalidSecret)
		}
	}
}

// TestMemoryUserRepoSeed проверяет, что конструктор создаёт встроенные учётные записи
func TestMemoryUserRepoSeed(t *testing.T) {
	repo := NewMemoryUserRepo()

	observer, err := repo.GetUserByUsername("observer")
	if err != nil {
		t.Fatalf("Учётная запись observer не создана: %v", err)
	}
	if observer.IsAdmin {
		t.Error("observer не должен быть администратором")
	}
	if !CheckPassword(observer.PasswordHash, "observer") {
		t.Error("Пароль observer не совпадает")
	}

	admin, err := repo.GetUserByUsername("admin")
	if err != nil {
		t.Fatalf("Учётная запись admin не создана: %v", err)
	}
	if !admin.IsAdmin {
		t.Error("admin должен быть администратором")
	}
}

// TestAuthenticatorLifecycle тестирует полный цикл: пароль -> токен -> валидация
func TestAuthenticatorLifecycle(t *testing.T) {
	repo := NewMemoryUserRepo()

	authn, err := NewTelemetryAuthenticator(repo, "")
	if err != nil {
		t.Fatalf("Ошибка создания аутентификатора: %v", err)
	}

	ctx := context.Background()

	// Успешная аутентификация по паролю
	result, err := authn.AuthenticateCredentials(ctx, "observer", "observer")
	if err != nil {
		t.Fatalf("Ошибка аутентификации: %v", err)
	}
	if result.Username != "observer" || result.IsAdmin {
		t.Errorf("Неверный результат аутентификации: %+v", result)
	}
	if result.Token == "" {
		t.Fatal("Токен не выдан")
	}

	// Повторный вход по выданному токену
	byToken, err := authn.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("Ошибка валидации токена: %v", err)
	}
	if byToken.UserID != result.UserID {
		t.Errorf("Неверный UserID по токену: ожидался %d, получен %d", result.UserID, byToken.UserID)
	}

	// Неверный пароль
	if _, err := authn.AuthenticateCredentials(ctx, "observer", "wrong"); err == nil {
		t.Error("Аутентификация с неверным паролем прошла успешно")
	}

	// Админский аккаунт
	admin, err := authn.AuthenticateCredentials(ctx, "admin", "admin")
	if err != nil {
		t.Fatalf("Ошибка аутентификации администратора: %v", err)
	}
	if !admin.IsAdmin {
		t.Error("Флаг администратора не установлен")
	}
}
