package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации ключа: %v", err)
	}
	a, err := NewAuthenticator(secret, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания Authenticator: %v", err)
	}
	return a
}

// TestGenerateAndValidate проверяет выдачу и проверку токена
func TestGenerateAndValidate(t *testing.T) {
	a := newTestAuthenticator(t)
	owner := uuid.New()

	token, err := a.GenerateToken(owner, false)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}

	claims, err := a.Validate(token)
	if err != nil {
		t.Fatalf("Валидный токен определен как недействительный: %v", err)
	}
	if claims.Owner != owner {
		t.Errorf("Неверный владелец: ожидался %s, получен %s", owner, claims.Owner)
	}
	if claims.IsAdmin {
		t.Error("Токен владельца не должен давать права администратора")
	}
	if !claims.CanAccess(owner) || claims.CanAccess(uuid.New()) {
		t.Error("Владелец должен иметь доступ только к своим слотам")
	}
}

// TestAdminAccess проверяет доступ администратора к чужим слотам
func TestAdminAccess(t *testing.T) {
	a := newTestAuthenticator(t)
	token, err := a.GenerateToken(uuid.Nil, true)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}
	claims, err := a.Validate(token)
	if err != nil {
		t.Fatalf("Ошибка проверки: %v", err)
	}
	if !claims.CanAccess(uuid.New()) {
		t.Error("Администратор должен иметь доступ к любому владельцу")
	}
}

// TestValidateInvalidJWT тестирует валидацию недействительного JWT
func TestValidateInvalidJWT(t *testing.T) {
	a := newTestAuthenticator(t)
	other := newTestAuthenticator(t)
	foreign, _ := other.GenerateToken(uuid.New(), true)

	testCases := []string{
		"invalid.token.here",
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
		foreign,
	}

	for _, invalidToken := range testCases {
		if _, err := a.Validate(invalidToken); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Токен %q должен быть отклонен, получено %v", invalidToken, err)
		}
	}
}

// TestExpiredToken проверяет отказ по истечении срока
func TestExpiredToken(t *testing.T) {
	a := newTestAuthenticator(t)
	token, err := a.GenerateToken(uuid.New(), false)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := a.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Просроченный токен должен быть отклонен, получено %v", err)
	}
}

// TestWeakSecret проверяет требования к ключу
func TestWeakSecret(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := NewAuthenticator(short, 0); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("Короткий ключ должен быть отклонен, получено %v", err)
	}
	if _, err := NewAuthenticator("%%%", 0); err == nil {
		t.Error("Ключ не в Base64 должен быть отклонен")
	}
}
