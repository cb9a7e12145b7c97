// Пакет session — cookie браузерного клиента SmartTalk.
// Cookie хранит идентификатор клиента, id-токен и тему оформления,
// зашифрованные AES-256-GCM.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Имя cookie клиента.
const CookieName = "smarttalk_session"

// Максимальный возраст cookie (30 дней). Срок id-токена проверяется отдельно.
const CookieMaxAge = 30 * 24 * 60 * 60

// Data — содержимое cookie клиента.
type Data struct {
	// ClientID — идентификатор браузерного клиента (ключ реестра клиентов)
	ClientID string `json:"cid"`
	// Token — id-токен; пусто, если пользователь не вошёл
	Token string `json:"tok,omitempty"`
	// Theme — тема оформления (light, dark)
	Theme string `json:"theme,omitempty"`
}

// New создаёт данные нового клиента.
func New() *Data {
	return &Data{ClientID: uuid.NewString()}
}

// Manager — шифрование и чтение cookie клиента.
type Manager struct {
	gcm    cipher.AEAD
	secure bool
}

// NewManager создаёт менеджер cookie.
// key — base64 32-байтового ключа или произвольная строка (хешируется SHA-256).
// Если key пустой — генерируется случайный ключ (cookie не переживают рестарт).
func NewManager(key string, secure bool) (*Manager, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа cookie: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			h := sha256.Sum256([]byte(key))
			keyBytes = h[:]
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &Manager{gcm: gcm, secure: secure}, nil
}

// Encrypt шифрует Data и возвращает base64-строку.
func (m *Manager) Encrypt(data *Data) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации cookie: %w", err)
	}

	nonce := make([]byte, m.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := m.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует base64-строку в Data.
func (m *Manager) Decrypt(encrypted string) (*Data, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := m.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := m.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка дешифрования cookie: %w", err)
	}

	var data Data
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("ошибка десериализации cookie: %w", err)
	}
	if _, err := uuid.Parse(data.ClientID); err != nil {
		return nil, fmt.Errorf("некорректный идентификатор клиента: %w", err)
	}
	return &data, nil
}

// Load извлекает Data из cookie запроса.
// Возвращает nil, nil если cookie отсутствует.
func (m *Manager) Load(r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	return m.Decrypt(cookie.Value)
}

// Save устанавливает cookie клиента в ответ.
func (m *Manager) Save(w http.ResponseWriter, data *Data) error {
	encrypted, err := m.Encrypt(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear удаляет cookie клиента.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest возвращает id-токен из cookie или пустую строку.
// Используется JSON API как альтернатива заголовку Authorization.
func (m *Manager) TokenFromRequest(r *http.Request) string {
	data, err := m.Load(r)
	if err != nil || data == nil {
		return ""
	}
	return data.Token
}
