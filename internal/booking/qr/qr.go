package qr

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
	"time"

	"ms-booking/internal/models"

	"github.com/skip2/go-qrcode"
)

// Pass is the payload sealed into a booking QR code and checked at the door.
type Pass struct {
	BookingID string    `json:"booking_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GenerateEncryptedQR returns a PNG QR code holding the encrypted pass for booking.
func (q *QRGenerator) GenerateEncryptedQR(booking models.Booking, size int) ([]byte, error) {
	token, err := q.EncryptPass(Pass{
		BookingID: booking.ID,
		EventID:   booking.EventID,
		UserID:    booking.UserID,
		IssuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(token, qrcode.Medium, size)
}

// EncryptPass seals the pass with AES-GCM and returns it URL-safe base64 encoded.
func (q *QRGenerator) EncryptPass(p Pass) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	gcm, err := q.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// DecryptPass reverses EncryptPass and rejects tampered tokens.
func (q *QRGenerator) DecryptPass(token string) (*Pass, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode pass: %w", err)
	}

	gcm, err := q.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("pass too short")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open pass: %w", err)
	}

	var p Pass
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pass: %w", err)
	}
	return &p, nil
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
