package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"FamilyWell/config"
)

var errInvalidCipherText = errors.New("invalid ciphertext payload")

// EncryptPhone 返回 nonce + 密文，直接存入 phone_cipher 列
func EncryptPhone(plain string) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plain), nil)
	return append(nonce, ciphertext...), nil
}

func DecryptPhone(raw []byte) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errInvalidCipherText
	}

	plain, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher([]byte(config.Cfg.EncryptionKey))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
