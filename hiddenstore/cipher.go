package hiddenstore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Cipher encrypts with AES in CBC mode with PKCS#5 padding.
//
// If it is created with a fixed IV, the output is the ciphertext alone. Otherwise a random IV is
// generated for every call to Encrypt and prepended to the ciphertext.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// NewCipher creates a Cipher. The key must be 16, 24 or 32 bytes; the iv must be empty or 16 bytes.
func NewCipher(key, iv []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid AES key: %w", err)
	}
	if len(iv) != 0 && len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("invalid AES IV length %d", len(iv))
	}
	return &Cipher{block: block, iv: append([]byte(nil), iv...)}, nil
}

// Encrypt pads and encrypts plain. With no fixed IV, the random IV is the first block of the result.
func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	padLen := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)

	iv := c.iv
	var prefix []byte
	if len(iv) == 0 {
		iv = make([]byte, aes.BlockSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, err
		}
		prefix = iv
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)
	return append(append([]byte(nil), prefix...), out...), nil
}

// Decrypt reverses Encrypt. It returns ErrDecryption if the data is not a whole number of blocks
// or the padding is invalid.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	iv := c.iv
	if len(iv) == 0 {
		if len(data) < aes.BlockSize {
			return nil, ErrDecryption
		}
		iv, data = data[:aes.BlockSize], data[aes.BlockSize:]
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrDecryption
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, data)

	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		return nil, ErrDecryption
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			return nil, ErrDecryption
		}
	}
	return out[:len(out)-padLen], nil
}

// ErrDecryption means that a value could not be decrypted with the configured key and IV.
var ErrDecryption = errors.New("hidden store decryption failed")
