package camclient

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/des"
)

// session wraps the negotiated two-key Triple-DES (EDE2) cipher used to
// encrypt every newcamd frame after login, mirroring mod->triple_des.
type session struct {
	key [16]byte
}

func newSession(key [16]byte) *session {
	return &session{key: key}
}

func (s *session) block() (cipher.Block, error) {
	k := ede2ToEDE3(s.key)
	b, err := des.NewTripleDESCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("camclient: des: %w", err)
	}
	return b, nil
}

// encryptCBC CBC-encrypts data (already padded to a multiple of 8
// bytes) under a fresh random IV, returning ciphertext followed by the
// IV, mirroring newcamd_send_msg's DES_ede2_cbc_encrypt call plus its
// trailing plaintext IV.
func (s *session) encryptCBC(data []byte) ([]byte, error) {
	if len(data)%des.BlockSize != 0 {
		return nil, fmt.Errorf("camclient: encrypt: %d bytes not block-aligned", len(data))
	}
	block, err := s.block()
	if err != nil {
		return nil, err
	}
	iv := make([]byte, des.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("camclient: iv: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return append(out, iv...), nil
}

// decryptCBC reverses encryptCBC: data is ciphertext with the IV
// appended, mirroring newcamd_recv_msg's decrypt step.
func (s *session) decryptCBC(data []byte) ([]byte, error) {
	if len(data) < des.BlockSize || (len(data)-des.BlockSize)%des.BlockSize != 0 {
		return nil, fmt.Errorf("camclient: decrypt: bad length %d", len(data))
	}
	block, err := s.block()
	if err != nil {
		return nil, err
	}
	body := data[:len(data)-des.BlockSize]
	iv := data[len(data)-des.BlockSize:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	return out, nil
}
