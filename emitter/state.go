package emitter

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const AlgorithmAES256GCM = "aes-256-gcm"

var ErrUnsupportedAlgorithm = errors.New("unsupported encryption algorithm")

// FormatSettings controls how emitter state is serialized.
// When `Encrypted` is set, `Key` (32 bytes) and `IV` (any non-zero length) are base64 encoded.
type FormatSettings struct {
	Encrypted bool   `json:"encrypted"`
	Type      string `json:"type"`
	Algorithm string `json:"algorithm,omitempty"`
	Key       string `json:"key,omitempty"`
	IV        string `json:"iv,omitempty"`
}

// SerializeState captures everything needed to rebuild `e` through Provider.RecreateEmitter.
func SerializeState(e DataEmitter, settings FormatSettings) ([]byte, error) {
	props, err := json.Marshal(e.EmitterProperties())
	if err != nil {
		return nil, fmt.Errorf("marshal emitter properties: %w", err)
	}

	// round trip the properties so the description holds plain json values, as it would after being read back
	var propsMap map[string]any
	err = json.Unmarshal(props, &propsMap)
	if err != nil {
		return nil, fmt.Errorf("emitter properties are not an object: %w", err)
	}

	plaintext, err := json.Marshal(Description{
		ID:                e.ID(),
		Name:              e.Name(),
		Description:       e.Description(),
		Type:              e.Type(),
		EmitterProperties: propsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	return settings.encode(plaintext)
}

func (s FormatSettings) encode(plaintext []byte) ([]byte, error) {
	if !s.Encrypted {
		return plaintext, nil
	}
	aead, nonce, err := s.aead()
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func (s FormatSettings) decode(state []byte) ([]byte, error) {
	if !s.Encrypted {
		return state, nil
	}
	aead, nonce, err := s.aead()
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(state)))
	n, err := base64.StdEncoding.Decode(sealed, state)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed[:n], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func (s FormatSettings) aead() (cipher.AEAD, []byte, error) {
	if s.Algorithm != AlgorithmAES256GCM {
		return nil, nil, fmt.Errorf("%w: '%s'", ErrUnsupportedAlgorithm, s.Algorithm)
	}
	key, err := base64.StdEncoding.DecodeString(s.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	nonce, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil {
		return nil, nil, fmt.Errorf("decode iv: %w", err)
	}
	if len(nonce) == 0 {
		return nil, nil, errors.New("iv must not be empty")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nonce, nil
}
