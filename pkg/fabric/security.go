package fabric

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

// SecureMessageType is the outer type of signed-and-encrypted envelopes.
const SecureMessageType = "secure_message"

const symmetricKeySize = 32

// securityState holds the fabric's symmetric key, the per-agent HMAC
// keys, and the sender allow-list.
type securityState struct {
	mu         sync.RWMutex
	aead       cipher.AEAD
	authKeys   map[string][]byte
	authorized map[string]struct{}
}

// EnableSecurity turns on the secure messaging path. A nil key
// generates a fresh 256-bit symmetric key. Confidentiality uses
// AES-256-GCM, an AEAD construction, so the ciphertext is itself
// tamper-evident on top of the envelope signature.
func (f *Fabric) EnableSecurity(key []byte) error {
	if key == nil {
		key = make([]byte, symmetricKeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return errors.Wrap(err, "generate symmetric key")
		}
	}
	if len(key) != symmetricKeySize {
		return awcperrors.InvalidArgument("symmetric key must be %d bytes, got %d", symmetricKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return errors.Wrap(err, "create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return errors.Wrap(err, "create GCM")
	}
	f.mu.Lock()
	f.security = &securityState{
		aead:       aead,
		authKeys:   make(map[string][]byte),
		authorized: make(map[string]struct{}),
	}
	f.mu.Unlock()
	return nil
}

func (f *Fabric) securityEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.security != nil
}

func (f *Fabric) securityFor() *securityState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.security
}

// RegisterAuthKey registers an agent's HMAC signing key.
func (f *Fabric) RegisterAuthKey(agentID string, key []byte) error {
	sec := f.securityFor()
	if sec == nil {
		return awcperrors.InvalidArgument("security not enabled")
	}
	if agentID == "" || len(key) == 0 {
		return awcperrors.InvalidArgument("auth key requires an agent id and a non-empty key")
	}
	sec.mu.Lock()
	defer sec.mu.Unlock()
	sec.authKeys[agentID] = append([]byte(nil), key...)
	return nil
}

// AuthorizeSender adds an agent to the secure-send allow-list.
func (f *Fabric) AuthorizeSender(agentID string) error {
	sec := f.securityFor()
	if sec == nil {
		return awcperrors.InvalidArgument("security not enabled")
	}
	sec.mu.Lock()
	defer sec.mu.Unlock()
	sec.authorized[agentID] = struct{}{}
	return nil
}

// SendSecure signs the envelope with the sender's HMAC key, encrypts
// the signed envelope with the fabric's symmetric key, and delivers the
// result as a "secure_message".
func (f *Fabric) SendSecure(ctx context.Context, recipient interface{}, msgType string, content interface{}, senderID string, metadata models.JSONMap) models.Delivery {
	sec := f.securityFor()
	if sec == nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: "security not enabled"}
	}
	sec.mu.RLock()
	_, authorized := sec.authorized[senderID]
	authKey := sec.authKeys[senderID]
	sec.mu.RUnlock()
	if !authorized {
		return models.Delivery{Status: models.DeliveryFailed, Error: "sender " + senderID + " not authorized for secure messaging"}
	}
	if authKey == nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: "sender " + senderID + " has no registered auth key"}
	}

	envelope := map[string]interface{}{
		"sender":    senderID,
		"type":      msgType,
		"content":   content,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	signature, err := signEnvelope(envelope, authKey)
	if err != nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}
	envelope["signature"] = signature

	plaintext, err := json.Marshal(envelope)
	if err != nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}
	ciphertext, err := sec.encrypt(plaintext)
	if err != nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}

	md := make(models.JSONMap, len(metadata)+2)
	for k, v := range metadata {
		md[k] = v
	}
	md["encrypted"] = true
	md["requires_auth"] = true
	outer := map[string]interface{}{"ciphertext": ciphertext}
	return f.Send(ctx, recipient, SecureMessageType, outer, senderID, md)
}

// ReceiveSecure decrypts and verifies a secure envelope, returning the
// inner content. Every failure mode returns (nil, false): callers treat
// the message as untrusted and the operator sees the log line.
func (f *Fabric) ReceiveSecure(transportSender string, content interface{}) (interface{}, bool) {
	inner, _, ok := f.openEnvelope(transportSender, content)
	return inner, ok
}

// openEnvelope is the shared secure-receive path; it also returns the
// inner message type for handler dispatch.
func (f *Fabric) openEnvelope(transportSender string, content interface{}) (interface{}, string, bool) {
	sec := f.securityFor()
	if sec == nil {
		return nil, "", false
	}
	outer, ok := content.(map[string]interface{})
	if !ok {
		f.logIntegrity(transportSender, "secure message content is not an object")
		return nil, "", false
	}
	ciphertext, ok := outer["ciphertext"].(string)
	if !ok {
		f.logIntegrity(transportSender, "secure message missing ciphertext")
		return nil, "", false
	}
	plaintext, err := sec.decrypt(ciphertext)
	if err != nil {
		f.logIntegrity(transportSender, "decryption failed")
		return nil, "", false
	}
	var envelope map[string]interface{}
	if err := json.Unmarshal(plaintext, &envelope); err != nil {
		f.logIntegrity(transportSender, "envelope is not valid JSON")
		return nil, "", false
	}
	claimedSender, _ := envelope["sender"].(string)
	if claimedSender == "" || claimedSender != transportSender {
		f.logIntegrity(transportSender, "envelope sender does not match transport sender")
		return nil, "", false
	}
	signature, _ := envelope["signature"].(string)
	if signature == "" {
		f.logIntegrity(transportSender, "envelope missing signature")
		return nil, "", false
	}
	sec.mu.RLock()
	authKey := sec.authKeys[claimedSender]
	sec.mu.RUnlock()
	if authKey == nil {
		f.logIntegrity(transportSender, "no auth key registered for sender")
		return nil, "", false
	}
	delete(envelope, "signature")
	expected, err := signEnvelope(envelope, authKey)
	if err != nil {
		f.logIntegrity(transportSender, "canonicalization failed")
		return nil, "", false
	}
	if !constantTimeEqualHex(signature, expected) {
		f.logIntegrity(transportSender, "signature verification failed")
		return nil, "", false
	}
	innerType, _ := envelope["type"].(string)
	return envelope["content"], innerType, true
}

// handleSecureMessage unwraps an inbound secure envelope and, when a
// handler exists for the inner type, dispatches to it. Unwrap failures
// yield a nil response rather than an error: integrity failures are
// silent to the caller.
func (f *Fabric) handleSecureMessage(ctx context.Context, msg *models.Message) (interface{}, error) {
	inner, innerType, ok := f.openEnvelope(msg.SenderID, msg.Content)
	if !ok {
		return nil, nil
	}
	f.mu.RLock()
	handler := f.handlers[innerType]
	f.mu.RUnlock()
	if handler != nil {
		return handler(ctx, msg.SenderID, inner)
	}
	return inner, nil
}

func (f *Fabric) logIntegrity(sender, reason string) {
	f.metrics.IncrementCounter("fabric.secure.integrity_failure", 1)
	f.logger.Error("secure receive failed", map[string]interface{}{
		"sender": sender,
		"reason": reason,
		"kind":   awcperrors.KindIntegrity.String(),
	})
}

// encrypt seals plaintext as base64(nonce || ciphertext).
func (s *securityState) encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *securityState) decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decode ciphertext")
	}
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
}

// signEnvelope computes hex(HMAC-SHA256(key, canonicalJSON(envelope))).
func signEnvelope(envelope map[string]interface{}, key []byte) (string, error) {
	canonical, err := canonicalJSON(envelope)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// canonicalJSON produces a deterministic encoding: the value is
// round-tripped through encoding/json so every nested object becomes a
// map, and Go's JSON encoder writes map keys in sorted order at every
// level. Both sides of a signature therefore canonicalize identically.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalize")
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, errors.Wrap(err, "canonicalize")
	}
	return json.Marshal(generic)
}

// constantTimeEqualHex compares two hex-encoded MACs without leaking
// timing information.
func constantTimeEqualHex(a, b string) bool {
	rawA, errA := hex.DecodeString(a)
	rawB, errB := hex.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	return hmac.Equal(rawA, rawB)
}
