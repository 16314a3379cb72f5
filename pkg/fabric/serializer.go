package fabric

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

// Format names a wire serialization format.
type Format string

const (
	// FormatJSON is plain structured JSON.
	FormatJSON Format = "json"
	// FormatBase64 wraps the JSON encoding in base64 for channels that
	// cannot carry arbitrary bytes.
	FormatBase64 Format = "base64"
)

// Serializer converts messages to and from their wire representation.
type Serializer struct {
	mu     sync.RWMutex
	format Format
}

// NewSerializer creates a serializer in JSON format.
func NewSerializer() *Serializer {
	return &Serializer{format: FormatJSON}
}

// SetFormat switches the wire format. Unknown formats are rejected.
func (s *Serializer) SetFormat(format Format) error {
	switch format {
	case FormatJSON, FormatBase64:
	default:
		return awcperrors.InvalidArgument("unknown serialization format %q", format)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	return nil
}

// Format returns the active wire format.
func (s *Serializer) Format() Format {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format
}

// Serialize encodes a message in the active format.
func (s *Serializer) Serialize(msg *models.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message")
	}
	if s.Format() == FormatBase64 {
		encoded := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
		base64.StdEncoding.Encode(encoded, data)
		return encoded, nil
	}
	return data, nil
}

// Deserialize decodes a message from the active format.
func (s *Serializer) Deserialize(data []byte) (*models.Message, error) {
	if s.Format() == FormatBase64 {
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
		n, err := base64.StdEncoding.Decode(decoded, data)
		if err != nil {
			return nil, errors.Wrap(err, "decode base64 message")
		}
		data = decoded[:n]
	}
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal message")
	}
	return &msg, nil
}
