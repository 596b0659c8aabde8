package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessage is returned when an envelope's single key does not name
// any message this protocol understands (spec.md §7 MessageError).
var ErrUnknownMessage = errors.New("wire: unknown message")

// ErrMalformed is returned for a structurally invalid envelope (spec.md §7
// MessageError).
var ErrMalformed = errors.New("wire: malformed envelope")

// Envelope is the single-keyed JSON object described in spec.md §6: every
// message on the wire is `{"<Name>": {...}}`. Raw holds the still-encoded
// value so callers can decode it into the concrete message type once the
// key has been dispatched on.
type Envelope struct {
	Key string
	Raw json.RawMessage
}

// idProbe is used only to pull the common Id field out of Raw without
// committing to a concrete message type.
type idProbe struct {
	Id          Id      `json:"Id"`
	DeviceIndex *uint32 `json:"DeviceIndex"`
}

// Id returns the envelope's message Id without fully decoding it.
func (e Envelope) Id() (Id, error) {
	var probe idProbe
	if err := json.Unmarshal(e.Raw, &probe); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return probe.Id, nil
}

// DeviceIndex returns the envelope's DeviceIndex field, if present.
func (e Envelope) DeviceIndex() (uint32, bool, error) {
	var probe idProbe
	if err := json.Unmarshal(e.Raw, &probe); err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if probe.DeviceIndex == nil {
		return 0, false, nil
	}
	return *probe.DeviceIndex, true, nil
}

// Decode unmarshals the envelope's raw value into dest and validates its
// shape against the key.
func (e Envelope) Decode(dest interface{}) error {
	_, hasIdx, err := e.DeviceIndex()
	if err != nil {
		return err
	}
	if err := ValidateShape(e.Key, hasIdx); err != nil {
		return err
	}
	return json.Unmarshal(e.Raw, dest)
}

// DecodeEnvelope unmarshals a single JSON object with exactly one key into
// an Envelope. It does not decode the value further.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) != 1 {
		return Envelope{}, fmt.Errorf("%w: envelope must have exactly one key, got %d", ErrMalformed, len(raw))
	}
	for k, v := range raw {
		return Envelope{Key: k, Raw: v}, nil
	}
	panic("unreachable")
}

// DecodeArray splits a JSON array of envelopes, per spec.md §6's
// length-free array framing.
func DecodeArray(data []byte) ([]Envelope, error) {
	var rawArray []json.RawMessage
	if err := json.Unmarshal(data, &rawArray); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	envelopes := make([]Envelope, 0, len(rawArray))
	for _, item := range rawArray {
		e, err := DecodeEnvelope(item)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, e)
	}
	return envelopes, nil
}

// Encode wraps a named message value into its single-keyed envelope form.
func Encode(name string, message interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{name: message})
}

// EncodeArray encodes a batch of named messages as a single wire array.
// This is the hot path for every reply and notification the Server Event
// Loop and the client write, so it runs through defaultPool rather than
// allocating a fresh buffer per call.
func EncodeArray(items ...namedMessage) ([]byte, error) {
	return defaultPool.encodeArray(items)
}

// namedMessage pairs a message with its wire key for EncodeArray.
type namedMessage struct {
	Name    string
	Message interface{}
}

// Named builds a namedMessage for use with EncodeArray.
func Named(name string, message interface{}) namedMessage {
	return namedMessage{Name: name, Message: message}
}
