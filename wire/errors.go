package wire

import "fmt"

// ErrorCode enumerates the wire-visible error taxonomy from spec.md §7.
type ErrorCode int

const (
	// ErrorCodeUnknown should never be serialized; it exists so the zero
	// value is visibly wrong.
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodeConnector
	ErrorCodeDevice
	ErrorCodeMessage
	ErrorCodePing
	ErrorCodeHandshake
)

// DeviceErrorReason refines ErrorCodeDevice per spec.md §7.
type DeviceErrorReason string

const (
	DeviceNotConnected       DeviceErrorReason = "DeviceNotConnected"
	DeviceNotFound           DeviceErrorReason = "DeviceNotFound"
	UnsupportedCommand       DeviceErrorReason = "UnsupportedCommand"
	UnsupportedEndpoint      DeviceErrorReason = "UnsupportedEndpoint"
	InvalidCommand           DeviceErrorReason = "InvalidCommand"
	DeviceCommunicationError DeviceErrorReason = "DeviceCommunicationError"
)

// ProtocolError is the carrier type returned by a Protocol Handler
// (spec.md §4.4). It is translated into a wire Error by the Device Manager
// and Server Event Loop before it ever reaches a client.
type ProtocolError struct {
	Code   ErrorCode
	Reason DeviceErrorReason
	Text   string
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Text)
	}
	return e.Text
}

// NewDeviceError builds a ProtocolError tagged as a DeviceError with the
// given reason, per spec.md §7's rule that a DeviceError never closes the
// connection.
func NewDeviceError(reason DeviceErrorReason, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		Code:   ErrorCodeDevice,
		Reason: reason,
		Text:   fmt.Sprintf(format, args...),
	}
}

// NewConnectorError builds a ProtocolError tagged as a ConnectorError. The
// Server Event Loop writes it back as an error reply like any other code;
// it does not close the connection.
func NewConnectorError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: ErrorCodeConnector, Text: fmt.Sprintf(format, args...)}
}

// NewMessageError builds a ProtocolError tagged as a MessageError: malformed
// JSON, an unknown message key, or a reply type that didn't match the
// request (spec.md §7).
func NewMessageError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: ErrorCodeMessage, Text: fmt.Sprintf(format, args...)}
}

// NewPingError builds a ProtocolError tagged as a PingError: the negotiated
// ping interval elapsed with no Ping received.
func NewPingError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: ErrorCodePing, Text: fmt.Sprintf(format, args...)}
}

// NewHandshakeError builds a ProtocolError tagged as a HandshakeError: an
// incompatible protocol spec version declared at connect.
func NewHandshakeError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: ErrorCodeHandshake, Text: fmt.Sprintf(format, args...)}
}

// NewUnsupportedCommand is a convenience constructor for the most common
// ProtocolHandler failure: a message type the handler never overrides.
func NewUnsupportedCommand(messageType DeviceMessageType) *ProtocolError {
	return NewDeviceError(UnsupportedCommand, "%s is not supported by this device", messageType)
}

// ToEnvelope converts a ProtocolError into the wire Error envelope for the
// given request Id, unwrapping unrelated errors into DeviceCommunicationError
// the way §7 describes for transport I/O failures.
func ToEnvelope(id Id, err error) Error {
	var code int
	var msg string

	if pe, ok := err.(*ProtocolError); ok {
		code = int(pe.Code)
		msg = pe.Error()
	} else {
		code = int(ErrorCodeDevice)
		msg = (&ProtocolError{Code: ErrorCodeDevice, Reason: DeviceCommunicationError, Text: err.Error()}).Error()
	}

	return Error{Id: id, ErrorCode: code, ErrorMessage: msg}
}
