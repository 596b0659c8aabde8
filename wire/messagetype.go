package wire

import "fmt"

// messageTypeNames mirrors header_wrp.go's StringToMessageType: a closed
// mapping from the wire's single object key to the DeviceMessageType it
// names. Unlike the teacher, there is no HTTP header to parse — the key
// comes from the single key of a decoded JSON object (see envelope.go) —
// but the "is this a known, well-formed message" validation the teacher
// does per MessageType carries over unchanged in spirit.
var messageTypeNames = map[string]DeviceMessageType{
	string(VibrateCmd):        VibrateCmd,
	string(LinearCmd):         LinearCmd,
	string(RotateCmd):         RotateCmd,
	string(StopDeviceCmd):     StopDeviceCmd,
	string(RawReadCmd):        RawReadCmd,
	string(RawWriteCmd):       RawWriteCmd,
	string(RawSubscribeCmd):   RawSubscribeCmd,
	string(RawUnsubscribeCmd): RawUnsubscribeCmd,
}

// lifecycleKeys are envelope keys that route to the server's lifecycle
// handling rather than the Device Manager; they don't carry a
// DeviceMessageType because they aren't addressed to a Protocol Handler.
var lifecycleKeys = map[string]bool{
	"RequestDeviceList": true,
	"StartScanning":     true,
	"StopScanning":      true,
	"StopAllDevices":    true,
	"Ping":              true,
}

// replyKeys are envelope keys the server originates (replies and
// unsolicited notifications) rather than keys a client sends. They never
// flow through ValidateShape's DeviceIndex-required check, since that
// check models §4.6's incoming-request routing, not a reply's shape —
// but Envelope.Decode still needs to recognize them as well-formed so
// both a client and the server's own tests can decode a reply generically
// instead of reaching past Decode into Envelope.Raw by hand.
var replyKeys = map[string]bool{
	"Ok":                     true,
	"Error":                  true,
	"DeviceList":             true,
	"DeviceAdded":            true,
	"DeviceRemoved":          true,
	"ScanningFinished":       true,
	"RawReading":             true,
	"RawReadingNotification": true,
}

// StringToMessageType maps an envelope key to its DeviceMessageType. The
// second return value is false if key doesn't name a device command.
func StringToMessageType(key string) (DeviceMessageType, bool) {
	t, ok := messageTypeNames[key]
	return t, ok
}

// IsLifecycleKey reports whether key names one of the connection-lifecycle
// messages (§4.6) rather than a per-device command.
func IsLifecycleKey(key string) bool {
	return lifecycleKeys[key]
}

// deviceIndexRequired mirrors the teacher's per-MessageType mandatory-field
// table (there, TransactionUuid/Source/Path were mandatory for certain
// types; here, DeviceIndex is mandatory for anything routed to a device).
func deviceIndexRequired(t DeviceMessageType) bool {
	switch t {
	case VibrateCmd, LinearCmd, RotateCmd, StopDeviceCmd,
		RawReadCmd, RawWriteCmd, RawSubscribeCmd, RawUnsubscribeCmd:
		return true
	default:
		return false
	}
}

// ValidateShape performs the envelope-level structural checks the teacher's
// HeaderToWRP performs before a message is handed to routing logic: known
// key, and (for device-addressed types) a DeviceIndex field present. This
// is deliberately shallow — subcommand range/index validation is the
// façade's job (spec.md §4.7) or the Server Event Loop's (server/validate.go),
// not the wire layer's.
func ValidateShape(key string, hasDeviceIndex bool) error {
	if IsLifecycleKey(key) || replyKeys[key] {
		return nil
	}

	t, ok := StringToMessageType(key)
	if !ok {
		return fmt.Errorf("%w: unknown message key %q", ErrUnknownMessage, key)
	}

	if deviceIndexRequired(t) && !hasDeviceIndex {
		return fmt.Errorf("%w: %s requires DeviceIndex", ErrMalformed, key)
	}

	return nil
}
