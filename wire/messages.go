// Package wire implements the JSON envelope encoding described in
// spec.md §6: a length-free JSON array of single-keyed message objects.
// Each object has exactly one key (the message name) whose value carries a
// mandatory Id plus type-specific fields. This package owns only the
// envelope shape; it does not know how to execute a command — that's
// server.Loop's job.
package wire

// DeviceMessageType enumerates the command message kinds a Protocol
// Handler may support, per spec.md §3's Message Attributes Map.
type DeviceMessageType string

const (
	VibrateCmd        DeviceMessageType = "VibrateCmd"
	LinearCmd         DeviceMessageType = "LinearCmd"
	RotateCmd         DeviceMessageType = "RotateCmd"
	StopDeviceCmd     DeviceMessageType = "StopDeviceCmd"
	RawReadCmd        DeviceMessageType = "RawReadCmd"
	RawWriteCmd       DeviceMessageType = "RawWriteCmd"
	RawSubscribeCmd   DeviceMessageType = "RawSubscribeCmd"
	RawUnsubscribeCmd DeviceMessageType = "RawUnsubscribeCmd"
)

// MessageAttributes describes what a device supports for one
// DeviceMessageType, per spec.md §3.
type MessageAttributes struct {
	FeatureCount *uint32 `json:"FeatureCount,omitempty"`
	StepCount    []uint32 `json:"StepCount,omitempty"`
}

// MessageAttributesMap is the full per-device capability declaration.
type MessageAttributesMap map[DeviceMessageType]MessageAttributes

// Id is the wire message identifier. 0 is reserved for unsolicited,
// server-originated notifications (spec.md §3, §6).
type Id uint32

// NoReply is the sentinel Id meaning "no reply is expected/sent" and must
// never be used as a Pending Request Table key (spec.md §3).
const NoReply Id = 0

// VibrateSubcommand is one element of a VibrateCmd's Speeds array.
type VibrateSubcommand struct {
	Index uint32  `json:"Index"`
	Speed float64 `json:"Speed"`
}

// VectorSubcommand is one element of a LinearCmd's Vectors array.
type VectorSubcommand struct {
	Index    uint32  `json:"Index"`
	Duration uint32  `json:"Duration"`
	Position float64 `json:"Position"`
}

// RotationSubcommand is one element of a RotateCmd's Rotations array.
type RotationSubcommand struct {
	Index     uint32  `json:"Index"`
	Speed     float64 `json:"Speed"`
	Clockwise bool    `json:"Clockwise"`
}

// Ok is the generic success reply.
type Ok struct {
	Id Id `json:"Id"`
}

// Error is the generic failure reply. ErrorCode is one of the taxonomy
// values defined in errors.go.
type Error struct {
	Id           Id     `json:"Id"`
	ErrorCode    int    `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

// RequestDeviceList asks the server for the current device table.
type RequestDeviceList struct {
	Id Id `json:"Id"`
}

// DeviceListEntry describes one device in a DeviceList/DeviceAdded reply.
type DeviceListEntry struct {
	DeviceName     string                `json:"DeviceName"`
	DeviceIndex    uint32                `json:"DeviceIndex"`
	DeviceMessages MessageAttributesMap `json:"DeviceMessages"`
}

// DeviceList enumerates every currently connected device.
type DeviceList struct {
	Id      Id                `json:"Id"`
	Devices []DeviceListEntry `json:"Devices"`
}

// DeviceAdded is an unsolicited notification (Id == NoReply) announcing a
// newly discovered and initialized device.
type DeviceAdded struct {
	Id Id `json:"Id"`
	DeviceListEntry
}

// DeviceRemoved is an unsolicited notification that a device disconnected.
type DeviceRemoved struct {
	Id          Id     `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// StartScanning asks a comm manager to begin discovery.
type StartScanning struct {
	Id Id `json:"Id"`
}

// StopScanning asks a comm manager to halt discovery.
type StopScanning struct {
	Id Id `json:"Id"`
}

// ScanningFinished is the unsolicited notification that discovery stopped.
type ScanningFinished struct {
	Id Id `json:"Id"`
}

// VibrateCmdMessage is the wire form of a vibrate command.
type VibrateCmdMessage struct {
	Id          Id                  `json:"Id"`
	DeviceIndex uint32              `json:"DeviceIndex"`
	Speeds      []VibrateSubcommand `json:"Speeds"`
}

// LinearCmdMessage is the wire form of a linear-actuator command.
type LinearCmdMessage struct {
	Id          Id                 `json:"Id"`
	DeviceIndex uint32             `json:"DeviceIndex"`
	Vectors     []VectorSubcommand `json:"Vectors"`
}

// RotateCmdMessage is the wire form of a rotation command.
type RotateCmdMessage struct {
	Id          Id                   `json:"Id"`
	DeviceIndex uint32               `json:"DeviceIndex"`
	Rotations   []RotationSubcommand `json:"Rotations"`
}

// StopDeviceCmdMessage stops a single device.
type StopDeviceCmdMessage struct {
	Id          Id     `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// StopAllDevices stops every connected device.
type StopAllDevices struct {
	Id Id `json:"Id"`
}

// RawWriteCmdMessage writes raw bytes to one endpoint of a device.
type RawWriteCmdMessage struct {
	Id                Id     `json:"Id"`
	DeviceIndex       uint32 `json:"DeviceIndex"`
	Endpoint          string `json:"Endpoint"`
	Data              []byte `json:"Data"`
	WriteWithResponse bool   `json:"WriteWithResponse"`
}

// RawReadCmdMessage reads raw bytes from one endpoint of a device.
type RawReadCmdMessage struct {
	Id          Id     `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
	Length      int    `json:"Length"`
	TimeoutMs   uint32 `json:"TimeoutMs"`
}

// RawReading is the reply to a RawReadCmd.
type RawReading struct {
	Id          Id     `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
	Data        []byte `json:"Data"`
}

// RawSubscribeCmdMessage activates notification delivery for one endpoint.
type RawSubscribeCmdMessage struct {
	Id          Id     `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
}

// RawUnsubscribeCmdMessage deactivates notification delivery for one endpoint.
type RawUnsubscribeCmdMessage struct {
	Id          Id     `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
}

// RawReadingNotification is the unsolicited (Id == NoReply) notification
// carrying a subscribed endpoint's incoming bytes.
type RawReadingNotification struct {
	Id          Id     `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
	Data        []byte `json:"Data"`
}

// Ping keeps a connection alive per spec.md §5's ping-timeout rule.
type Ping struct {
	Id Id `json:"Id"`
}
