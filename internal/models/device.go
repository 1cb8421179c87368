package models

// DeviceDescriptor identifies the headset on the USB bus
type DeviceDescriptor struct {
	VendorID    uint16 `json:"vendor_id"`
	ProductID   uint16 `json:"product_id"`
	InterfaceID int    `json:"interface_id"`
	EndpointIn  int    `json:"endpoint_in"` // Bulk IN endpoint address, e.g. 0x81
}

// ControlCommand is an external control request received over MQTT or HTTP
type ControlCommand struct {
	Command string `json:"command"` // "shutdown"
	Source  string `json:"source"`
}

// PacketPayload is the JSON form of a raw packet relayed over MQTT by a
// remote acquisition host. Data is base64 in JSON.
type PacketPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Data      []byte `json:"data"`
}
