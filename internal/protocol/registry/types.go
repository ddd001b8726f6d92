package registry

// MessageType is the logical message kind, independent of its wire code.
type MessageType uint16

// Battery
const (
	IsBatteryCharging MessageType = iota
	GetBatteryCurrent
)

// Information
const (
	GetMtu MessageType = iota + 0x100
	GetID
	GetName
	SetName
	GetType
	SetType
	GetCurrentTime
	SetCurrentTime
)

// Sensor configuration
const (
	GetSensorConfiguration MessageType = iota + 0x200
	SetSensorConfiguration
)

// Sensor data
const (
	GetPressurePositions MessageType = iota + 0x300
	GetSensorScalars
	SensorData
)

// Vibration
const (
	GetVibrationLocations MessageType = iota + 0x400
	TriggerVibration
)

// File transfer
const (
	GetFileTypes MessageType = iota + 0x500
	MaxFileLength
	GetFileType
	SetFileType
	GetFileLength
	SetFileLength
	GetFileChecksum
	SetFileChecksum
	SetFileTransferCommand
	FileTransferStatus
	GetFileBlock
	SetFileBlock
	FileBytesTransferred
)

// TfLite
const (
	GetTfliteName MessageType = iota + 0x600
	SetTfliteName
	GetTfliteTask
	SetTfliteTask
	GetTfliteSampleRate
	SetTfliteSampleRate
	GetTfliteSensorTypes
	SetTfliteSensorTypes
	IsTfliteReady
	GetTfliteCaptureDelay
	SetTfliteCaptureDelay
	GetTfliteThreshold
	SetTfliteThreshold
	GetTfliteInferencingEnabled
	SetTfliteInferencingEnabled
	TfliteInference
)

// WiFi
const (
	IsWifiAvailable MessageType = iota + 0x700
	GetWifiSSID
	SetWifiSSID
	GetWifiPassword
	SetWifiPassword
	GetWifiConnectionEnabled
	SetWifiConnectionEnabled
	IsWifiConnected
	IPAddress
	IsWifiSecure
)

// Camera
const (
	CameraStatus MessageType = iota + 0x800
	CameraCommand
	GetCameraConfiguration
	SetCameraConfiguration
	CameraData
)

var typeNames = map[MessageType]string{
	IsBatteryCharging: "isBatteryCharging",
	GetBatteryCurrent: "getBatteryCurrent",

	GetMtu:         "getMtu",
	GetID:          "getId",
	GetName:        "getName",
	SetName:        "setName",
	GetType:        "getType",
	SetType:        "setType",
	GetCurrentTime: "getCurrentTime",
	SetCurrentTime: "setCurrentTime",

	GetSensorConfiguration: "getSensorConfiguration",
	SetSensorConfiguration: "setSensorConfiguration",

	GetPressurePositions: "getPressurePositions",
	GetSensorScalars:     "getSensorScalars",
	SensorData:           "sensorData",

	GetVibrationLocations: "getVibrationLocations",
	TriggerVibration:      "triggerVibration",

	GetFileTypes:           "getFileTypes",
	MaxFileLength:          "maxFileLength",
	GetFileType:            "getFileType",
	SetFileType:            "setFileType",
	GetFileLength:          "getFileLength",
	SetFileLength:          "setFileLength",
	GetFileChecksum:        "getFileChecksum",
	SetFileChecksum:        "setFileChecksum",
	SetFileTransferCommand: "setFileTransferCommand",
	FileTransferStatus:     "fileTransferStatus",
	GetFileBlock:           "getFileBlock",
	SetFileBlock:           "setFileBlock",
	FileBytesTransferred:   "fileBytesTransferred",

	GetTfliteName:               "getTfliteName",
	SetTfliteName:               "setTfliteName",
	GetTfliteTask:               "getTfliteTask",
	SetTfliteTask:               "setTfliteTask",
	GetTfliteSampleRate:         "getTfliteSampleRate",
	SetTfliteSampleRate:         "setTfliteSampleRate",
	GetTfliteSensorTypes:        "getTfliteSensorTypes",
	SetTfliteSensorTypes:        "setTfliteSensorTypes",
	IsTfliteReady:               "tfliteIsReady",
	GetTfliteCaptureDelay:       "getTfliteCaptureDelay",
	SetTfliteCaptureDelay:       "setTfliteCaptureDelay",
	GetTfliteThreshold:          "getTfliteThreshold",
	SetTfliteThreshold:          "setTfliteThreshold",
	GetTfliteInferencingEnabled: "getTfliteInferencingEnabled",
	SetTfliteInferencingEnabled: "setTfliteInferencingEnabled",
	TfliteInference:             "tfliteInference",

	IsWifiAvailable:          "isWifiAvailable",
	GetWifiSSID:              "getWifiSSID",
	SetWifiSSID:              "setWifiSSID",
	GetWifiPassword:          "getWifiPassword",
	SetWifiPassword:          "setWifiPassword",
	GetWifiConnectionEnabled: "getWifiConnectionEnabled",
	SetWifiConnectionEnabled: "setWifiConnectionEnabled",
	IsWifiConnected:          "isWifiConnected",
	IPAddress:                "ipAddress",
	IsWifiSecure:             "isWifiSecure",

	CameraStatus:           "cameraStatus",
	CameraCommand:          "cameraCommand",
	GetCameraConfiguration: "getCameraConfiguration",
	SetCameraConfiguration: "setCameraConfiguration",
	CameraData:             "cameraData",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// SubProtocol is one named group of message types contributing to the
// shared code space in declaration order.
type SubProtocol struct {
	Name  string
	Types []MessageType
}

// Standard sub-protocols in wire order. Codes are assigned by walking this
// list, so reordering it renumbers every message that follows.
var (
	Battery = SubProtocol{Name: "battery", Types: []MessageType{
		IsBatteryCharging, GetBatteryCurrent,
	}}
	Information = SubProtocol{Name: "information", Types: []MessageType{
		GetMtu, GetID, GetName, SetName, GetType, SetType, GetCurrentTime, SetCurrentTime,
	}}
	SensorConfiguration = SubProtocol{Name: "sensorConfiguration", Types: []MessageType{
		GetSensorConfiguration, SetSensorConfiguration,
	}}
	SensorDataProtocol = SubProtocol{Name: "sensorData", Types: []MessageType{
		GetPressurePositions, GetSensorScalars, SensorData,
	}}
	Vibration = SubProtocol{Name: "vibration", Types: []MessageType{
		GetVibrationLocations, TriggerVibration,
	}}
	FileTransfer = SubProtocol{Name: "fileTransfer", Types: []MessageType{
		GetFileTypes, MaxFileLength, GetFileType, SetFileType, GetFileLength, SetFileLength,
		GetFileChecksum, SetFileChecksum, SetFileTransferCommand, FileTransferStatus,
		GetFileBlock, SetFileBlock, FileBytesTransferred,
	}}
	TfLite = SubProtocol{Name: "tflite", Types: []MessageType{
		GetTfliteName, SetTfliteName, GetTfliteTask, SetTfliteTask,
		GetTfliteSampleRate, SetTfliteSampleRate, GetTfliteSensorTypes, SetTfliteSensorTypes,
		IsTfliteReady, GetTfliteCaptureDelay, SetTfliteCaptureDelay,
		GetTfliteThreshold, SetTfliteThreshold,
		GetTfliteInferencingEnabled, SetTfliteInferencingEnabled, TfliteInference,
	}}
	WiFi = SubProtocol{Name: "wifi", Types: []MessageType{
		IsWifiAvailable, GetWifiSSID, SetWifiSSID, GetWifiPassword, SetWifiPassword,
		GetWifiConnectionEnabled, SetWifiConnectionEnabled, IsWifiConnected, IPAddress, IsWifiSecure,
	}}
	Camera = SubProtocol{Name: "camera", Types: []MessageType{
		CameraStatus, CameraCommand, GetCameraConfiguration, SetCameraConfiguration, CameraData,
	}}
)

// StandardProtocols returns the sub-protocols in their fixed wire order.
func StandardProtocols() []SubProtocol {
	return []SubProtocol{
		Battery,
		Information,
		SensorConfiguration,
		SensorDataProtocol,
		Vibration,
		FileTransfer,
		TfLite,
		WiFi,
		Camera,
	}
}
