package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Field is a logical telemetry/identity field, independent of vendor paths.
type Field string

const (
	FieldPPPUsername      Field = "pppUsername"
	FieldRXPower          Field = "rxPower"
	FieldTXPower          Field = "txPower"
	FieldUptime           Field = "uptime"
	FieldSerialNumber     Field = "serialNumber"
	FieldSSID             Field = "ssid"
	FieldIPAddress        Field = "ipAddress"
	FieldTags             Field = "tags"
	FieldModel            Field = "model"
	FieldManufacturer     Field = "manufacturer"
	FieldSoftwareVersion  Field = "softwareVersion"
	FieldTemperature      Field = "temperature"
	FieldConnectedClients Field = "connectedClients"
	FieldMACAddress       Field = "macAddress"
)

// TagsPath is where the ACS keeps the free-text tag list.
const TagsPath = "_tags"

// FieldSpec is the ordered candidate path list for one field.
// Paths earlier in the list win; virtual parameters (vendor-normalised by
// ACS provisions) come before raw TR-098/TR-181 data-model paths.
type FieldSpec struct {
	Paths []string `yaml:"paths"`
	// Numeric rejects candidates that do not parse as a finite number
	Numeric bool `yaml:"numeric"`
	// JoinList renders a list value as one ", "-joined string
	JoinList bool `yaml:"joinList"`
}

// Table maps logical fields to their candidate paths.
type Table struct {
	Fields map[Field]FieldSpec `yaml:"fields"`
}

// SummaryFields is the display order used for device summaries.
var SummaryFields = []Field{
	FieldPPPUsername,
	FieldSerialNumber,
	FieldModel,
	FieldManufacturer,
	FieldSoftwareVersion,
	FieldRXPower,
	FieldTXPower,
	FieldTemperature,
	FieldUptime,
	FieldIPAddress,
	FieldMACAddress,
	FieldSSID,
	FieldConnectedClients,
	FieldTags,
}

// DefaultTable returns the built-in path table.
func DefaultTable() *Table {
	return &Table{Fields: map[Field]FieldSpec{
		FieldPPPUsername: {Paths: []string{
			"VirtualParameters.pppoeUsername",
			"VirtualParameters.pppoeUsername2",
			"VirtualParameters.pppUsername",
			"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.Username",
			"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.2.WANPPPConnection.1.Username",
			"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.3.WANPPPConnection.1.Username",
			"Device.PPP.Interface.1.Username",
		}},
		FieldRXPower: {Numeric: true, Paths: []string{
			"VirtualParameters.RXPower",
			"VirtualParameters.redaman",
			"InternetGatewayDevice.WANDevice.1.X_GponInterafceConfig.RXPower",
			"InternetGatewayDevice.WANDevice.1.X_ZTE-COM_WANPONInterfaceConfig.RXPower",
			"InternetGatewayDevice.WANDevice.1.X_CT-COM_EponInterfaceConfig.RXPower",
			"InternetGatewayDevice.WANDevice.1.X_FH_GponInterfaceConfig.RXPower",
			"Device.XPON.Interface.1.Stats.RXPower",
			"Device.Optical.Interface.1.Stats.SignalRxPower",
		}},
		FieldTXPower: {Numeric: true, Paths: []string{
			"VirtualParameters.TXPower",
			"InternetGatewayDevice.WANDevice.1.X_GponInterafceConfig.TXPower",
			"InternetGatewayDevice.WANDevice.1.X_ZTE-COM_WANPONInterfaceConfig.TXPower",
			"InternetGatewayDevice.WANDevice.1.X_CT-COM_EponInterfaceConfig.TXPower",
			"Device.XPON.Interface.1.Stats.TXPower",
			"Device.Optical.Interface.1.Stats.SignalTxPower",
		}},
		FieldUptime: {Paths: []string{
			"VirtualParameters.getdeviceuptime",
			"InternetGatewayDevice.DeviceInfo.UpTime",
			"Device.DeviceInfo.UpTime",
		}},
		FieldSerialNumber: {Paths: []string{
			"VirtualParameters.getSerialNumber",
			"_deviceId._SerialNumber",
			"InternetGatewayDevice.DeviceInfo.SerialNumber",
			"Device.DeviceInfo.SerialNumber",
		}},
		FieldSSID: {Paths: []string{
			"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID",
			"Device.WiFi.SSID.1.SSID",
		}},
		FieldIPAddress: {Paths: []string{
			"VirtualParameters.pppoeIP",
			"VirtualParameters.IPTR069",
			"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.ExternalIPAddress",
			"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANIPConnection.1.ExternalIPAddress",
			"Device.PPP.Interface.1.IPCP.LocalIPAddress",
			"Device.IP.Interface.1.IPv4Address.1.IPAddress",
		}},
		FieldTags: {JoinList: true, Paths: []string{
			TagsPath,
		}},
		FieldModel: {Paths: []string{
			"_deviceId._ProductClass",
			"InternetGatewayDevice.DeviceInfo.ModelName",
			"Device.DeviceInfo.ModelName",
		}},
		FieldManufacturer: {Paths: []string{
			"_deviceId._Manufacturer",
			"InternetGatewayDevice.DeviceInfo.Manufacturer",
			"Device.DeviceInfo.Manufacturer",
		}},
		FieldSoftwareVersion: {Paths: []string{
			"InternetGatewayDevice.DeviceInfo.SoftwareVersion",
			"Device.DeviceInfo.SoftwareVersion",
		}},
		FieldTemperature: {Numeric: true, Paths: []string{
			"VirtualParameters.gettemp",
			"InternetGatewayDevice.WANDevice.1.X_GponInterafceConfig.TransceiverTemperature",
			"Device.XPON.Interface.1.Stats.Temperature",
		}},
		FieldConnectedClients: {Paths: []string{
			"VirtualParameters.activedevices",
			"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.TotalAssociations",
			"Device.WiFi.AccessPoint.1.AssociatedDeviceNumberOfEntries",
		}},
		FieldMACAddress: {Paths: []string{
			"VirtualParameters.pppoeMac",
			"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.MACAddress",
			"Device.Ethernet.Interface.1.MACAddress",
		}},
	}}
}

// Spec returns the spec for field; ok is false for unknown fields.
func (t *Table) Spec(field Field) (FieldSpec, bool) {
	if t == nil || t.Fields == nil {
		return FieldSpec{}, false
	}
	s, ok := t.Fields[field]
	return s, ok
}

// Paths returns the candidate paths for field, nil when unknown.
func (t *Table) Paths(field Field) []string {
	s, _ := t.Spec(field)
	return s.Paths
}

// LoadTable reads a YAML override file on top of the default table.
// Each field present in the file replaces the built-in spec for that field.
//
//	fields:
//	  rxPower:
//	    numeric: true
//	    paths: [VirtualParameters.RXPower, Device.XPON.Interface.1.Stats.RXPower]
func LoadTable(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read path table: %w", err)
	}
	var override Table
	if err := yaml.Unmarshal(b, &override); err != nil {
		return nil, fmt.Errorf("unmarshal path table: %w", err)
	}

	t := DefaultTable()
	for field, spec := range override.Fields {
		if len(spec.Paths) == 0 {
			return nil, fmt.Errorf("path table: field %q has no paths", field)
		}
		t.Fields[field] = spec
	}
	return t, nil
}
