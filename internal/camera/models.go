package camera

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Credentials address one camera or NVR management API.
type Credentials struct {
	// Host is "ip[:port]"; a full "http://" or "https://" base URL is also accepted.
	Host     string
	Username string
	Password string
}

// DeviceInfo is the subset of /ISAPI/System/deviceInfo the UI shows.
type DeviceInfo struct {
	XMLName              xml.Name `xml:"DeviceInfo" json:"-"`
	DeviceName           string   `xml:"deviceName" json:"deviceName"`
	DeviceID             string   `xml:"deviceID" json:"deviceID"`
	Model                string   `xml:"model" json:"model"`
	SerialNumber         string   `xml:"serialNumber" json:"serialNumber"`
	MACAddress           string   `xml:"macAddress" json:"macAddress"`
	FirmwareVersion      string   `xml:"firmwareVersion" json:"firmwareVersion"`
	FirmwareReleasedDate string   `xml:"firmwareReleasedDate" json:"firmwareReleasedDate"`
	EncoderVersion       string   `xml:"encoderVersion" json:"encoderVersion"`
	DeviceType           string   `xml:"deviceType" json:"deviceType"`
}

type streamingChannelList struct {
	XMLName  xml.Name           `xml:"StreamingChannelList"`
	Channels []StreamingChannel `xml:"StreamingChannel"`
}

// StreamingChannel is one entry of /ISAPI/Streaming/channels. Ids follow the
// device convention <channel><stream>, e.g. 101 main stream, 102 sub stream.
type StreamingChannel struct {
	ID          string         `xml:"id" json:"id"`
	ChannelName string         `xml:"channelName" json:"channelName"`
	Enabled     bool           `xml:"enabled" json:"enabled"`
	Video       StreamingVideo `xml:"Video" json:"video"`
}

// StreamingVideo describes the encoder settings of a StreamingChannel.
type StreamingVideo struct {
	Enabled               bool   `xml:"enabled" json:"enabled"`
	VideoInputChannelID   string `xml:"videoInputChannelID" json:"videoInputChannelID"`
	VideoCodecType        string `xml:"videoCodecType" json:"videoCodecType"`
	VideoResolutionWidth  string `xml:"videoResolutionWidth" json:"videoResolutionWidth"`
	VideoResolutionHeight string `xml:"videoResolutionHeight" json:"videoResolutionHeight"`
	MaxFrameRate          string `xml:"maxFrameRate" json:"maxFrameRate"`
}

type inputProxyChannelList struct {
	XMLName  xml.Name            `xml:"InputProxyChannelList"`
	Channels []InputProxyChannel `xml:"InputProxyChannel"`
}

// InputProxyChannel is an NVR input slot with its user-assigned name.
type InputProxyChannel struct {
	ID     string              `xml:"id" json:"id"`
	Name   string              `xml:"name" json:"name"`
	Source InputPortDescriptor `xml:"sourceInputPortDescriptor" json:"sourceInputPortDescriptor"`
}

// InputPortDescriptor names the IP camera behind an InputProxyChannel.
type InputPortDescriptor struct {
	ProxyProtocol        string `xml:"proxyProtocol" json:"proxyProtocol"`
	AddressingFormatType string `xml:"addressingFormatType" json:"addressingFormatType"`
	IPAddress            string `xml:"ipAddress" json:"ipAddress"`
	ManagePortNo         string `xml:"managePortNo" json:"managePortNo"`
	SrcInputPort         string `xml:"srcInputPort" json:"srcInputPort"`
	UserName             string `xml:"userName" json:"userName"`
	StreamType           string `xml:"streamType" json:"streamType"`
}

// Older firmware reports <Interface> instead of <NetworkInterface>.
type networkInterfaceList struct {
	XMLName           xml.Name           `xml:"NetworkInterfaceList"`
	NetworkInterfaces []networkInterface `xml:"NetworkInterface"`
	Interfaces        []networkInterface `xml:"Interface"`
}

type networkInterface struct {
	HTTPPort   string `xml:"httpPort"`
	HTTPSPort  string `xml:"httpsPort"`
	RTSPPort   string `xml:"rtspPort"`
	DevicePort string `xml:"devicePort"`
}

// Ports are the service ports of a device's first network interface.
type Ports struct {
	WebPort    int `json:"webPort"`
	HTTPSPort  int `json:"httpsPort"`
	RTSPPort   int `json:"rtspPort"`
	DevicePort int `json:"devicePort"`
}

func (n networkInterface) ports() Ports {
	return Ports{
		WebPort:    portOr(n.HTTPPort, 80),
		HTTPSPort:  portOr(n.HTTPSPort, 443),
		RTSPPort:   portOr(n.RTSPPort, 554),
		DevicePort: portOr(n.DevicePort, 8000),
	}
}

func portOr(s string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 0 {
		return n
	}
	return fallback
}
