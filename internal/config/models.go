package config

import (
	"fmt"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/models"
)

const (
	MaxSupportedServos = 16
	AppEnvBase         = "GORRC"

	DefaultServer       = "127.0.0.1:8080"
	DefaultToken        = ""
	DefaultStunServer   = "stun:fr-turn1.xirsys.com"
	DefaultLogLevel     = "info"
	DefaultLogPretty    = false
	DefaultListen       = ":8080"
	DefaultNetInterface = "wlan0"

	// Operator cadences
	DefaultPollInterval     = 25 * time.Millisecond
	DefaultProbeInterval    = 1 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultStatsInterval    = 5 * time.Second
	DefaultReconnectMin     = 500 * time.Millisecond
	DefaultReconnectMax     = 10 * time.Second

	// Input device
	DefaultJoystickID         = 0
	DefaultForwardTriggerAxis = 5
	DefaultReverseTriggerAxis = 2

	// Deadzones, steering stick is noisier at rest than the other axes
	DefaultSteerDeadzone = 0.075
	DefaultAxisDeadzone  = 0.05

	// Encoder profile
	DefaultSteerAxis     = models.AxisLeftStickX
	DefaultForwardButton = models.ButtonForwardTrigger
	DefaultReverseButton = models.ButtonReverseTrigger
	DefaultReverseMargin = 0.25

	DefaultDataChannelLabel = "controllerInput"
	DefaultReceiveVideo     = true

	// Vehicle
	DefaultInputTimeout  = 200 * time.Millisecond
	DefaultCommandDriver = "pca9685"
	DefaultAddress       = 0x40
	DefaultI2CDevice     = "/dev/i2c-1"
	DefaultMaxPulse      = 2250
	DefaultMinPulse      = 750
	DefaultInverted      = false
	DefaultOffset        = 0

	// Pulse ranges around 1500us neutral
	DefaultSteerMinPulse = 1100
	DefaultSteerMaxPulse = 1900
	DefaultEscMinPulse   = 1200
	DefaultEscMaxPulse   = 1800

	// Default Camera Options
	DefaultCamEnable      = false
	DefaultWidth          = "640"
	DefaultHeight         = "480"
	DefaultFPS            = "30"
	DefaultVerticalFlip   = false
	DefaultHorizontalFlip = false
	DefaultProfile        = "high"
	DefaultMode           = ""
)

type OperatorConfig struct {
	Log       LogConfig
	Signal    SignalClientConfig
	Session   SessionConfig
	Sampler   SamplerConfig
	Encoder   EncoderConfig
	Probe     ProbeConfig
	LinkStats LinkStatsConfig
}

type VehicleConfig struct {
	Log          LogConfig
	Signal       SignalClientConfig
	Session      SessionConfig
	Command      CommandConfig
	Cam          CamConfig
	LinkStats    LinkStatsConfig
	InputTimeout time.Duration
}

type SignalServerConfig struct {
	Log    LogConfig
	Listen string
	Token  string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type SignalClientConfig struct {
	Server       string
	Token        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (c SignalServerConfig) String() string {
	return fmt.Sprintf("{Log:%+v Listen:%s Token:%s}", c.Log, c.Listen, redact(c.Token))
}

// String hides the token so the config can be logged.
func (c SignalClientConfig) String() string {
	return fmt.Sprintf("{Server:%s Token:%s ReconnectMin:%s ReconnectMax:%s}", c.Server, redact(c.Token), c.ReconnectMin, c.ReconnectMax)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}

type SessionConfig struct {
	StunServers      []string
	DataChannelLabel string
	ReceiveVideo     bool
	HandshakeTimeout time.Duration
}

type SamplerConfig struct {
	PollInterval       time.Duration
	JoystickID         int
	ForwardTriggerAxis int
	ReverseTriggerAxis int
	ForwardButton      int
	ReverseButton      int
	SteerAxis          int
	SteerDeadzone      float64
	AxisDeadzone       float64
}

type EncoderConfig struct {
	SteerAxis     int
	ForwardButton int
	ReverseButton int
	SteerDeadzone float64
	ReverseMargin float64
}

type ProbeConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

type LinkStatsConfig struct {
	Interface string
	Interval  time.Duration
}

type CommandConfig struct {
	CommandDriver string
	Address       byte
	I2CDevice     string
	ServoCfgs     []ServoConfig
}

type ServoConfig struct {
	Name     string
	Inverted bool
	Channel  int
	MaxPulse float64
	MinPulse float64
	Offset   int
}

type CamConfig struct {
	Enabled        bool
	Width          string
	Height         string
	Fps            string
	HorizontalFlip bool
	VerticalFlip   bool
	Profile        string
	Mode           string
}
