package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()
	v.SetEnvPrefix(AppEnvBase)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// BindFlag lets a command line flag override the env value for key.
func BindFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	err := v.BindPFlag(key, flag)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("flag not bound")
	}
}

func GetOperatorConfig() OperatorConfig {
	cfg := OperatorConfig{
		Log:       GetLogConfig(),
		Signal:    GetSignalClientConfig(),
		Session:   GetSessionConfig(),
		Sampler:   GetSamplerConfig(),
		Encoder:   GetEncoderConfig(),
		Probe:     GetProbeConfig(),
		LinkStats: GetLinkStatsConfig(),
	}
	log.Debug().Msgf("operator config: %+v", cfg)
	return cfg
}

func GetVehicleConfig() VehicleConfig {
	cfg := VehicleConfig{
		Log:          GetLogConfig(),
		Signal:       GetSignalClientConfig(),
		Session:      GetSessionConfig(),
		Command:      GetCommandConfig(),
		Cam:          GetCamConfig(),
		LinkStats:    GetLinkStatsConfig(),
		InputTimeout: GetDurationEnv("INPUT_TIMEOUT", DefaultInputTimeout),
	}
	log.Debug().Msgf("vehicle config: %+v", cfg)
	return cfg
}

func GetSignalServerConfig() SignalServerConfig {
	return SignalServerConfig{
		Log:    GetLogConfig(),
		Listen: GetStringEnv("LISTEN", DefaultListen),
		Token:  GetStringEnv("TOKEN", DefaultToken),
	}
}

func GetLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(GetStringEnv("LOG_LEVEL", DefaultLogLevel)),
		Pretty: GetBoolEnv("LOG_PRETTY", DefaultLogPretty),
	}
}

func GetSignalClientConfig() SignalClientConfig {
	return SignalClientConfig{
		Server:       GetStringEnv("SERVER", DefaultServer),
		Token:        GetStringEnv("TOKEN", DefaultToken),
		ReconnectMin: GetDurationEnv("RECONNECT_MIN", DefaultReconnectMin),
		ReconnectMax: GetDurationEnv("RECONNECT_MAX", DefaultReconnectMax),
	}
}

func GetSessionConfig() SessionConfig {
	stun := GetStringEnv("STUN_SERVERS", DefaultStunServer)
	servers := make([]string, 0, 2)
	for _, s := range strings.Split(stun, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return SessionConfig{
		StunServers:      servers,
		DataChannelLabel: GetStringEnv("DATA_CHANNEL", DefaultDataChannelLabel),
		ReceiveVideo:     GetBoolEnv("RECEIVE_VIDEO", DefaultReceiveVideo),
		HandshakeTimeout: GetDurationEnv("HANDSHAKE_TIMEOUT", DefaultHandshakeTimeout),
	}
}

func GetSamplerConfig() SamplerConfig {
	return SamplerConfig{
		PollInterval:       GetDurationEnv("POLL_INTERVAL", DefaultPollInterval),
		JoystickID:         GetIntEnv("JOYSTICK_ID", DefaultJoystickID),
		ForwardTriggerAxis: GetIntEnv("FORWARD_TRIGGER_AXIS", DefaultForwardTriggerAxis),
		ReverseTriggerAxis: GetIntEnv("REVERSE_TRIGGER_AXIS", DefaultReverseTriggerAxis),
		ForwardButton:      GetIntEnv("FORWARD_BUTTON", DefaultForwardButton),
		ReverseButton:      GetIntEnv("REVERSE_BUTTON", DefaultReverseButton),
		SteerAxis:          GetIntEnv("STEER_AXIS", DefaultSteerAxis),
		SteerDeadzone:      GetFloatEnv("STEER_DEADZONE", DefaultSteerDeadzone),
		AxisDeadzone:       GetFloatEnv("AXIS_DEADZONE", DefaultAxisDeadzone),
	}
}

func GetEncoderConfig() EncoderConfig {
	return EncoderConfig{
		SteerAxis:     GetIntEnv("STEER_AXIS", DefaultSteerAxis),
		ForwardButton: GetIntEnv("FORWARD_BUTTON", DefaultForwardButton),
		ReverseButton: GetIntEnv("REVERSE_BUTTON", DefaultReverseButton),
		SteerDeadzone: GetFloatEnv("STEER_DEADZONE", DefaultSteerDeadzone),
		ReverseMargin: GetFloatEnv("REVERSE_MARGIN", DefaultReverseMargin),
	}
}

func GetProbeConfig() ProbeConfig {
	return ProbeConfig{
		Interval: GetDurationEnv("PROBE_INTERVAL", DefaultProbeInterval),
		Timeout:  GetDurationEnv("PROBE_TIMEOUT", DefaultProbeTimeout),
	}
}

func GetLinkStatsConfig() LinkStatsConfig {
	return LinkStatsConfig{
		Interface: GetStringEnv("NET_INTERFACE", DefaultNetInterface),
		Interval:  GetDurationEnv("STATS_INTERVAL", DefaultStatsInterval),
	}
}

func GetCommandConfig() CommandConfig {
	commandCfg := CommandConfig{
		CommandDriver: strings.ToLower(GetStringEnv("SERVODRIVER", DefaultCommandDriver)),
		Address:       DefaultAddress,
		I2CDevice:     GetStringEnv("I2CDEVICE", DefaultI2CDevice),
		ServoCfgs:     make([]ServoConfig, 0, MaxSupportedServos),
	}

	for i := 0; i < MaxSupportedServos; i++ {
		envPrefix := fmt.Sprintf("SERVO%d_", i)
		name, minPulse, maxPulse := defaultServo(i)
		servoCfg := ServoConfig{
			Name:     GetStringEnv(envPrefix+"NAME", name),
			Channel:  GetIntEnv(envPrefix+"CHANNEL", i),
			MaxPulse: float64(GetIntEnv(envPrefix+"MAXPULSE", maxPulse)),
			MinPulse: float64(GetIntEnv(envPrefix+"MINPULSE", minPulse)),
			Inverted: GetBoolEnv(envPrefix+"INVERTED", DefaultInverted),
			Offset:   GetIntEnv(envPrefix+"MIDOFFSET", DefaultOffset),
		}

		if servoCfg.Name != "" {
			log.Debug().Str("servo", servoCfg.Name).Int("channel", servoCfg.Channel).Msg("found servo config")
			commandCfg.ServoCfgs = append(commandCfg.ServoCfgs, servoCfg)
		}
	}
	return commandCfg
}

// defaultServo wires steering to channel 0 and the esc to channel 1 out of the box.
func defaultServo(i int) (string, int, int) {
	switch i {
	case 0:
		return "steer", DefaultSteerMinPulse, DefaultSteerMaxPulse
	case 1:
		return "esc", DefaultEscMinPulse, DefaultEscMaxPulse
	default:
		return "", DefaultMinPulse, DefaultMaxPulse
	}
}

func GetCamConfig() CamConfig {
	camPrefix := "CAM_"
	return CamConfig{
		Enabled:        GetBoolEnv(camPrefix+"ENABLED", DefaultCamEnable),
		Width:          GetStringEnv(camPrefix+"WIDTH", DefaultWidth),
		Height:         GetStringEnv(camPrefix+"HEIGHT", DefaultHeight),
		Fps:            GetStringEnv(camPrefix+"FPS", DefaultFPS),
		VerticalFlip:   GetBoolEnv(camPrefix+"VFLIP", DefaultVerticalFlip),
		HorizontalFlip: GetBoolEnv(camPrefix+"HFLIP", DefaultHorizontalFlip),
		Profile:        GetStringEnv(camPrefix+"PROFILE", DefaultProfile),
		Mode:           GetStringEnv(camPrefix+"MODE", DefaultMode),
	}
}

func GetIntEnv(env string, defaultValue int) int {
	if !v.IsSet(env) {
		return defaultValue
	}
	value, err := cast.ToIntE(trim(v.Get(env)))
	if err != nil {
		log.Warn().Err(err).Str("env", env).Msg("not parsed, using default")
		return defaultValue
	}
	return value
}

func GetBoolEnv(env string, defaultValue bool) bool {
	if !v.IsSet(env) {
		return defaultValue
	}
	value, err := cast.ToBoolE(trim(v.Get(env)))
	if err != nil {
		log.Warn().Err(err).Str("env", env).Msg("not parsed, using default")
		return defaultValue
	}
	return value
}

func GetStringEnv(env string, defaultValue string) string {
	if !v.IsSet(env) {
		return defaultValue
	}
	value, err := cast.ToStringE(trim(v.Get(env)))
	if err != nil {
		log.Warn().Err(err).Str("env", env).Msg("not parsed, using default")
		return defaultValue
	}
	return value
}

func GetFloatEnv(env string, defaultValue float64) float64 {
	if !v.IsSet(env) {
		return defaultValue
	}
	value, err := cast.ToFloat64E(trim(v.Get(env)))
	if err != nil {
		log.Warn().Err(err).Str("env", env).Msg("not parsed, using default")
		return defaultValue
	}
	return value
}

// GetDurationEnv accepts a bare integer as milliseconds or any time.ParseDuration string.
func GetDurationEnv(env string, defaultValue time.Duration) time.Duration {
	if !v.IsSet(env) {
		return defaultValue
	}
	raw := trim(v.Get(env))
	if s, ok := raw.(string); ok {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	value, err := cast.ToDurationE(raw)
	if err != nil {
		log.Warn().Err(err).Str("env", env).Msg("not parsed, using default")
		return defaultValue
	}
	return value
}

func trim(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(strings.Trim(s, "\r"))
	}
	return value
}
