package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved agent configuration.
type Settings struct {
	ServerWsURL   string
	ServerAPIURL  string
	Email         string
	SessionCookie string

	ICEServers []string

	ScreenWidth  int
	ScreenHeight int

	WpmMin         int
	WpmMax         int
	TypingMistakes bool

	AutoExecute        bool
	InterStepDelay     time.Duration
	OptimisticComplete bool

	PingInterval   time.Duration
	StatusInterval time.Duration

	CaptureFPS int

	LogLevel  string
	LogFormat string
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.ws_url", "ws://localhost:8000/rtc/signal")
	v.SetDefault("server.api_url", "http://localhost:8000")
	v.SetDefault("auth.email", "")
	v.SetDefault("auth.session_cookie", "")
	v.SetDefault("ice.servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("screen.width", 1920)
	v.SetDefault("screen.height", 1080)
	v.SetDefault("typing.wpm_min", 40)
	v.SetDefault("typing.wpm_max", 80)
	v.SetDefault("typing.mistakes", false)
	v.SetDefault("executor.auto_execute", true)
	v.SetDefault("executor.inter_step_delay_ms", 100)
	v.SetDefault("executor.optimistic_complete", false)
	v.SetDefault("keepalive.ping_interval", "30s")
	v.SetDefault("keepalive.status_interval", "2s")
	v.SetDefault("capture.fps", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("SCRY")
	v.AutomaticEnv()
	v.BindEnv("server.ws_url", "SCRY_WS_URL")
	v.BindEnv("server.api_url", "SCRY_API_URL")
	v.BindEnv("auth.email", "SCRY_EMAIL")
	v.BindEnv("auth.session_cookie", "SCRY_SESSION_COOKIE")
	v.BindEnv("log.level", "SCRY_LOG_LEVEL")
	v.BindEnv("log.format", "SCRY_LOG_FORMAT")

	v.SetConfigName("scry")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.scry", "/etc/scry"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	return v
}

// Load reads the configuration from the usual search paths, or from an
// explicit file when path is non-empty. A missing config file is not an
// error; defaults and environment bindings still apply.
func Load(path string) (Settings, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Settings{}, fmt.Errorf("reading config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Settings, error) {
	s := Settings{
		ServerWsURL:        v.GetString("server.ws_url"),
		ServerAPIURL:       v.GetString("server.api_url"),
		Email:              v.GetString("auth.email"),
		SessionCookie:      v.GetString("auth.session_cookie"),
		ICEServers:         v.GetStringSlice("ice.servers"),
		ScreenWidth:        v.GetInt("screen.width"),
		ScreenHeight:       v.GetInt("screen.height"),
		WpmMin:             v.GetInt("typing.wpm_min"),
		WpmMax:             v.GetInt("typing.wpm_max"),
		TypingMistakes:     v.GetBool("typing.mistakes"),
		AutoExecute:        v.GetBool("executor.auto_execute"),
		InterStepDelay:     time.Duration(v.GetInt("executor.inter_step_delay_ms")) * time.Millisecond,
		OptimisticComplete: v.GetBool("executor.optimistic_complete"),
		PingInterval:       v.GetDuration("keepalive.ping_interval"),
		StatusInterval:     v.GetDuration("keepalive.status_interval"),
		CaptureFPS:         v.GetInt("capture.fps"),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          v.GetString("log.format"),
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.ScreenWidth <= 0 || s.ScreenHeight <= 0 {
		return fmt.Errorf("screen dimensions must be positive, got %dx%d", s.ScreenWidth, s.ScreenHeight)
	}
	if s.WpmMin <= 0 || s.WpmMax < s.WpmMin {
		return fmt.Errorf("typing wpm range invalid: [%d, %d]", s.WpmMin, s.WpmMax)
	}
	if s.CaptureFPS <= 0 {
		return fmt.Errorf("capture fps must be positive, got %d", s.CaptureFPS)
	}
	if s.PingInterval <= 0 || s.StatusInterval <= 0 {
		return fmt.Errorf("keepalive intervals must be positive")
	}
	return nil
}
