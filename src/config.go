package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Read configuration information from a file.
 *
 * Description:	The exchange reads one YAML file at startup.  Anything
 *		missing from the file keeps the built in default so
 *		an empty file (or no file at all) gives a working
 *		8 line exchange.
 *
 *		The configuration is never written back.  Components
 *		get a pointer to the one Config at construction time.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type HookConfig struct {
	BurstTickMs          int  `yaml:"burst_tick_ms" validate:"min=1,max=100"`
	StableMs             int  `yaml:"stable_ms" validate:"min=0,max=5000"`
	StableConsec         int  `yaml:"stable_consec" validate:"min=0,max=255"`
	PulseGlitchMs        int  `yaml:"pulse_glitch_ms" validate:"min=0,max=50"`
	DebounceMs           int  `yaml:"debounce_ms" validate:"min=1,max=500"`
	PulseLowMaxMs        int  `yaml:"pulse_low_max_ms" validate:"gtfield=DebounceMs,max=1000"`
	DigitGapMinMs        int  `yaml:"digit_gap_min_ms" validate:"min=1,max=5000"`
	GlobalPulseTimeoutMs int  `yaml:"global_pulse_timeout_ms" validate:"min=1,max=10000"`
	HighMeansOffHook     bool `yaml:"high_means_off_hook"`

	// 0: one pulse is '1', ten pulses are '0'.
	// 1: one pulse is '0', ten pulses are '9' (Swedish dials).
	PulseAdjustment int `yaml:"pulse_adjustment" validate:"oneof=0 1"`

	// Full rescan of every active line even when no interrupt was seen.
	// 0 disables.
	ScanIntervalMs int `yaml:"scan_interval_ms" validate:"min=0"`
}

type RingConfig struct {
	LengthMs     int `yaml:"length_ms" validate:"min=1"`
	PauseMs      int `yaml:"pause_ms" validate:"min=0"`
	Iterations   int `yaml:"iterations" validate:"min=1,max=100"`
	HalfPeriodMs int `yaml:"half_period_ms" validate:"min=1,max=1000"`
}

type DTMFConfig struct {
	DebounceMs int `yaml:"debounce_ms" validate:"min=0,max=2000"`
	StableMs   int `yaml:"stable_ms" validate:"min=0,max=200"`
	MinToneMs  int `yaml:"min_tone_ms" validate:"min=0,max=200"`
}

// Line timers, armed by the line action layer on entry to a status.
type TimerConfig struct {
	ReadyMs        int `yaml:"ready_ms" validate:"min=1"`
	DialingMs      int `yaml:"dialing_ms" validate:"min=1"`
	RingingMs      int `yaml:"ringing_ms" validate:"min=1"`
	BusyMs         int `yaml:"busy_ms" validate:"min=1"`
	FailMs         int `yaml:"fail_ms" validate:"min=1"`
	DisconnectedMs int `yaml:"disconnected_ms" validate:"min=1"`
	TimeoutMs      int `yaml:"timeout_ms" validate:"min=1"`
}

type I2CConfig struct {
	// Bus name for periph i2creg, e.g. "/dev/i2c-1" or "1".
	// Empty means look up AdapterName, then fall back to the first bus.
	Bus         string `yaml:"bus"`
	AdapterName string `yaml:"adapter_name"`

	Main   uint8 `yaml:"main" validate:"min=32,max=39"`
	MT8816 uint8 `yaml:"mt8816" validate:"min=32,max=39"`
	SLIC1  uint8 `yaml:"slic1" validate:"min=32,max=39"`
	SLIC2  uint8 `yaml:"slic2" validate:"min=32,max=39"`
}

// Host GPIO lines wired to the INT outputs of the expanders.
// A negative offset means the chip is polled without an interrupt line.
type InterruptConfig struct {
	Chip   string `yaml:"chip"`
	Main   int    `yaml:"main" validate:"min=-1"`
	MT8816 int    `yaml:"mt8816" validate:"min=-1"`
	SLIC1  int    `yaml:"slic1" validate:"min=-1"`
	SLIC2  int    `yaml:"slic2" validate:"min=-1"`
}

type ConsoleConfig struct {
	Listen       string `yaml:"listen" validate:"omitempty,hostname_port"`
	Serial       string `yaml:"serial"`
	Baud         int    `yaml:"baud" validate:"omitempty,oneof=1200 2400 4800 9600 19200 38400 57600 115200"`
	Pty          bool   `yaml:"pty"`
	Announce     bool   `yaml:"announce"`
	AnnounceName string `yaml:"announce_name"`
}

type CallLogConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern" validate:"required"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
}

type RealtimeConfig struct {
	Enable     bool `yaml:"enable"`
	Priority   int  `yaml:"priority" validate:"min=1,max=99"`
	LockMemory bool `yaml:"lock_memory"`
}

// Per component verbosity.  0 warnings only, 1 info, 2 debug.
type DebugConfig struct {
	MCP     int `yaml:"mcp" validate:"min=0,max=2"`
	IM      int `yaml:"im" validate:"min=0,max=2"`
	SHK     int `yaml:"shk" validate:"min=0,max=2"`
	DTMF    int `yaml:"dtmf" validate:"min=0,max=2"`
	Ring    int `yaml:"ring" validate:"min=0,max=2"`
	Lines   int `yaml:"lines" validate:"min=0,max=2"`
	Matrix  int `yaml:"matrix" validate:"min=0,max=2"`
	Action  int `yaml:"action" validate:"min=0,max=2"`
	Console int `yaml:"console" validate:"min=0,max=2"`
}

type Config struct {
	ActiveLinesMask uint8    `yaml:"active_lines_mask"`
	PhoneNumbers    []string `yaml:"phone_numbers" validate:"max=8,dive,omitempty,numeric,max=16"`

	EventQueueSize int `yaml:"event_queue_size" validate:"min=1,max=10000"`
	LoopIntervalUs int `yaml:"loop_interval_us" validate:"min=100,max=100000"`

	Hook       HookConfig      `yaml:"hook"`
	Ring       RingConfig      `yaml:"ring"`
	DTMF       DTMFConfig      `yaml:"dtmf"`
	Timers     TimerConfig     `yaml:"timers"`
	I2C        I2CConfig       `yaml:"i2c"`
	Interrupts InterruptConfig `yaml:"interrupts"`
	Console    ConsoleConfig   `yaml:"console"`
	CallLog    CallLogConfig   `yaml:"call_log"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Log        LogConfig       `yaml:"log"`
	Realtime   RealtimeConfig  `yaml:"realtime"`
	Debug      DebugConfig     `yaml:"debug"`
}

/*-------------------------------------------------------------------
 *
 * Name:        DefaultConfig
 *
 * Purpose:     Configuration used when nothing else is specified.
 *
 * Description:	Hook and pulse timing are the values that worked on
 *		the prototype exchange with a selection of rotary phones.
 *
 *--------------------------------------------------------------------*/

func DefaultConfig() *Config {
	return &Config{
		ActiveLinesMask: 0xFF,
		PhoneNumbers:    []string{"100", "101", "102", "103", "104", "105", "106", "107"},
		EventQueueSize:  100,
		LoopIntervalUs:  1000,
		Hook: HookConfig{
			BurstTickMs:          2,
			StableMs:             50,
			StableConsec:         2,
			PulseGlitchMs:        2,
			DebounceMs:           25,
			PulseLowMaxMs:        150,
			DigitGapMinMs:        600,
			GlobalPulseTimeoutMs: 500,
			HighMeansOffHook:     true,
			PulseAdjustment:      0,
			ScanIntervalMs:       1000,
		},
		Ring: RingConfig{
			LengthMs:     1000,
			PauseMs:      4000,
			Iterations:   5,
			HalfPeriodMs: 25,
		},
		DTMF: DTMFConfig{
			DebounceMs: 150,
			StableMs:   10,
			MinToneMs:  20,
		},
		Timers: TimerConfig{
			ReadyMs:        30000,
			DialingMs:      4000,
			RingingMs:      60000,
			BusyMs:         30000,
			FailMs:         30000,
			DisconnectedMs: 30000,
			TimeoutMs:      60000,
		},
		I2C: I2CConfig{
			Main:   0x20,
			MT8816: 0x21,
			SLIC1:  0x22,
			SLIC2:  0x23,
		},
		Interrupts: InterruptConfig{
			Chip:   "gpiochip0",
			Main:   18,
			MT8816: 17,
			SLIC1:  11,
			SLIC2:  14,
		},
		Console: ConsoleConfig{
			Baud: 115200,
		},
		CallLog: CallLogConfig{
			Pattern: "calls-%Y-%m-%d.csv",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Realtime: RealtimeConfig{
			Priority:   50,
			LockMemory: true,
		},
		Debug: DebugConfig{
			SHK: 1,
		},
	}
}

var config_search_locations = []string{
	"vaxel.yaml", // Current working directory
	"/etc/vaxel/vaxel.yaml",
	"/usr/local/etc/vaxel/vaxel.yaml",
}

/*-------------------------------------------------------------------
 *
 * Name:        LoadConfig
 *
 * Purpose:     Read the configuration file.
 *
 * Inputs:	path	- File name.  Empty means try the usual locations
 *			  and use the defaults if none of them exist.
 *
 * Returns:	Validated configuration, or an error wrapping
 *		ErrInvalidConfig when a value is out of range.
 *
 *--------------------------------------------------------------------*/

func LoadConfig(path string) (*Config, error) {
	var cfg = DefaultConfig()

	var fp *os.File
	if path != "" {
		var err error
		fp, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
	} else {
		for _, location := range config_search_locations {
			var err error
			fp, err = os.Open(location)
			if err == nil {
				break
			}
		}
	}

	if fp != nil {
		defer fp.Close()

		var data, readErr = io.ReadAll(fp)
		if readErr != nil {
			return nil, fmt.Errorf("read config %s: %w", fp.Name(), readErr)
		}

		if err := cfg.parse(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", fp.Name(), err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	var unmarshallErr = yaml.Unmarshal(data, c)
	if unmarshallErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, unmarshallErr)
	}

	return nil
}

var config_validator = validator.New()

func (c *Config) Validate() error {
	var err = config_validator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		var parts = make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s fails '%s %s'", fe.Namespace(), fe.Tag(), fe.Param()))
		}

		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(parts, "; "))
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

// YAML renders the configuration in effect, defaults included.
func (c *Config) YAML() (string, error) {
	var out, err = yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}

// PhoneNumber returns the number assigned to a line, "" when none.
func (c *Config) PhoneNumber(line int) string {
	if line < 0 || line >= len(c.PhoneNumbers) {
		return ""
	}

	return c.PhoneNumbers[line]
}

// LineForNumber returns the line whose number equals digits, NoLine if none.
func (c *Config) LineForNumber(digits string) int {
	if digits == "" {
		return NoLine
	}

	for i, n := range c.PhoneNumbers {
		if i < MAX_LINES && n == digits {
			return i
		}
	}

	return NoLine
}

func (c *Config) IsLineActive(line int) bool {
	return validLine(line) && c.ActiveLinesMask&(1<<line) != 0
}

/*-------------------------------------------------------------------
 *
 * Name:        AllowMask
 *
 * Purpose:     Lines that can physically work given which SLIC
 *		expanders answered at boot.
 *
 * Description:	Lines 0-3 are on SLIC1, lines 4-7 on SLIC2.
 *		If neither answered we keep all lines so the rest of
 *		the system still behaves sensibly in a simulation.
 *
 *--------------------------------------------------------------------*/

func AllowMask(slic1, slic2 bool) uint8 {
	switch {
	case slic1 && !slic2:
		return 0x0F
	case slic2 && !slic1:
		return 0xF0
	default:
		return 0xFF
	}
}

func (h HookConfig) burstTick() time.Duration { return ms(h.BurstTickMs) }
