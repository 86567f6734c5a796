package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor
	I2CBus     string
	MPUI2CAddr uint16

	// Display
	DisplayI2CBus  string
	DisplayEnabled bool

	// Buttons and indicators (periph pin names, e.g. "GPIO5")
	ButtonAPin  string
	ButtonBPin  string
	LEDErrorPin string
	LEDOKPin    string

	// Timing
	DebounceMS       int // milliseconds
	LoopIntervalMS   int // milliseconds
	SampleIntervalMS int // milliseconds

	// Storage
	StorageMountPoint string
	StorageDevice     string // block device; empty = directory-backed card
	StorageFSType     string
	LogFileName       string
	StrictMountState  bool // flip mount state only on success

	// Command stream
	SerialPort     string // empty = stdin/stdout
	SerialBaudRate int

	// MQTT
	MQTTBroker    string // empty = disabled
	MQTTClientID  string
	TopicStatus   string
	TopicSamples  string
	TopicCommands string

	// Web console
	WebServerPort int // 0 = disabled

	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: RWMutex protecting concurrent access.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		I2CBus:           "",
		MPUI2CAddr:       0x68,
		DisplayI2CBus:    "",
		DisplayEnabled:   true,
		DebounceMS:       500,
		LoopIntervalMS:   500,
		SampleIntervalMS: 100,
		StorageFSType:    "vfat",
		LogFileName:      "mpu_data1.csv",
		SerialBaudRate:   115200,
		MQTTClientID:     "mpu-datalogger",
		TopicStatus:      "datalogger/status",
		TopicSamples:     "datalogger/samples",
		TopicCommands:    "datalogger/cmd",
		LogLevel:         "info",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Sensor
	case "I2C_BUS":
		c.I2CBus = value
	case "MPU_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MPU_I2C_ADDR %q: %w", value, err)
		}
		if addr != 0x68 && addr != 0x69 {
			return fmt.Errorf("MPU_I2C_ADDR must be 0x68 or 0x69, got 0x%X", addr)
		}
		c.MPUI2CAddr = uint16(addr)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_ENABLED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = b

	// Buttons and indicators
	case "BUTTON_A_PIN":
		c.ButtonAPin = value
	case "BUTTON_B_PIN":
		c.ButtonBPin = value
	case "LED_ERROR_PIN":
		c.LEDErrorPin = value
	case "LED_OK_PIN":
		c.LEDOKPin = value

	// Timing
	case "DEBOUNCE_MS":
		ms, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.DebounceMS = ms
	case "LOOP_INTERVAL_MS":
		ms, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.LoopIntervalMS = ms
	case "SAMPLE_INTERVAL_MS":
		ms, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.SampleIntervalMS = ms

	// Storage
	case "STORAGE_MOUNT_POINT":
		c.StorageMountPoint = value
	case "STORAGE_DEVICE":
		c.StorageDevice = value
	case "STORAGE_FSTYPE":
		c.StorageFSType = value
	case "LOG_FILE_NAME":
		if strings.ContainsAny(value, `/\`) {
			return fmt.Errorf("LOG_FILE_NAME must be a plain file name, got %q", value)
		}
		c.LogFileName = value
	case "STRICT_MOUNT_STATE":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid STRICT_MOUNT_STATE %q: %w", value, err)
		}
		c.StrictMountState = b

	// Command stream
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_SAMPLES":
		c.TopicSamples = value
	case "TOPIC_COMMANDS":
		c.TopicCommands = value

	// Web console
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", port)
		}
		c.WebServerPort = port

	case "LOG_LEVEL":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", value)
		}
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseMillis(key, value string) (int, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, ms)
	}
	return ms, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.StorageMountPoint == "" {
		return fmt.Errorf("STORAGE_MOUNT_POINT is required")
	}
	if (c.LEDErrorPin == "") != (c.LEDOKPin == "") {
		return fmt.Errorf("LED_ERROR_PIN and LED_OK_PIN must be set together")
	}
	if c.LogFileName == "" {
		return fmt.Errorf("LOG_FILE_NAME is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
