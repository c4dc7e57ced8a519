package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSourceDir = "/mnt/GDrive_personal/kotel_exports"
	defaultLocalDir  = "./data"
	defaultChartPath = "./exports/home_temp.html"

	// MirrorDisabled as CHART_MIRROR_PATH turns the shared-drive copy off.
	MirrorDisabled = "-"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// SourceDir is the shared drive export folder; LocalDir is the local cache of it.
	SourceDir string
	LocalDir  string

	// ChartPath is where the HTML chart is written. ChartMirrorPath receives a
	// copy of it; empty means the mirror is disabled.
	ChartPath       string
	ChartMirrorPath string
	ChartTitle      string
	ChartAssetsHost string

	ScheduleInterval time.Duration
	SkipInvalidFiles bool

	// SQLitePath enables the reading archive when set.
	SQLitePath string

	// MQTTBroker enables publishing of the newest reading when set.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	HTTPAddr string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	sourceDir := strings.TrimSpace(os.Getenv("SOURCE_DIR"))
	if sourceDir == "" {
		sourceDir = defaultSourceDir
	}
	sourceDir = filepath.Clean(sourceDir)

	localDir := strings.TrimSpace(os.Getenv("LOCAL_DIR"))
	if localDir == "" {
		localDir = defaultLocalDir
	}
	localDir = filepath.Clean(localDir)

	chartPath := strings.TrimSpace(os.Getenv("CHART_PATH"))
	if chartPath == "" {
		chartPath = defaultChartPath
	}
	chartPath = filepath.Clean(chartPath)

	mirrorPath := resolveMirrorPath(strings.TrimSpace(os.Getenv("CHART_MIRROR_PATH")), sourceDir, chartPath)
	if mirrorPath != "" && mirrorPath == chartPath {
		return Config{}, fmt.Errorf("CHART_MIRROR_PATH %q must differ from CHART_PATH", mirrorPath)
	}

	chartTitle := strings.TrimSpace(os.Getenv("CHART_TITLE"))
	if chartTitle == "" {
		chartTitle = "Home temperature"
	}

	intervalStr := strings.TrimSpace(os.Getenv("SCHEDULE_INTERVAL"))
	if intervalStr == "" {
		intervalStr = "10m"
	}
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SCHEDULE_INTERVAL %q: %w", intervalStr, err)
	}
	if interval <= 0 {
		return Config{}, fmt.Errorf("SCHEDULE_INTERVAL must be positive, got %v", interval)
	}

	skipInvalid := false
	if s := strings.TrimSpace(os.Getenv("SKIP_INVALID_FILES")); s != "" {
		skipInvalid, err = strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SKIP_INVALID_FILES %q: %w", s, err)
		}
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "thermochart"
	}

	mqttTopic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if mqttTopic == "" {
		mqttTopic = "thermochart/latest"
	}

	return Config{
		AppEnv:           appEnv,
		LogLevel:         level,
		SourceDir:        sourceDir,
		LocalDir:         localDir,
		ChartPath:        chartPath,
		ChartMirrorPath:  mirrorPath,
		ChartTitle:       chartTitle,
		ChartAssetsHost:  strings.TrimSpace(os.Getenv("CHART_ASSETS_HOST")),
		ScheduleInterval: interval,
		SkipInvalidFiles: skipInvalid,
		SQLitePath:       strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		MQTTBroker:       strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:         mqttPort,
		MQTTClientID:     mqttClientID,
		MQTTTopic:        mqttTopic,
		HTTPAddr:         strings.TrimSpace(os.Getenv("HTTP_ADDR")),
	}, nil
}

// resolveMirrorPath defaults the mirror to the shared drive root, i.e. the
// parent of the export folder, under the chart's file name.
func resolveMirrorPath(raw, sourceDir, chartPath string) string {
	switch raw {
	case MirrorDisabled:
		return ""
	case "":
		return filepath.Join(filepath.Dir(sourceDir), filepath.Base(chartPath))
	default:
		return filepath.Clean(raw)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
