// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	sweepOnly = pflag.Bool("sweep-only", false, "Runs the cloud sync sweep and exits")

	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validProviders = []string{"none", "s3", "arsenal"}
)

// SweepOnly reports whether the process should only run the startup
// cloud sync sweep
func SweepOnly() bool {
	return *sweepOnly
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")

	v.BindEnv("storage.root", "storage_root")
	v.BindEnv("storage.provider", "storage_provider")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.session_ttl_minutes", "upload_session_ttl_minutes")

	v.BindEnv("convert.ffmpeg_path", "convert_ffmpeg_path")
	v.BindEnv("convert.soffice_path", "convert_soffice_path")
	v.BindEnv("convert.cad_enabled", "convert_cad_enabled")
	v.BindEnv("convert.office_pool_max", "convert_office_pool_max")

	v.BindEnv("aws.region", "aws_region")
	v.BindEnv("aws.access_key", "aws_access_key")
	v.BindEnv("aws.secret_access_key", "aws_secret_access_key")
	v.BindEnv("aws.bucket", "aws_bucket")

	v.BindEnv("cloud.endpoint", "cloud_endpoint")
	v.BindEnv("cloud.token", "cloud_token")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)

	v.SetDefault("storage.root", "arsenal")
	v.SetDefault("storage.provider", "none")

	v.SetDefault("upload.max_size", 200)
	v.SetDefault("upload.session_ttl_minutes", 30)

	v.SetDefault("convert.ffmpeg_path", "ffmpeg")
	v.SetDefault("convert.soffice_path", "soffice")
	v.SetDefault("convert.cad_enabled", false)
	v.SetDefault("convert.office_pool_max", 4)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		zap.L().Warn("No config.toml found, running on defaults")
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetString("storage.root") == "" {
		return errors.New("storage.root must not be empty")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if v.GetInt("upload.session_ttl_minutes") <= 0 {
		return errors.New("upload.session_ttl_minutes must be bigger than 0")
	}

	if v.GetInt("convert.office_pool_max") <= 0 {
		return errors.New("convert.office_pool_max must be bigger than 0")
	}

	switch provider := v.GetString("storage.provider"); provider {
	case "s3":
		{
			if v.GetString("aws.region") == "" {
				return errors.New("aws region can't be empty")
			}
			if v.GetString("aws.access_key") == "" {
				return errors.New("aws access key can't be empty")
			}
			if v.GetString("aws.secret_access_key") == "" {
				return errors.New("aws secret access key can't be empty")
			}
			if v.GetString("aws.bucket") == "" {
				return errors.New("aws bucket can't be empty")
			}
		}
	case "arsenal":
		{
			if v.GetString("cloud.endpoint") == "" {
				return errors.New("cloud endpoint can't be empty")
			}
			if v.GetString("cloud.token") == "" {
				return errors.New("cloud token can't be empty")
			}
		}
	case "none":
	default:
		if !slices.Contains(validProviders, provider) {
			return errors.New("invalid storage provider provided")
		}
	}

	// Megabytes in the file, bytes everywhere else
	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}
