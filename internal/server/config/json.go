package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/filedrop/filedrop/internal/flagx"
	"github.com/filedrop/filedrop/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO (Data Transfer Object) used only for
// reading JSON configuration files. After unmarshalling, its fields are
// copied into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr     string         `json:"endpoint_addr"`
	DatabaseDSN      string         `json:"database_dsn"`
	SecretKey        string         `json:"secret_key"`
	TokenValidity    timex.Duration `json:"token_validity"`
	DataDir          string         `json:"data_dir"`
	BlobBackend      string         `json:"blob_backend"`
	S3AccessKey      string         `json:"s3_access_key"`
	S3SecretKey      string         `json:"s3_secret_key"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	MaxFileSize      int64          `json:"max_file_size"`
	MaxFilesPerBatch int            `json:"max_files_per_batch"`
	MinUsernameLen   int            `json:"min_username_len"`
	MinPasswordLen   int            `json:"min_password_len"`
	SweepInterval    timex.Duration `json:"sweep_interval"`
	SweepGrace       timex.Duration `json:"sweep_grace"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file path is found, parseJson attempts to read and unmarshal it
// into a JsonConfig. The resulting values are copied into the target Config.
// If the file cannot be read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and command-line
// flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.TokenValidity = time.Duration(c.TokenValidity.Duration)
	config.DataDir = c.DataDir
	config.BlobBackend = c.BlobBackend
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.MaxFileSize = c.MaxFileSize
	config.MaxFilesPerBatch = c.MaxFilesPerBatch
	config.MinUsernameLen = c.MinUsernameLen
	config.MinPasswordLen = c.MinPasswordLen
	config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	config.SweepGrace = time.Duration(c.SweepGrace.Duration)
}
