package mr

import (
	"github.com/spf13/viper"
)

// config configures a Driver's execution of jobs
type config struct {
	Inputs          []string
	SplitSize       int64
	MapBinSize      int64
	ReduceBins      uint
	MaxConcurrency  int
	WorkingLocation string
	Combine         bool
	CombineBuffer   int
	Cleanup         bool
}

func newConfig() *config {
	loadConfig() // Load viper config from settings file(s) and environment
	return &config{
		Inputs:          []string{},
		SplitSize:       viper.GetInt64("split_size"),
		MapBinSize:      viper.GetInt64("map_bin_size"),
		ReduceBins:      viper.GetUint("reduce_bins"),
		MaxConcurrency:  viper.GetInt("max_concurrency"),
		WorkingLocation: viper.GetString("working_location"),
		Combine:         viper.GetBool("combine"),
		CombineBuffer:   viper.GetInt("combine_buffer"),
		Cleanup:         viper.GetBool("cleanup"),
	}
}

func loadConfig() {
	viper.SetConfigName("tfidfrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.tfidf")

	setupDefaults()

	viper.ReadInConfig()

	viper.SetEnvPrefix("tfidf")
	viper.AutomaticEnv()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"lambda_function_name": "tfidf_function",
		"lambda_memory":        1500,
		"lambda_timeout":       180,
		"lambda_manage_role":   true,
		"lambda_role_name":     "tfidf-executor",
		"cleanup":              true,
		"verbose":              false,
		"split_size":           100 * 1024 * 1024, // Default input split size is 100Mb
		"map_bin_size":         512 * 1024 * 1024, // Default map bin size is 512Mb
		"reduce_bins":          10,                // Number of reduce workers
		"max_concurrency":      100,               // Maximum number of concurrent executors
		"working_location":     ".",
		"combine":              true,
		"combine_buffer":       100000, // Buffered map records per combiner spill
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose": "v",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}
