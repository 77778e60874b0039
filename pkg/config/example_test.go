package config_test

import (
	"fmt"
	"log"

	"github.com/udssoftware/crmsize/pkg/config"
)

// ExampleDefault demonstrates the defaults applied before any file or flag.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Backend: %s\n", cfg.Service.Backend)
	fmt.Printf("API version: %s\n", cfg.Service.APIVersion)
	fmt.Printf("Retry attempts: %d\n", cfg.Reliability.RetryAttempts)

	// Output:
	// Backend: webapi
	// API version: 9.2
	// Retry attempts: 3
}

// ExampleConfig_Validate shows how to validate a configuration
// before using it.
func ExampleConfig_Validate() {
	cfg := config.Default()
	cfg.Report.Type = "file"
	cfg.Report.Path = "sizes.csv"
	cfg.Report.Format = "csv"

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}
