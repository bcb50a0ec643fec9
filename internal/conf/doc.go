package conf

// Package conf implements envconfig's own settings, with drop-in file and
// environment variable support.
//
// # Usage
//
//	config, err := conf.DefaultSource().Read()
//	if err != nil {
//	    return err
//	}
//	fmt.Println(config.Bundle)
//
// For custom locations (e.g., testing), fill in a ConfigSource:
//
//	cs := &conf.ConfigSource{
//	    Path:        "/custom/path/config.toml",
//	    DropInDir:   "/custom/path/config.toml.d",
//	    Environment: map[string]string{"ENVCONFIG_LOG_LEVEL": "DEBUG"},
//	}
//	config, err := cs.Read()
//
// # Load Order
//
// Settings are loaded and applied in four layers:
//
//  1. Embedded defaults (config.toml next to this file)
//  2. Main config file: /etc/envconfig/config.toml
//  3. Drop-in files: /etc/envconfig/config.toml.d/*.toml, in lexicographic order
//  4. Environment: ENVCONFIG_BUNDLE, ENVCONFIG_TEMP_DIR, ENVCONFIG_LOG_LEVEL
//
// # Internal Architecture
//
//   - configDTO: internal struct with pointer fields for TOML parsing.
//     Pointers allow distinguishing "not set" (nil) from "set to zero value".
//
//   - environmentDTO: the same keys read with caarlos0/env; an empty
//     variable is treated as unset.
//
//   - Config: public struct with value fields. Has Update() method
//     to apply DTO values.
//
//   - ConfigSource: orchestrates loading from all sources and their merging.
