/*
Package config loads lifecycle settings for eventhub.

# Overview

Settings controls what a lifecycle host does at teardown and which
ambient features it turns on. The dispatch core itself takes no
configuration; everything here is consumed by package lifecycle.

# Basic Usage

	s := config.Default()
	s.ResetPolicy = config.ResetPersist

	if err := s.Validate(); err != nil {
	    log.Fatal(err)
	}

# File Loading

Load settings from YAML or JSON files. Missing fields keep their defaults:

	s, err := config.FromFile("eventhub.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	// Or load from bytes
	s, err = config.FromYAML(yamlBytes)
	s, err = config.FromJSON(jsonBytes)

A complete YAML file:

	reset_policy: clear        # clear | persist
	leak_store: sqlite         # memory | sqlite
	leak_store_path: ./leaks.db
	metrics: true
	tracing: false
	log_level: debug           # debug | info | warn | error
*/
package config
