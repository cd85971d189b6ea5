// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// tomlConfig describes the engine's TOML configuration, enumerated in
// spec.md §6.
type tomlConfig struct {
	Session    sessionConf
	Connection connectionConf
	Store      storeConf
	Admin      adminConf
	Logging    logConf
}

// sessionConf describes the negotiated session parameters.
type sessionConf struct {
	SenderCompID      string `toml:"sender-comp-id"`
	TargetCompID      string `toml:"target-comp-id"`
	HeartBtInt        int    `toml:"heartbeat-int"`
	ResetSeqNums      bool   `toml:"reset-seq-nums"`
	TestMode          bool   `toml:"test-mode"`
	MaxLostHeartbeats int    `toml:"max-lost-heartbeats"`
}

// connectionConf describes the counterparty this engine dials.
type connectionConf struct {
	Host        string
	Port        int
	BeginString string `toml:"begin-string"`
}

// storeConf selects the MessageStore backend.
type storeConf struct {
	Driver string // "memory" or "badger"
	Path   string
}

// adminConf describes the optional administrative HTTP surface.
type adminConf struct {
	Enabled bool
	Address string
}

// logConf describes the Logging-configuration block, mirroring
// cmd/dtnd/configuration.go's own.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

func parseConfig(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	if conf.Connection.Host == "" {
		err = fmt.Errorf("connection.host is empty")
		return
	}
	if conf.Session.SenderCompID == "" || conf.Session.TargetCompID == "" {
		err = fmt.Errorf("session.sender-comp-id and session.target-comp-id are required")
		return
	}
	if conf.Connection.BeginString == "" {
		conf.Connection.BeginString = "FIX.4.4"
	}
	if conf.Session.HeartBtInt <= 0 {
		conf.Session.HeartBtInt = 30
	}
	if conf.Session.MaxLostHeartbeats <= 0 {
		conf.Session.MaxLostHeartbeats = 3
	}
	if conf.Store.Driver == "" {
		conf.Store.Driver = "memory"
	}

	applyLogging(conf.Logging)

	return
}

func applyLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, lvlErr := log.ParseLevel(conf.Level); lvlErr != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    lvlErr,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}
