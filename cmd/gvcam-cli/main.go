// gvcam: a GigE Vision control-channel client
// Copyright (C) 2026  gvcam contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command gvcam-cli is an interactive terminal client for one camera's
// control channel: a live status line (controller flag, request and error
// counts), a register inspector, and a host CPU/memory strip.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"gvcam/internal/config"
	"gvcam/internal/session"
	"gvcam/internal/tui"
)

var (
	flagDeviceAddr = flag.String("device", "", "camera control channel address (host or host:3956)")
	flagCopyXML    = flag.Bool("copy-xml", false, "copy the loaded GenICam XML to the clipboard on startup")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	deviceAddr := *flagDeviceAddr
	if deviceAddr == "" {
		deviceAddr = cfg.DeviceAddr
	}
	if deviceAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: gvcam-cli -device <addr> [-copy-xml]")
		os.Exit(1)
	}

	dev, err := session.New(deviceAddr, session.Config{
		AckTimeoutMS:      cfg.AckTimeoutMS,
		HeartbeatPeriodMS: cfg.HeartbeatPeriodMS,
		StreamPacketSize:  cfg.StreamPacketSize,
	})
	if err != nil {
		log.Fatalf("connect to %s: %v", deviceAddr, err)
	}
	defer dev.Close()
	defer tui.GetLogger().Close()

	model := tui.New(dev, *flagCopyXML)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}
