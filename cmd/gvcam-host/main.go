// gvcam: a GigE Vision control-channel client
// Copyright (C) 2026  gvcam contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command gvcam-host exposes a local-only REST surface over a session
// facade, for scripting a camera without the TUI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gvcam/internal/config"
	"gvcam/internal/session"
)

const portFile = "/tmp/gvcam-host.port"

func writePortFile(port int) error {
	log.Printf("writing port %d to %s", port, portFile)
	return os.WriteFile(portFile, []byte(fmt.Sprintf("%d", port)), 0o644)
}

func cleanupPortFile() {
	os.Remove(portFile)
}

// findOpenPort returns startPort if it is free, otherwise the first free
// port in 8080-9090.
func findOpenPort(startPort int) (int, error) {
	if startPort > 0 {
		if l, err := net.Listen("tcp", fmt.Sprintf(":%d", startPort)); err == nil {
			l.Close()
			return startPort, nil
		}
	}
	for port := 8080; port <= 9090; port++ {
		if l, err := net.Listen("tcp", fmt.Sprintf(":%d", port)); err == nil {
			l.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available ports found in range 8080-9090")
}

var (
	flagPort       = flag.Int("port", 0, "HTTP API server port (0 = auto-find open port)")
	flagDeviceAddr = flag.String("device", "", "camera control channel address (host or host:3956)")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	deviceAddr := *flagDeviceAddr
	if deviceAddr == "" {
		deviceAddr = cfg.DeviceAddr
	}
	if deviceAddr == "" {
		log.Fatal("device address required: pass -device or set GVCAM_DEVICE_ADDR")
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

	apiPort, err := findOpenPort(*flagPort)
	if err != nil {
		log.Fatalf("find open port: %v", err)
	}
	if err := writePortFile(apiPort); err != nil {
		log.Printf("write port file: %v", err)
	}
	defer cleanupPortFile()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/health", healthHandler(dev))
		api.GET("/registers/:addr", readRegisterHandler(dev))
		api.POST("/registers/:addr", writeRegisterHandler(dev))
		api.GET("/genicam.xml", genicamHandler(dev))
		api.POST("/streams", createStreamHandler(dev))
		api.POST("/shutdown", shutdownHandler())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", apiPort),
		Handler: router,
	}

	go func() {
		log.Printf("gvcam-host listening on 127.0.0.1:%d", apiPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("server stopped")
}

func healthHandler(dev *session.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := dev.Stats()
		c.JSON(http.StatusOK, gin.H{
			"is_controller":  dev.IsController(),
			"total_requests": stats.TotalRequests,
			"error_count":    stats.ErrorCount,
		})
	}
}

func readRegisterHandler(dev *session.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := parseAddr(c.Param("addr"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		value, err := dev.ReadRegister(addr)
		if err != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": addr, "value": value})
	}
}

func writeRegisterHandler(dev *session.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := parseAddr(c.Param("addr"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var body struct {
			Value uint32 `json:"value"`
		}
		if err := c.BindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := dev.WriteRegister(addr, body.Value); err != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": addr, "value": body.Value})
	}
}

func genicamHandler(dev *session.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		xml := dev.XML()
		if xml == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "genicam xml not loaded"})
			return
		}
		c.Data(http.StatusOK, "application/xml", xml)
	}
}

func createStreamHandler(dev *session.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			LocalAddr string `json:"local_addr"`
		}
		if err := c.BindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ip := net.ParseIP(body.LocalAddr)
		if ip == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid local_addr"})
			return
		}
		stream, err := dev.CreateStream(ip)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"port": stream.Port()})
	}
}

func shutdownHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "shutting down"})
		go func() {
			time.Sleep(100 * time.Millisecond)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}()
	}
}

func parseAddr(raw string) (uint32, error) {
	v, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid register address %q: %w", raw, err)
	}
	return uint32(v), nil
}
