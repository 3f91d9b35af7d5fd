// gvcam: a GigE Vision control-channel client
// Copyright (C) 2026  gvcam contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command gvcam-deploy is an operator convenience tool: it stages an
// override GenICam XML file on a remote configuration host over SSH, ahead
// of pointing a camera's FIRST_XML_URL or SECOND_XML_URL at it with a
// file: scheme. It is not part of the GVCP wire protocol.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"gvcam/internal/config"
)

var (
	flagHost       = flag.String("host", "", "remote configuration host (ssh)")
	flagUser       = flag.String("user", "root", "ssh username")
	flagPassword   = flag.String("password", "", "ssh password")
	flagLocalPath  = flag.String("file", "", "local GenICam XML file to stage")
	flagRemotePath = flag.String("remote-path", "/etc/gvcam/genicam.xml", "destination path on the remote host")
	flagTimeout    = flag.Duration("timeout", 10*time.Second, "ssh connect timeout")
)

// Deployer holds an open SSH connection to one configuration host.
type Deployer struct {
	host     string
	user     string
	password string
	timeout  time.Duration

	client *ssh.Client
}

// NewDeployer builds a Deployer; it does not connect until Connect is called.
func NewDeployer(host, user, password string, timeout time.Duration) *Deployer {
	return &Deployer{host: host, user: user, password: password, timeout: timeout}
}

// Connect opens the SSH session used by every subsequent operation.
func (d *Deployer) Connect() error {
	sshConfig := &ssh.ClientConfig{
		User: d.user,
		Auth: []ssh.AuthMethod{
			ssh.Password(d.password),
		},
		HostKeyCallback:   ssh.InsecureIgnoreHostKey(),
		Timeout:           d.timeout,
		HostKeyAlgorithms: []string{"ssh-rsa", "ssh-dss"},
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(d.host, "22"), sshConfig)
	if err != nil {
		return fmt.Errorf("gvcam-deploy: ssh dial %s: %w", d.host, err)
	}
	d.client = client
	return nil
}

// Disconnect closes the SSH connection.
func (d *Deployer) Disconnect() {
	if d.client != nil {
		d.client.Close()
	}
}

// UploadXML stages content at remotePath on the connected host.
func (d *Deployer) UploadXML(remotePath string, content []byte) error {
	if d.client == nil {
		return fmt.Errorf("gvcam-deploy: not connected")
	}
	session, err := d.client.NewSession()
	if err != nil {
		return fmt.Errorf("gvcam-deploy: new session: %w", err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("gvcam-deploy: stdin pipe: %w", err)
	}

	cmd := fmt.Sprintf("mkdir -p $(dirname %s) && cat > %s", remotePath, remotePath)
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("gvcam-deploy: start remote command: %w", err)
	}
	if _, err := stdin.Write(content); err != nil {
		return fmt.Errorf("gvcam-deploy: write content: %w", err)
	}
	stdin.Close()

	return session.Wait()
}

func main() {
	flag.Parse()

	cfg := config.Load()
	host := *flagHost
	if host == "" {
		host = cfg.DeviceAddr
	}
	if host == "" || *flagLocalPath == "" {
		log.Fatal("usage: gvcam-deploy -host <addr> -file <local.xml> [-password ...] [-remote-path ...]")
	}

	content, err := os.ReadFile(*flagLocalPath)
	if err != nil {
		log.Fatalf("read %s: %v", *flagLocalPath, err)
	}

	d := NewDeployer(host, *flagUser, *flagPassword, *flagTimeout)
	if err := d.Connect(); err != nil {
		log.Fatal(err)
	}
	defer d.Disconnect()

	if err := d.UploadXML(*flagRemotePath, content); err != nil {
		log.Fatalf("upload: %v", err)
	}

	log.Printf("staged %s (%d bytes) on %s at %s", *flagLocalPath, len(content), host, *flagRemotePath)
	fmt.Printf("point the camera's bootstrap url at file:%s\n", *flagRemotePath)
}
