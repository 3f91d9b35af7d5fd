// Package discovery is an optional convenience wrapper around the same
// caller-supplied-address model the rest of this client uses: it does not
// replace device discovery, it only saves an operator from typing out a
// device address by hand when one is reachable on the local subnet.
package discovery

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"gvcam/internal/gvcp"
	"gvcam/internal/iochannel"
)

// Result describes one address probed during a scan.
type Result struct {
	Address    string `json:"address"`
	LatencyMs  int64  `json:"latency_ms"`
	Responding bool   `json:"responding"`
	Privilege  uint32 `json:"privilege,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Config holds the options for a ScanSubnet call.
type Config struct {
	Subnet          string        // CIDR notation; local /24 is guessed if empty
	Timeout         time.Duration // per-host GVCP probe timeout
	ConcurrentScans int
}

// DefaultConfig returns scan defaults suitable for a typical GigE Vision
// segment.
func DefaultConfig() Config {
	return Config{
		Timeout:         200 * time.Millisecond,
		ConcurrentScans: 32,
	}
}

// ScanSubnet probes every host in cfg.Subnet (or the local /24 if unset) by
// reading the control channel privilege register over GVCP, returning one
// Result per address attempted.
func ScanSubnet(cfg Config) ([]Result, error) {
	if cfg.Subnet == "" {
		subnet, err := getLocalSubnet()
		if err != nil {
			return nil, fmt.Errorf("discovery: determine local subnet: %w", err)
		}
		cfg.Subnet = subnet
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.ConcurrentScans <= 0 {
		cfg.ConcurrentScans = DefaultConfig().ConcurrentScans
	}

	ip, ipnet, err := net.ParseCIDR(cfg.Subnet)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid subnet %s: %w", cfg.Subnet, err)
	}

	var ips []string
	for addr := ip.Mask(ipnet.Mask); ipnet.Contains(addr); incrementIP(addr) {
		if isLocalIP(addr.String()) {
			continue
		}
		ips = append(ips, addr.String())
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, cfg.ConcurrentScans)
	results := make(chan Result, len(ips))

	for _, ipStr := range ips {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(ip string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results <- probe(ip, cfg.Timeout)
		}(ipStr)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []Result
	for r := range results {
		out = append(out, r)
	}
	return out, nil
}

// probe attempts a single GVCP read_register transaction against ip's
// control channel privilege register.
func probe(ip string, timeout time.Duration) Result {
	start := time.Now()
	addr := fmt.Sprintf("%s:%d", ip, gvcp.GVCPPort)
	result := Result{Address: addr}

	ch, err := iochannel.New(addr)
	if err != nil {
		result.Error = err.Error()
		result.LatencyMs = time.Since(start).Milliseconds()
		return result
	}
	defer ch.Close()
	ch.SetTimeout(timeout)

	value, err := ch.ReadRegister(gvcp.RegControlChannelPrivilege)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Responding = true
	result.Privilege = value
	return result
}

// getLocalSubnet guesses a /24 from the first non-loopback IPv4 interface
// address found.
func getLocalSubnet() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil {
				continue
			}
			parts := strings.Split(ip.String(), ".")
			if len(parts) == 4 {
				return fmt.Sprintf("%s.%s.%s.0/24", parts[0], parts[1], parts[2]), nil
			}
		}
	}
	return "", fmt.Errorf("no suitable network interface found")
}

func incrementIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

func isLocalIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ifaceIP net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ifaceIP = v.IP
			case *net.IPAddr:
				ifaceIP = v.IP
			}
			if ifaceIP != nil && ifaceIP.Equal(ip) {
				return true
			}
		}
	}
	return false
}

// FindBestResult returns the fastest-responding device, or nil if none
// responded.
func FindBestResult(results []Result) *Result {
	var best *Result
	for i := range results {
		r := &results[i]
		if !r.Responding {
			continue
		}
		if best == nil || r.LatencyMs < best.LatencyMs {
			best = r
		}
	}
	return best
}
