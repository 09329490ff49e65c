// Package netaddr picks a static IPv4 address for a new device on the
// local /24.
//
// Occupancy is judged by reverse DNS: a candidate with a PTR record is in
// use, one without is free. This is a heuristic. Hosts without PTR records
// look free and stale records make an address look taken.
package netaddr

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// FirstHost and LastHost bound the scanned host octets, inclusive.
	FirstHost = 100
	LastHost  = 199
	// FallbackHost is used when every scanned candidate is taken.
	FallbackHost = 250

	SubnetMask = "255.255.255.0"

	// routeTarget is only used to let the OS choose a route. No packet is sent.
	routeTarget = "8.8.8.8:80"
)

// Network is the static addressing block handed to the device.
type Network struct {
	StaticIP string
	Gateway  string
	Subnet   string
}

// Resolver performs reverse lookups. *net.Resolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// LocalAddrFunc returns the local address the OS would use for outbound traffic.
type LocalAddrFunc func(ctx context.Context) (net.IP, error)

type Allocator struct {
	resolver  Resolver
	localAddr LocalAddrFunc
	log       zerolog.Logger
}

func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{
		resolver:  net.DefaultResolver,
		localAddr: OutboundIP,
		log:       log,
	}
}

// NewAllocatorWith creates an allocator with custom collaborators (for testing).
func NewAllocatorWith(log zerolog.Logger, resolver Resolver, localAddr LocalAddrFunc) *Allocator {
	return &Allocator{resolver: resolver, localAddr: localAddr, log: log}
}

// Allocate discovers the local /24 and returns the first free candidate
// address in it, or the .250 fallback when the scan range is exhausted.
func (a *Allocator) Allocate(ctx context.Context) (Network, error) {
	local, err := a.localAddr(ctx)
	if err != nil {
		return Network{}, fmt.Errorf("determine local address: %w", err)
	}

	prefix, err := Prefix(local.String())
	if err != nil {
		return Network{}, err
	}
	a.log.Debug().Str("local_ip", local.String()).Str("prefix", prefix).Msg("discovered subnet")

	for host := FirstHost; host <= LastHost; host++ {
		if err := ctx.Err(); err != nil {
			return Network{}, err
		}

		candidate := hostAddr(prefix, host)
		used, err := a.inUse(ctx, candidate)
		if err != nil {
			return Network{}, err
		}
		if used {
			continue
		}
		a.log.Debug().Str("ip", candidate).Msg("found free address")
		return forPrefix(prefix, candidate), nil
	}

	fallback := hostAddr(prefix, FallbackHost)
	a.log.Warn().
		Int("first", FirstHost).
		Int("last", LastHost).
		Str("fallback", fallback).
		Msg("no free address in scan range, using fallback")
	return forPrefix(prefix, fallback), nil
}

// inUse reports whether ip has a reverse-DNS name. A failed lookup means
// free, unless it failed because ctx was cancelled.
func (a *Allocator) inUse(ctx context.Context, ip string) (bool, error) {
	names, err := a.resolver.LookupAddr(ctx, ip)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	a.log.Debug().Str("ip", ip).Strs("names", names).Msg("address in use")
	return true, nil
}

// ForAddress builds the addressing block for an explicitly chosen address.
func ForAddress(ip string) (Network, error) {
	prefix, err := Prefix(ip)
	if err != nil {
		return Network{}, err
	}
	return forPrefix(prefix, ip), nil
}

// Prefix returns the first three octets of an IPv4 address ("192.168.0").
func Prefix(ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.To4() == nil {
		return "", fmt.Errorf("not an IPv4 address: %q", ip)
	}
	v4 := parsed.To4()
	return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2]), nil
}

// InSubnet reports whether ip shares the /24 of prefix.
func InSubnet(prefix, ip string) bool {
	p, err := Prefix(ip)
	return err == nil && p == prefix
}

// OutboundIP connects an unbound UDP socket to a public address and reads
// back the local endpoint. UDP connect does not transmit anything.
func OutboundIP(ctx context.Context) (net.IP, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", routeTarget)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP, nil
}

func forPrefix(prefix, ip string) Network {
	return Network{
		StaticIP: ip,
		Gateway:  hostAddr(prefix, 1),
		Subnet:   SubnetMask,
	}
}

func hostAddr(prefix string, host int) string {
	return prefix + "." + strconv.Itoa(host)
}
