// Package rankconfig reads the addresses where each rank serves its call
// stack.
package rankconfig

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// DefaultPath is the route every rank serves its current call stack on.
const DefaultPath = "/apis/pythonext/callstack"

const rankKeyPrefix = "rank"

var ErrInvalidEndpoint = errors.New("invalid rank endpoint")

type Endpoint struct {
	Rank    uint32
	Address string
}

// URL returns the address of the call stack route of the rank. DefaultPath
// is used when path is empty.
func (e Endpoint) URL(path string) string {
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + e.Address + path
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%d:%s", e.Rank, e.Address)
}

// ParseFile reads a rank file mapping "rank<N>" keys to "ip:port" addresses.
// Endpoints are returned sorted by rank.
func ParseFile(r io.Reader) ([]Endpoint, error) {
	var entries map[string]string
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	endpoints := make([]Endpoint, 0, len(entries))
	for k, addr := range entries {
		if !strings.HasPrefix(k, rankKeyPrefix) {
			return nil, fmt.Errorf("%w: key %q doesn't name a rank", ErrInvalidEndpoint, k)
		}
		rank, err := strconv.ParseUint(strings.TrimPrefix(k, rankKeyPrefix), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q doesn't name a rank", ErrInvalidEndpoint, k)
		}
		if addr == "" {
			return nil, fmt.Errorf("%w: rank %d has no address", ErrInvalidEndpoint, rank)
		}
		endpoints = append(endpoints, Endpoint{Rank: uint32(rank), Address: addr})
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Rank < endpoints[j].Rank
	})
	// "rank1" and "rank01" decode to the same rank.
	if err := checkDuplicates(endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

// ParseFlag parses a single "RANK:IP:PORT" endpoint. The address may be
// wrapped in angle brackets, as in "3:<10.0.0.7:8000>".
func ParseFlag(s string) (Endpoint, error) {
	i := strings.Index(s, ":")
	if i <= 0 {
		return Endpoint{}, fmt.Errorf("%w: %q, expected RANK:<IP:PORT>", ErrInvalidEndpoint, s)
	}
	rank, err := strconv.ParseUint(s[:i], 10, 32)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q has an invalid rank", ErrInvalidEndpoint, s)
	}
	addr := s[i+1:]
	if strings.HasPrefix(addr, "<") || strings.HasSuffix(addr, ">") {
		if !strings.HasPrefix(addr, "<") || !strings.HasSuffix(addr, ">") {
			return Endpoint{}, fmt.Errorf("%w: %q has unbalanced brackets", ErrInvalidEndpoint, s)
		}
		addr = addr[1 : len(addr)-1]
	}
	if !strings.Contains(addr, ":") {
		return Endpoint{}, fmt.Errorf("%w: %q has no port", ErrInvalidEndpoint, s)
	}
	return Endpoint{Rank: uint32(rank), Address: addr}, nil
}

// ParseFlags parses every flag value and sorts the endpoints by rank.
func ParseFlags(values []string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(values))
	for _, v := range values {
		e, err := ParseFlag(v)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Rank < endpoints[j].Rank
	})
	if err := checkDuplicates(endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

func checkDuplicates(sorted []Endpoint) error {
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Rank == sorted[i-1].Rank {
			return fmt.Errorf("%w: rank %d is listed twice", ErrInvalidEndpoint, sorted[i].Rank)
		}
	}
	return nil
}
