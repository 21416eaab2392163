package whois

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxBulkChunk is the maximum number of IPs sent on a single bulk-whois
// connection (§4.E), matching Team Cymru's documented limit.
const MaxBulkChunk = 500

// BulkLookup resolves ASN attribution for many IPs via the TCP bulk-whois
// protocol, chunked at MaxBulkChunk IPs per connection. Failures on one
// chunk do not abort the remaining chunks; the returned map contains
// whatever chunks succeeded.
func (c *Client) BulkLookup(ctx context.Context, ips []string) (map[string]*Record, error) {
	results := make(map[string]*Record, len(ips))

	for start := 0; start < len(ips); start += c.bulkChunkSize {
		end := start + c.bulkChunkSize
		if end > len(ips) {
			end = len(ips)
		}
		chunk := ips[start:end]

		if err := c.limiter.AcquireN(ctx, 1); err != nil {
			return results, fmt.Errorf("whois bulk rate limit: %w", err)
		}

		chunkResults, err := c.bulkQuery(ctx, chunk)
		if err != nil {
			c.logger.Warn("whois bulk chunk failed", zap.Error(err), zap.Int("chunk_size", len(chunk)))
			continue
		}
		for ip, rec := range chunkResults {
			results[ip] = rec
		}
	}

	return results, nil
}

func (c *Client) bulkQuery(ctx context.Context, ips []string) (map[string]*Record, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.whoisAddr)
	if err != nil {
		return nil, fmt.Errorf("dial bulk whois: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.socketTimeout))

	var sb strings.Builder
	sb.WriteString("begin\nverbose\n")
	for _, ip := range ips {
		sb.WriteString(ip)
		sb.WriteByte('\n')
	}
	sb.WriteString("end\n")

	if _, err := conn.Write([]byte(sb.String())); err != nil {
		return nil, fmt.Errorf("write bulk whois query: %w", err)
	}

	results := make(map[string]*Record, len(ips))
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Bulk mode") || strings.HasPrefix(line, "AS") || strings.TrimSpace(line) == "" {
			continue
		}

		ip, rec, err := parseVerboseLine(line)
		if err != nil {
			continue
		}
		results[ip] = rec
	}
	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("read bulk whois response: %w", err)
	}

	return results, nil
}

// parseVerboseLine parses one "verbose" bulk-whois response line:
// "AS | IP | BGP Prefix | CC | Registry | Allocated | AS Name"
func parseVerboseLine(line string) (string, *Record, error) {
	fields := strings.Split(line, "|")
	if len(fields) < 7 {
		return "", nil, fmt.Errorf("unexpected bulk whois line: %q", line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	ip := fields[1]
	rec := &Record{
		Prefix:         fields[2],
		CountryCode:    fields[3],
		Registry:       fields[4],
		AllocationDate: fields[5],
		ASNOrg:         fields[6],
	}

	if asn, err := strconv.Atoi(fields[0]); err == nil {
		rec.ASN = &asn
	}

	return ip, rec, nil
}
