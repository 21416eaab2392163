package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// OutputFormat represents the supported output formats
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatTable OutputFormat = "table"
)

// OutputOptions controls output formatting behavior
type OutputOptions struct {
	Format     OutputFormat
	NoColor    bool
	Writer     io.Writer
	IsTerminal bool
}

// NewOutputOptions creates output options with sensible defaults
func NewOutputOptions(format string, noColor bool) *OutputOptions {
	opts := &OutputOptions{
		Format:  FormatTable, // Default to table
		NoColor: noColor,
		Writer:  os.Stdout,
	}

	// Check if output is a terminal
	if f, ok := opts.Writer.(*os.File); ok {
		opts.IsTerminal = isatty.IsTerminal(f.Fd())
	} else {
		opts.IsTerminal = false
	}

	switch strings.ToLower(format) {
	case "json":
		opts.Format = FormatJSON
	case "yaml", "yml":
		opts.Format = FormatYAML
	case "table":
		opts.Format = FormatTable
	default:
		opts.Format = FormatTable
	}

	if !opts.IsTerminal || noColor {
		color.NoColor = true
	}

	return opts
}

// OutputFormatter is the interface for formatting the enrichment core's
// three query surfaces: a single IP's inventory row, an ASN's attribution
// row, and a session's snapshot.
type OutputFormatter interface {
	FormatIPInventory(opts *OutputOptions, inv *models.IPInventory) error
	FormatASNInventory(opts *OutputOptions, asn *models.ASNInventory) error
	FormatSessionSummary(opts *OutputOptions, sess *models.SessionSummary) error
}

// DefaultFormatter implements OutputFormatter
type DefaultFormatter struct{}

// NewFormatter creates a new output formatter
func NewFormatter() OutputFormatter {
	return &DefaultFormatter{}
}

// FormatIPInventory formats a single IPInventory row.
func (f *DefaultFormatter) FormatIPInventory(opts *OutputOptions, inv *models.IPInventory) error {
	switch opts.Format {
	case FormatJSON:
		return formatJSON(opts.Writer, inv)
	case FormatYAML:
		return formatYAML(opts.Writer, inv)
	case FormatTable:
		return formatIPTable(opts, inv)
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

// FormatASNInventory formats a single ASNInventory row.
func (f *DefaultFormatter) FormatASNInventory(opts *OutputOptions, asn *models.ASNInventory) error {
	switch opts.Format {
	case FormatJSON:
		return formatJSON(opts.Writer, asn)
	case FormatYAML:
		return formatYAML(opts.Writer, asn)
	case FormatTable:
		return formatASNTable(opts, asn)
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

// FormatSessionSummary formats a single SessionSummary row.
func (f *DefaultFormatter) FormatSessionSummary(opts *OutputOptions, sess *models.SessionSummary) error {
	switch opts.Format {
	case FormatJSON:
		return formatJSON(opts.Writer, sess)
	case FormatYAML:
		return formatYAML(opts.Writer, sess)
	case FormatTable:
		return formatSessionTable(opts, sess)
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

// formatJSON outputs data as JSON
func formatJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// formatYAML outputs data as YAML
func formatYAML(w io.Writer, data interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}

// formatIPTable formats an IPInventory row plus its derived fields.
func formatIPTable(opts *OutputOptions, inv *models.IPInventory) error {
	headerColor := color.New(color.FgCyan, color.Bold)
	if !opts.NoColor && opts.IsTerminal {
		headerColor.Fprintf(opts.Writer, "\nIP: %s\n", inv.IPAddress)
	} else {
		fmt.Fprintf(opts.Writer, "\nIP: %s\n", inv.IPAddress)
	}

	asn := "none"
	if inv.CurrentASN != nil {
		asn = fmt.Sprintf("%d", *inv.CurrentASN)
	}

	scanner := "no"
	if inv.IsScanner() {
		scanner = scannerLabel(opts, true)
	}

	fmt.Fprintf(opts.Writer, "ASN: %s | Country: %s | IP Type: %s | Scanner: %s | Bogon: %v\n",
		asn, inv.GeoCountry(), emptyDash(inv.IPType()), scanner, inv.IsBogon())
	fmt.Fprintf(opts.Writer, "First Seen: %s | Last Seen: %s | Sessions: %d\n",
		formatTime(inv.FirstSeen), formatTime(inv.LastSeen), inv.SessionCount)
	fmt.Fprintf(opts.Writer, "Enrichment Updated: %s | Version: %s\n\n",
		formatTimePtr(inv.EnrichmentUpdatedAt), emptyDash(inv.EnrichmentVersion))

	if len(inv.Enrichment) == 0 {
		fmt.Fprintln(opts.Writer, "No enrichment sources recorded.")
		return nil
	}

	table := tablewriter.NewWriter(opts.Writer)
	table.SetHeader([]string{"Source", "Payload"})
	table.SetBorder(true)
	table.SetAutoWrapText(true)
	table.SetColWidth(80)

	for _, source := range []string{
		models.SourceOfflineGeo, models.SourceWhois, models.SourceReputation,
		models.SourceIPThreatFeed, models.SourceCommercial, models.SourceValidation,
	} {
		raw, ok := inv.Enrichment[source]
		if !ok {
			continue
		}
		table.Append([]string{source, truncate(string(raw), 80)})
	}
	table.Render()

	return nil
}

// formatASNTable formats an ASNInventory row.
func formatASNTable(opts *OutputOptions, asn *models.ASNInventory) error {
	headerColor := color.New(color.FgCyan, color.Bold)
	if !opts.NoColor && opts.IsTerminal {
		headerColor.Fprintf(opts.Writer, "\nASN: %d\n", asn.ASNNumber)
	} else {
		fmt.Fprintf(opts.Writer, "\nASN: %d\n", asn.ASNNumber)
	}

	fmt.Fprintf(opts.Writer, "Organization: %s | Country: %s | Registry: %s | Type: %s\n",
		emptyDash(asn.OrganizationName), emptyDash(asn.OrganizationCountry),
		emptyDash(asn.RIRRegistry), emptyDash(asn.ASNType))
	fmt.Fprintf(opts.Writer, "Hosting: %v | VPN: %v\n", asn.IsKnownHosting, asn.IsKnownVPN)
	fmt.Fprintf(opts.Writer, "First Seen: %s | Last Seen: %s\n",
		formatTime(asn.FirstSeen), formatTime(asn.LastSeen))
	fmt.Fprintf(opts.Writer, "Unique IPs: %d | Total Sessions: %d\n\n",
		asn.UniqueIPCount, asn.TotalSessionCount)

	return nil
}

// formatSessionTable formats a SessionSummary row, including its
// write-once snapshot columns.
func formatSessionTable(opts *OutputOptions, sess *models.SessionSummary) error {
	headerColor := color.New(color.FgCyan, color.Bold)
	if !opts.NoColor && opts.IsTerminal {
		headerColor.Fprintf(opts.Writer, "\nSession: %s\n", sess.SessionID)
	} else {
		fmt.Fprintf(opts.Writer, "\nSession: %s\n", sess.SessionID)
	}

	fmt.Fprintf(opts.Writer, "Window: %s -> %s\n",
		formatTime(sess.FirstEventAt), formatTime(sess.LastEventAt))
	fmt.Fprintf(opts.Writer, "Events: %d | Commands: %d | Downloads: %d | Logins: %d\n",
		sess.EventCount, sess.CommandCount, sess.FileDownloads, sess.LoginAttempts)
	fmt.Fprintf(opts.Writer, "SSH Key Injections: %d | Unique SSH Keys: %d\n",
		sess.SSHKeyInjections, sess.UniqueSSHKeys)
	fmt.Fprintf(opts.Writer, "VT Flagged: %v | DShield Flagged: %v\n", sess.VTFlagged, sess.DShieldFlagged)

	if !sess.HasSnapshot() {
		fmt.Fprintln(opts.Writer, "\nSnapshot: not yet captured")
		return nil
	}

	asn := "none"
	if sess.SnapshotASN != nil {
		asn = fmt.Sprintf("%d", *sess.SnapshotASN)
	}
	country := "?"
	if sess.SnapshotCountry != nil {
		country = *sess.SnapshotCountry
	}
	ipType := "?"
	if sess.SnapshotIPType != nil {
		ipType = *sess.SnapshotIPType
	}

	fmt.Fprintf(opts.Writer, "\nSnapshot (source_ip=%s, captured %s):\n",
		sess.SourceIP, formatTimePtr(sess.EnrichmentAt))
	fmt.Fprintf(opts.Writer, "  ASN: %s | Country: %s | IP Type: %s\n\n", asn, country, ipType)

	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return formatTime(*t)
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func scannerLabel(opts *OutputOptions, isScanner bool) string {
	if !isScanner {
		return "no"
	}
	if !opts.NoColor && opts.IsTerminal {
		return color.RedString("yes")
	}
	return "yes"
}

// truncate truncates a string to a maximum length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
