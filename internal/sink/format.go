package sink

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/protocol"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// previewLen bounds stream text shown in table output.
const previewLen = 48

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ValidFormat reports whether format is a known output format.
func ValidFormat(format string) bool {
	switch format {
	case FormatJSON, FormatYAML, FormatTable:
		return true
	}
	return false
}

// Encode writes res to w in the given format. Pretty only affects JSON.
func Encode(w io.Writer, res *core.AnalysisResult, format string, pretty bool) error {
	switch format {
	case FormatJSON, "":
		return encodeJSON(w, res, pretty)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return encodeTable(w, res)
	default:
		return fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, format)
	}
}

// encodeJSON indents after marshaling so the protocol tree, which
// marshals itself, is indented along with the rest.
func encodeJSON(w io.Writer, res *core.AnalysisResult, pretty bool) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	if pretty {
		var buf bytes.Buffer
		if err := stdjson.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func encodeTable(w io.Writer, res *core.AnalysisResult) error {
	info := res.CaptureInfo
	fmt.Fprintf(w, "File: %s\n", res.File)
	fmt.Fprintf(w, "Capture: %s .. %s (%ss, %d packets)\n\n",
		orDash(info.StartTime), orDash(info.EndTime),
		strconv.FormatFloat(info.Duration, 'f', -1, 64), info.TotalPackets)

	section(w, "Protocols", []string{"Protocol", "Count"}, protocolRows(res.Protocols))

	macs := make([][]string, 0, len(res.DeviceInfo.MACAddresses))
	for _, m := range res.DeviceInfo.MACAddresses {
		macs = append(macs, []string{m.MAC, m.Type, deref(m.Resolved)})
	}
	section(w, "MAC addresses", []string{"MAC", "Type", "Vendor"}, macs)

	ips := make([][]string, 0, len(res.DeviceInfo.IPAddresses))
	for _, ip := range res.DeviceInfo.IPAddresses {
		ips = append(ips, []string{ip.IP, deref(ip.Resolved),
			strconv.FormatBool(ip.IsPrivate), strconv.FormatBool(ip.IsIPv6)})
	}
	section(w, "IP addresses", []string{"IP", "Hostname", "Private", "IPv6"}, ips)

	streams := streamRows("tcp", res.TCPStreams)
	streams = append(streams, streamRows("udp", res.UDPStreams)...)
	section(w, "Streams", []string{"Proto", "Index", "Endpoint A", "Endpoint B", "Chars", "Preview"}, streams)

	section(w, "External IPs", []string{"IP"}, single(res.ExternalResources.ExternalIPs))
	return nil
}

func section(w io.Writer, title string, header []string, rows [][]string) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(rows))
	if len(rows) == 0 {
		fmt.Fprintln(w)
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(w)
}

func protocolRows(tree *protocol.Node) [][]string {
	rows := [][]string{}
	if tree == nil {
		return rows
	}
	tree.Walk(func(depth int, n *protocol.Node) {
		rows = append(rows, []string{strings.Repeat("  ", depth-1) + n.Name, strconv.Itoa(n.Count)})
	})
	return rows
}

func streamRows(proto string, streams []core.Stream) [][]string {
	rows := make([][]string, 0, len(streams))
	for _, s := range streams {
		rows = append(rows, []string{
			proto,
			strconv.Itoa(s.StreamIndex),
			endpoint(s.IPSrc, s.SPort),
			endpoint(s.IPDst, s.DPort),
			strconv.Itoa(len([]rune(s.Text))),
			preview(s.Text),
		})
	}
	return rows
}

func endpoint(addr string, port uint16) string {
	if strings.Contains(addr, ":") {
		return "[" + addr + "]:" + strconv.Itoa(int(port))
	}
	return addr + ":" + strconv.Itoa(int(port))
}

// preview flattens control characters and truncates to previewLen runes.
func preview(text string) string {
	r := []rune(text)
	if len(r) > previewLen {
		r = append(r[:previewLen], '…')
	}
	for i, c := range r {
		if c < 0x20 || c == 0x7f {
			r[i] = '.'
		}
	}
	return string(r)
}

func single(values []string) [][]string {
	rows := make([][]string, 0, len(values))
	for _, v := range values {
		rows = append(rows, []string{v})
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
