package results

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"npcs-desk/constants"

	xj "github.com/basgys/goxml2json"
)

var ErrUnknownFormat = errors.New("unknown results format")

var Formats = []string{constants.FormatPNG, constants.FormatJSON, constants.FormatTXT, constants.FormatXML}

var contentTypes = map[string]string{
	constants.FormatPNG:  "image/png",
	constants.FormatJSON: "application/json",
	constants.FormatTXT:  "text/plain; charset=utf-8",
	constants.FormatXML:  "application/xml",
}

// FormatInfo describes one way results of a finished job can be fetched.
type FormatInfo struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Binary      bool   `json:"binary"`
}

// Available lists every result format in the order the dashboard offers
// them.
func Available() []FormatInfo {
	ret := make([]FormatInfo, 0, len(Formats))
	for _, f := range Formats {
		ret = append(ret, FormatInfo{Format: f, ContentType: ContentType(f), Binary: IsBinary(f)})
	}
	return ret
}

// ParseFormat accepts a format name in any case.
func ParseFormat(format string) (string, error) {
	f := strings.ToUpper(strings.TrimSpace(format))
	if _, ok := contentTypes[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return f, nil
}

func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

// FileName example: FileName("abc", "PNG") == "abc_results.png".
func FileName(orderID, format string) string {
	return fmt.Sprintf("%s_results.%s", orderID, strings.ToLower(format))
}

// IsBinary reports whether a payload of format cannot be shown as text.
func IsBinary(format string) bool {
	return format == constants.FormatPNG
}

// XMLToJSON converts an XML results payload for clients that only read
// JSON.
func XMLToJSON(payload []byte) ([]byte, error) {
	buf, err := xj.Convert(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("converting XML results: %w", err)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
