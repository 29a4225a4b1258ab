package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// GatewayInfo is the TXT-advertised part of a Gateway.
type GatewayInfo struct {
	DisplayName string
	GatewayPort uint16
	TLS         bool
	Path        string
}

// EncodeGatewayTXT creates TXT records for a gateway advertisement.
func EncodeGatewayTXT(info *GatewayInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	if info.DisplayName != "" {
		txt[TXTKeyDisplayName] = info.DisplayName
	}
	if info.GatewayPort != 0 {
		txt[TXTKeyGatewayPort] = strconv.FormatUint(uint64(info.GatewayPort), 10)
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	if info.Path != "" {
		txt[TXTKeyPath] = info.Path
	}
	return txt
}

// DecodeGatewayTXT parses gateway TXT records. All keys are optional;
// malformed values are errors.
func DecodeGatewayTXT(txt TXTRecordMap) (*GatewayInfo, error) {
	info := &GatewayInfo{
		DisplayName: txt[TXTKeyDisplayName],
		Path:        txt[TXTKeyPath],
	}

	if s, ok := txt[TXTKeyGatewayPort]; ok && s != "" {
		port, err := strconv.ParseUint(s, 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyGatewayPort, s)
		}
		info.GatewayPort = uint16(port)
	}

	if s, ok := txt[TXTKeyTLS]; ok {
		switch strings.ToLower(s) {
		case "", "1", "true", "yes":
			info.TLS = true
		case "0", "false", "no":
		default:
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyTLS, s)
		}
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}
