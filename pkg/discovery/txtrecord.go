package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeAPTXT creates the TXT records for an access point.
func EncodeAPTXT(info *APInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyBSSID: info.BSSID,
		TXTKeySuite: info.Suite,
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	if info.AdminPort > 0 {
		txt[TXTKeyAdminPort] = strconv.FormatUint(uint64(info.AdminPort), 10)
	}
	return txt
}

// DecodeAPTXT parses access point TXT records.
func DecodeAPTXT(txt TXTRecordMap) (*APInfo, error) {
	info := &APInfo{}

	var ok bool
	info.BSSID, ok = txt[TXTKeyBSSID]
	if !ok || info.BSSID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBSSID)
	}
	info.Suite, ok = txt[TXTKeySuite]
	if !ok || info.Suite == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeySuite)
	}

	info.Version = txt[TXTKeyVersion]
	if s, ok := txt[TXTKeyAdminPort]; ok {
		p, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid admin port %q", ErrInvalidTXTRecord, s)
		}
		info.AdminPort = uint16(p)
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			v = ""
		}
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
