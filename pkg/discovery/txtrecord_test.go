package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeAPTXT(t *testing.T) {
	info := &APInfo{BSSID: "AP1", Suite: "AES-256-GCM", Version: ProtocolVersion, AdminPort: 3001}

	strs := TXTRecordsToStrings(EncodeAPTXT(info))
	assert.Equal(t, []string{"admin=3001", "bssid=AP1", "suite=AES-256-GCM", "v=1.0"}, strs)

	got, err := DecodeAPTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestEncodeAPTXTOmitsOptional(t *testing.T) {
	txt := EncodeAPTXT(&APInfo{BSSID: "AP1", Suite: "AES-256-GCM"})
	assert.Len(t, txt, 2)
}

func TestDecodeAPTXTErrors(t *testing.T) {
	tests := []struct {
		name    string
		txt     TXTRecordMap
		wantErr error
	}{
		{"missing bssid", TXTRecordMap{TXTKeySuite: "AES-256-GCM"}, ErrMissingRequired},
		{"empty bssid", TXTRecordMap{TXTKeyBSSID: "", TXTKeySuite: "AES-256-GCM"}, ErrMissingRequired},
		{"missing suite", TXTRecordMap{TXTKeyBSSID: "AP1"}, ErrMissingRequired},
		{"bad admin port", TXTRecordMap{TXTKeyBSSID: "AP1", TXTKeySuite: "x", TXTKeyAdminPort: "70000"}, ErrInvalidTXTRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAPTXT(tt.txt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "", "=x", "b=c=d"})
	assert.Equal(t, TXTRecordMap{"a": "1", "flag": "", "b": "c=d"}, txt)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("wifisim-AP1"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInstanceNameTooLong)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("a", 64)), ErrInstanceNameTooLong)
}

func TestInstanceNameTruncated(t *testing.T) {
	info := &APInfo{BSSID: strings.Repeat("b", 80)}
	assert.Len(t, info.InstanceName(), MaxInstanceNameLen)
	assert.Equal(t, "wifisim-AP1", (&APInfo{BSSID: "AP1"}).InstanceName())
}
