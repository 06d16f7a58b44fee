package ldap

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObjectGUID(t *testing.T) {
	// AD mixed-endian layout for 01020304-0506-0708-090a-0b0c0d0e0f10.
	adBytes := []byte{
		0x04, 0x03, 0x02, 0x01,
		0x06, 0x05,
		0x08, 0x07,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}

	guid, err := DecodeObjectGUID(adBytes)
	require.NoError(t, err)
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", guid)
}

func TestDecodeObjectGUID_BadLength(t *testing.T) {
	_, err := DecodeObjectGUID([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeObjectSID(t *testing.T) {
	// S-1-5-21-1-2-3 in binary form.
	binarySID := []byte{
		0x01,                               // revision
		0x04,                               // sub-authority count
		0x00, 0x00, 0x00, 0x00, 0x00, 0x05, // identifier authority (NT)
		0x15, 0x00, 0x00, 0x00, // 21
		0x01, 0x00, 0x00, 0x00, // 1
		0x02, 0x00, 0x00, 0x00, // 2
		0x03, 0x00, 0x00, 0x00, // 3
	}

	sid, err := DecodeObjectSID(binarySID)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1-2-3", sid)
}

func TestDecodeObjectSID_Empty(t *testing.T) {
	_, err := DecodeObjectSID(nil)
	assert.Error(t, err)
}

func TestExtractSID_StringFallback(t *testing.T) {
	entry := ldap.NewEntry("CN=SRV01,DC=example,DC=com", map[string][]string{
		"objectSid": {"S-1-5-21-100-200-300"},
	})

	assert.Equal(t, "S-1-5-21-100-200-300", ExtractSID(entry))
	assert.Equal(t, "", ExtractSID(nil))
}
