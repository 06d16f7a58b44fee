package ldap

import (
	"fmt"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// Active Directory stores objectGUID in a mixed-endian layout: the first
// three fields are little-endian, the final eight bytes are big-endian.

// DecodeObjectGUID converts AD objectGUID bytes to a canonical UUID string.
func DecodeObjectGUID(guidBytes []byte) (string, error) {
	if len(guidBytes) != 16 {
		return "", fmt.Errorf("invalid GUID byte length: expected 16, got %d", len(guidBytes))
	}

	standard := make([]byte, 16)
	standard[0], standard[1], standard[2], standard[3] = guidBytes[3], guidBytes[2], guidBytes[1], guidBytes[0]
	standard[4], standard[5] = guidBytes[5], guidBytes[4]
	standard[6], standard[7] = guidBytes[7], guidBytes[6]
	copy(standard[8:], guidBytes[8:])

	id, err := uuid.FromBytes(standard)
	if err != nil {
		return "", fmt.Errorf("failed to decode GUID: %w", err)
	}
	return id.String(), nil
}

// ExtractGUID reads the objectGUID attribute from an entry, returning an
// empty string when the attribute is absent or malformed.
func ExtractGUID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	raw := entry.GetRawAttributeValue("objectGUID")
	if len(raw) == 0 {
		return ""
	}

	guid, err := DecodeObjectGUID(raw)
	if err != nil {
		return ""
	}
	return guid
}

// DecodeObjectSID converts binary objectSid data to its S-1-5-21-... form.
func DecodeObjectSID(binarySID []byte) (string, error) {
	if len(binarySID) == 0 {
		return "", fmt.Errorf("binary SID cannot be empty")
	}

	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// ExtractSID reads the objectSid attribute from an entry, returning an
// empty string when the attribute is absent or malformed. String-valued
// objectSid attributes (as produced by test fixtures) pass through as-is.
func ExtractSID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	raw := entry.GetRawAttributeValue("objectSid")
	if len(raw) > 0 {
		sid, err := DecodeObjectSID(raw)
		if err != nil {
			return ""
		}
		return sid
	}

	if s := entry.GetAttributeValue("objectSid"); len(s) >= 2 && s[:2] == "S-" {
		return s
	}

	return ""
}
