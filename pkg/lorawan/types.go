package lorawan

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// EUI64 represents an 8-byte Extended Unique Identifier
type EUI64 [8]byte

// ParseEUI64 parses a 16-char hex string into an EUI64
func ParseEUI64(s string) (EUI64, error) {
	var e EUI64
	b, err := hex.DecodeString(s)
	if err != nil {
		return e, fmt.Errorf("parse EUI64: %w", err)
	}
	if len(b) != 8 {
		return e, fmt.Errorf("invalid EUI64 length: %d", len(b))
	}
	copy(e[:], b)
	return e, nil
}

// String returns hex string representation
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// IsZero reports whether the EUI is all zeros
func (e EUI64) IsZero() bool {
	return e == EUI64{}
}

// MarshalJSON implements json.Marshaler
func (e EUI64) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (e *EUI64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseEUI64(s)
	if err != nil {
		return err
	}

	*e = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (e EUI64) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (e *EUI64) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := ParseEUI64(s)
	if err != nil {
		return err
	}

	*e = parsed
	return nil
}

// Value implements driver.Valuer
func (e EUI64) Value() (driver.Value, error) {
	return e[:], nil
}

// Scan implements sql.Scanner
func (e *EUI64) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into EUI64", src)
	}
	if len(b) != 8 {
		return fmt.Errorf("invalid EUI64 length: %d", len(b))
	}
	copy(e[:], b)
	return nil
}

// DevAddr represents a 4-byte device address
type DevAddr [4]byte

// ParseDevAddr parses an 8-char hex string into a DevAddr
func ParseDevAddr(s string) (DevAddr, error) {
	var d DevAddr
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse DevAddr: %w", err)
	}
	if len(b) != 4 {
		return d, fmt.Errorf("invalid DevAddr length: %d", len(b))
	}
	copy(d[:], b)
	return d, nil
}

// String returns hex string representation
func (d DevAddr) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero returns true if the address is all zeros
func (d DevAddr) IsZero() bool {
	return d == DevAddr{}
}

// MarshalJSON implements json.Marshaler
func (d DevAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *DevAddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseDevAddr(s)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

// AES128Key represents a 128-bit AES key
type AES128Key [16]byte

// ParseAES128Key parses a 32-char hex string into an AES128Key
func ParseAES128Key(s string) (AES128Key, error) {
	var k AES128Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse AES128Key: %w", err)
	}
	if len(b) != 16 {
		return k, fmt.Errorf("invalid AES128Key length: %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}

// String returns hex string representation
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether the key is all zeros
func (k AES128Key) IsZero() bool {
	return k == AES128Key{}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (k *AES128Key) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := ParseAES128Key(s)
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}
