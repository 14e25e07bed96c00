// Package metadata defines the broker headers attached to every record.
package metadata

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Header names on the broker wire. Consumers read these without decoding the
// payload.
const (
	KeyCorrelationID = "CorrelationId"
	KeyLogLevel      = "LogLevel"
	KeySource        = "Source"
	KeyRecordType    = "RecordType"
)

// Metadata represents the headers carried alongside a record.
type Metadata map[string]string

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// With returns a copy of m containing key=value.
func (m Metadata) With(key, value string) Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

// Validate reports the mandatory headers that are missing or empty.
func (m Metadata) Validate() error {
	var missing []string
	for _, key := range []string{KeyCorrelationID, KeyLogLevel, KeySource} {
		if m[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("metadata: missing headers %v", missing)
	}
	return nil
}

// ToWatermill copies m into a Watermill metadata map.
func ToWatermill(m Metadata) message.Metadata {
	wm := make(message.Metadata, len(m))
	for k, v := range m {
		wm[k] = v
	}
	return wm
}

// FromWatermill copies Watermill metadata into a Metadata map.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
