package backfill

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// serviceName identifies this producer in payload resource attributes.
const serviceName = "claude-code"

// PayloadOptions carries the payload-level attribution settings.
// CostMultiplier is always set by the caller; zero is a valid multiplier.
type PayloadOptions struct {
	CostMultiplier   float64
	ClientID         string
	Email            string
	OrganizationName string
	ProductName      string
}

// Payload is the OTLP-Logs-shaped JSON body the ingestion endpoint expects.
// Only the fields this backend consumes are modeled; this is not a general
// OTLP implementation.
type Payload struct {
	ResourceLogs []ResourceLogs `json:"resourceLogs"`
}

// ResourceLogs groups log records under one resource.
type ResourceLogs struct {
	Resource  Resource    `json:"resource"`
	ScopeLogs []ScopeLogs `json:"scopeLogs"`
}

// Resource carries payload-level attributes.
type Resource struct {
	Attributes []Attribute `json:"attributes"`
}

// ScopeLogs groups log records under one instrumentation scope.
type ScopeLogs struct {
	Scope      Scope       `json:"scope"`
	LogRecords []LogRecord `json:"logRecords"`
}

// Scope names the instrumentation scope.
type Scope struct {
	Name string `json:"name"`
}

// LogRecord is one usage event on the wire.
type LogRecord struct {
	TimeUnixNano string      `json:"timeUnixNano"`
	Attributes   []Attribute `json:"attributes"`
}

// Attribute is an OTLP key/value pair.
type Attribute struct {
	Key   string         `json:"key"`
	Value AttributeValue `json:"value"`
}

// AttributeValue holds exactly one of the OTLP JSON value encodings.
// Integers are string-encoded per the OTLP JSON mapping.
type AttributeValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

func strAttr(key, value string) Attribute {
	return Attribute{Key: key, Value: AttributeValue{StringValue: &value}}
}

func intAttr(key string, value int64) Attribute {
	s := strconv.FormatInt(value, 10)
	return Attribute{Key: key, Value: AttributeValue{IntValue: &s}}
}

func doubleAttr(key string, value float64) Attribute {
	return Attribute{Key: key, Value: AttributeValue{DoubleValue: &value}}
}

// TransactionID derives the deterministic per-record identifier. The join
// order, pipe separator, and truncation to 32 lowercase hex characters are a
// wire-compatibility contract with the backend's own implementation and must
// not change.
func TransactionID(r UsageRecord) string {
	joined := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d",
		r.SessionID, r.Timestamp, r.Model,
		r.InputTokens, r.OutputTokens, r.CacheReadTokens, r.CacheCreationTokens,
	)
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:32]
}

// BuildPayload converts a batch of records into the wire payload. Records
// whose timestamp no longer converts to an epoch are filtered out rather
// than failing the batch; construction never errors for well-formed input.
func BuildPayload(records []UsageRecord, opts PayloadOptions) *Payload {
	logRecords := make([]LogRecord, 0, len(records))

	for _, r := range records {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			// Extractor already validated this; re-check so a bad record can
			// never panic payload construction.
			continue
		}

		attrs := []Attribute{
			strAttr("transaction.id", TransactionID(r)),
			strAttr("session.id", r.SessionID),
			strAttr("model", r.Model),
			intAttr("input_tokens", r.InputTokens),
			intAttr("output_tokens", r.OutputTokens),
			intAttr("cache_read_tokens", r.CacheReadTokens),
			intAttr("cache_creation_tokens", r.CacheCreationTokens),
		}

		if opts.Email != "" {
			attrs = append(attrs, strAttr("user.email", opts.Email))
		}
		if opts.OrganizationName != "" {
			attrs = append(attrs, strAttr("organization.name", opts.OrganizationName))
		}
		if opts.ProductName != "" {
			attrs = append(attrs, strAttr("product.name", opts.ProductName))
		}

		logRecords = append(logRecords, LogRecord{
			TimeUnixNano: strconv.FormatInt(ts.UnixNano(), 10),
			Attributes:   attrs,
		})
	}

	resourceAttrs := []Attribute{
		strAttr("service.name", serviceName),
		doubleAttr("cost.multiplier", opts.CostMultiplier),
	}
	if opts.ClientID != "" {
		resourceAttrs = append(resourceAttrs, strAttr("client.id", opts.ClientID))
	}

	return &Payload{
		ResourceLogs: []ResourceLogs{{
			Resource: Resource{Attributes: resourceAttrs},
			ScopeLogs: []ScopeLogs{{
				Scope:      Scope{Name: "ccmeter"},
				LogRecords: logRecords,
			}},
		}},
	}
}
