package state

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Encoding of the payload bytes.
type Encoding uint8

const (
	EncodingNone   Encoding = 0
	EncodingUtf8   Encoding = 1
	EncodingBase58 Encoding = 2
	EncodingBase64 Encoding = 3
)

// Compression applied to the payload before encoding.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionGzip Compression = 1
	CompressionZstd Compression = 2
)

// Format of the decoded payload.
type Format uint8

const (
	FormatNone Format = 0
	FormatJson Format = 1
	FormatYaml Format = 2
	FormatToml Format = 3
)

// DataSource says how the payload is to be interpreted.
type DataSource uint8

const (
	// DataSourceDirect payloads hold the content itself.
	DataSourceDirect DataSource = 0

	// DataSourceUrl payloads hold a URL pointing at the content.
	DataSourceUrl DataSource = 1

	// DataSourceExternal payloads hold an ExternalData reference.
	DataSourceExternal DataSource = 2
)

var (
	encodingNames    = []string{"none", "utf8", "base58", "base64"}
	compressionNames = []string{"none", "gzip", "zstd"}
	formatNames      = []string{"none", "json", "yaml", "toml"}
	dataSourceNames  = []string{"direct", "url", "external"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("unknown(%d)", v)
}

func checkEnum(kind string, names []string, v uint8) error {
	if int(v) >= len(names) {
		return fmt.Errorf("%w: %s %d out of range", svm.ErrInvalidAccountData, kind, v)
	}
	return nil
}

func parseEnum(kind string, names []string, s string) (uint8, error) {
	for i, name := range names {
		if name == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func (e Encoding) String() string    { return enumName(encodingNames, uint8(e)) }
func (c Compression) String() string { return enumName(compressionNames, uint8(c)) }
func (f Format) String() string      { return enumName(formatNames, uint8(f)) }
func (d DataSource) String() string  { return enumName(dataSourceNames, uint8(d)) }

// Validate checks the value is a known encoding.
func (e Encoding) Validate() error { return checkEnum("encoding", encodingNames, uint8(e)) }

// Validate checks the value is a known compression.
func (c Compression) Validate() error { return checkEnum("compression", compressionNames, uint8(c)) }

// Validate checks the value is a known format.
func (f Format) Validate() error { return checkEnum("format", formatNames, uint8(f)) }

// Validate checks the value is a known data source.
func (d DataSource) Validate() error { return checkEnum("data source", dataSourceNames, uint8(d)) }

// ValidateLength checks a payload length is acceptable for the data source:
// direct and url payloads must be non-empty, external payloads must be exactly
// one ExternalData record.
func (d DataSource) ValidateLength(n int) error {
	if err := d.Validate(); err != nil {
		return err
	}
	switch d {
	case DataSourceDirect, DataSourceUrl:
		if n > 0 {
			return nil
		}
	case DataSourceExternal:
		if n == ExternalDataLen {
			return nil
		}
	}
	return fmt.Errorf("%w: %d bytes is not a valid %s payload", svm.ErrInvalidAccountData, n, d)
}

// ParseEncoding parses an encoding name.
func ParseEncoding(s string) (Encoding, error) {
	v, err := parseEnum("encoding", encodingNames, s)
	return Encoding(v), err
}

// ParseCompression parses a compression name.
func ParseCompression(s string) (Compression, error) {
	v, err := parseEnum("compression", compressionNames, s)
	return Compression(v), err
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	v, err := parseEnum("format", formatNames, s)
	return Format(v), err
}

// ParseDataSource parses a data source name.
func ParseDataSource(s string) (DataSource, error) {
	v, err := parseEnum("data source", dataSourceNames, s)
	return DataSource(v), err
}
