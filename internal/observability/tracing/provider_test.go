package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/plugin/validate-license"),
		attribute.String("license_key", "WASM-AAAA-BBBB-CCCC"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	err := SafeError(errors.New("storage unavailable\nSELECT * FROM accounts"))
	assert.EqualError(t, err, "storage unavailable")
	assert.Nil(t, SafeError(nil))
}

func TestNormalizeRatio(t *testing.T) {
	assert.Equal(t, 0.0, normalizeRatio(-1))
	assert.Equal(t, 1.0, normalizeRatio(3))
	assert.Equal(t, 0.25, normalizeRatio(0.25))
}
