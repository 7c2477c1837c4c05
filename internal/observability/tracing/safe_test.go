package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUserContent(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/events"),
		attribute.String("event.text", "hello"),
		attribute.String("prompt", "secret"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTruncates(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("first\nsecond")), "first")
	assert.Len(t, SafeError(errors.New(strings.Repeat("x", 400))).Error(), 256)
}
