package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL(`SELECT * FROM "automations"`))
	assert.Equal(t, "INSERT", operationFromSQL(`WITH x AS (SELECT 1) INSERT INTO interaction_records VALUES (1)`))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestParamsFilterDropsValuesByDefault(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "SELECT ?", "secret prompt")
	assert.Equal(t, "SELECT ?", sql)
	assert.Nil(t, params)

	l = NewGormLogger(GormLoggerConfig{LogParams: true})
	_, params = l.ParamsFilter(context.Background(), "SELECT ?", "value")
	assert.Equal(t, []interface{}{"value"}, params)
}
