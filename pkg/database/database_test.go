package database

import (
	"testing"

	"optifish/pkg/config"

	"github.com/alicebob/miniredis/v2"
	mysqldriver "github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKey(pkgerrors.Wrap(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, "insert")))
	assert.False(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicateKey(gorm.ErrRecordNotFound))
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := InitRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.NotNil(t, rdb)
	defer rdb.Close()

	none, err := InitRedis(config.RedisConfig{})
	assert.NoError(t, err)
	assert.Nil(t, none)
}
