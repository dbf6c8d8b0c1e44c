package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "serviqo", Password: "pw", Name: "serviqo", Host: "db", Port: 3307})
	require.NoError(t, err)
	require.Equal(t, "serviqo:pw@tcp(db:3307)/serviqo?charset=utf8mb4&loc=Local&parseTime=True", dsn)
}

func TestBuildMySQLDSNDefaults(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "serviqo", Name: "serviqo"})
	require.NoError(t, err)
	require.Equal(t, "serviqo@tcp(127.0.0.1:3306)/serviqo?charset=utf8mb4&loc=Local&parseTime=True", dsn)
}

func TestBuildMySQLDSNOptionOverride(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:    "serviqo",
		Name:    "serviqo",
		Options: map[string]string{"loc": "UTC", "tls": "true"},
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "loc=UTC")
	require.Contains(t, dsn, "tls=true")
	require.Contains(t, dsn, "parseTime=True")
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := buildMySQLDSN(Config{Name: "serviqo"})
	require.Error(t, err)

	_, err = buildMySQLDSN(Config{User: "serviqo"})
	require.Error(t, err)
}

func TestBuildMySQLDSNPassthrough(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{DSN: "u:p@tcp(h:3306)/d?parseTime=True"})
	require.NoError(t, err)
	require.Equal(t, "u:p@tcp(h:3306)/d?parseTime=True", dsn)
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "serviqo", Password: "pw", Name: "serviqo", Host: "db", Port: 5433})
	require.NoError(t, err)
	require.Equal(t, "host=db port=5433 user=serviqo dbname=serviqo password=pw sslmode=disable", dsn)
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{User: "serviqo"})
	require.Error(t, err)
}
