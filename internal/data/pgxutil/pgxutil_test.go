package pgxutil

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestTxOptions(t *testing.T) {
	tests := []struct {
		name string
		in   *sql.TxOptions
		want pgx.TxOptions
	}{
		{name: "nil", in: nil, want: pgx.TxOptions{}},
		{name: "default", in: &sql.TxOptions{}, want: pgx.TxOptions{}},
		{name: "serializable", in: &sql.TxOptions{Isolation: sql.LevelSerializable}, want: pgx.TxOptions{IsoLevel: pgx.Serializable}},
		{name: "snapshot", in: &sql.TxOptions{Isolation: sql.LevelSnapshot}, want: pgx.TxOptions{IsoLevel: pgx.RepeatableRead}},
		{
			name: "read only read committed",
			in:   &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true},
			want: pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TxOptions(tt.in))
		})
	}
}

func TestDriverRegistered(t *testing.T) {
	assert.Contains(t, sql.Drivers(), "pgx")
}
