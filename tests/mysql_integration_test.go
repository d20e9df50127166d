// Integration tests for the MySQL wire driver against a real server in
// a container. What our driver writes is cross-checked through an
// independent database/sql handle (go-sql-driver/mysql), so a codec bug
// cannot cancel itself out on the read path.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/driver/mysql"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

const (
	itUser     = "tester"
	itPassword = "tester-pw"
	itDatabase = "it"
)

type mysqlHarness struct {
	container *tcmysql.MySQLContainer
	cfg       *driver.Config
	check     *sql.DB
}

func startMySQL(t *testing.T) *mysqlHarness {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase(itDatabase),
		tcmysql.WithUsername(itUser),
		tcmysql.WithPassword(itPassword),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	cfg := &driver.Config{
		Dialect:  dialect.MySQL,
		Host:     host,
		Port:     port.Int(),
		User:     itUser,
		Password: itPassword,
		Database: itDatabase,
		SSL:      driver.SSLDisable,
	}
	require.NoError(t, cfg.Normalize())

	checkCfg := gosqlmysql.NewConfig()
	checkCfg.User = itUser
	checkCfg.Passwd = itPassword
	checkCfg.Net = "tcp"
	checkCfg.Addr = fmt.Sprintf("%s:%d", host, port.Int())
	checkCfg.DBName = itDatabase
	check, err := sql.Open("mysql", checkCfg.FormatDSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = check.Close() })

	return &mysqlHarness{container: container, cfg: cfg, check: check}
}

func (h *mysqlHarness) connect(t *testing.T) *mysql.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, err := mysql.Connect(ctx, h.cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}

func TestMySQLHandshakeAndPing(t *testing.T) {
	h := startMySQL(t)
	conn := h.connect(t)
	assert.Equal(t, driver.StateReady, conn.State())
	assert.NotEmpty(t, conn.ServerVersion())
	require.NoError(t, conn.Ping(context.Background()))
}

func TestMySQLWriteThenCrossCheck(t *testing.T) {
	h := startMySQL(t)
	conn := h.connect(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, "CREATE TABLE heroes (id BIGINT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(80) NOT NULL, age INT NULL)", nil)
	require.NoError(t, err)

	res, err := conn.Exec(ctx, "INSERT INTO heroes (name, age) VALUES (?, ?)",
		[]value.Value{value.Text("A"), value.Int(25)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	assert.Equal(t, int64(1), res.LastInsertID)

	// The independent handle must see exactly what our driver wrote.
	var name string
	var age int64
	require.NoError(t, h.check.QueryRow(
		"SELECT name, age FROM heroes WHERE id = 1").Scan(&name, &age))
	assert.Equal(t, "A", name)
	assert.Equal(t, int64(25), age)
}

func TestMySQLReadBackWhatOthersWrote(t *testing.T) {
	h := startMySQL(t)
	conn := h.connect(t)
	ctx := context.Background()

	_, err := h.check.Exec("CREATE TABLE seeds (id INT PRIMARY KEY, label VARCHAR(20), score DOUBLE)")
	require.NoError(t, err)
	_, err = h.check.Exec("INSERT INTO seeds VALUES (1, 'alpha', 1.5), (2, NULL, -2.25)")
	require.NoError(t, err)

	rows, err := conn.Query(ctx, "SELECT id, label, score FROM seeds ORDER BY id",
		[]value.Value{})
	require.NoError(t, err)
	require.Len(t, rows.Rows, 2)

	id, err := rows.Rows[0].Int64("id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	label, err := rows.Rows[0].String("label")
	require.NoError(t, err)
	assert.Equal(t, "alpha", label)

	null, err := rows.Rows[1].NullString("label")
	require.NoError(t, err)
	assert.Nil(t, null)
	score, err := rows.Rows[1].Float64("score")
	require.NoError(t, err)
	assert.Equal(t, -2.25, score)
}

func TestMySQLPreparedStatementLifecycle(t *testing.T) {
	h := startMySQL(t)
	conn := h.connect(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, "CREATE TABLE kv (k VARCHAR(20) PRIMARY KEY, v INT)", nil)
	require.NoError(t, err)

	stmt, err := conn.Prepare(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)")
	require.NoError(t, err)
	assert.Equal(t, 2, stmt.ParamCount())
	assert.Error(t, stmt.ValidateParams([]value.Value{value.Text("only one")}))

	for i := 0; i < 3; i++ {
		_, err = stmt.Exec(ctx, []value.Value{
			value.Text(fmt.Sprintf("k%d", i)), value.Int(int32(i)),
		})
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close(ctx))

	var n int
	require.NoError(t, h.check.QueryRow("SELECT COUNT(*) FROM kv").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestMySQLErrorClassification(t *testing.T) {
	h := startMySQL(t)
	conn := h.connect(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, "SELEC nonsense", nil)
	require.Error(t, err)
	var se *sqlerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sqlerr.QuerySyntax, se.Kind)

	_, err = conn.Exec(ctx, "CREATE TABLE uniq (id INT PRIMARY KEY)", nil)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "INSERT INTO uniq VALUES (1)", nil)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "INSERT INTO uniq VALUES (1)", nil)
	require.Error(t, err)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sqlerr.QueryConstraint, se.Kind)
}

func TestMySQLTemporalRoundTrip(t *testing.T) {
	h := startMySQL(t)
	conn := h.connect(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, "CREATE TABLE events (id INT PRIMARY KEY, at DATETIME(6), d DATE)", nil)
	require.NoError(t, err)

	at := int64(1_710_499_845_123_456) // 2024-03-15 10:50:45.123456 UTC
	day := int32(19797)                // 2024-03-15
	_, err = conn.Exec(ctx, "INSERT INTO events VALUES (?, ?, ?)",
		[]value.Value{value.Int(1), value.Timestamp(at), value.Date(day)})
	require.NoError(t, err)

	rows, err := conn.Query(ctx, "SELECT at, d FROM events WHERE id = ?",
		[]value.Value{value.Int(1)})
	require.NoError(t, err)
	require.Len(t, rows.Rows, 1)

	gotAt, ok := rows.Rows[0].Index(0).IntVal()
	require.True(t, ok)
	assert.Equal(t, at, gotAt)
	gotDay, ok := rows.Rows[0].Index(1).IntVal()
	require.True(t, ok)
	assert.Equal(t, int64(day), gotDay)
}
