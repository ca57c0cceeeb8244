package repo

import (
	"context"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"

	"github.com/Skryldev/appointments/models"
)

func TestGormDialector_MySQLMatchesUnchangedRows(t *testing.T) {
	d, err := gormDialector("mysql", "clinic:s3cret@tcp(db.local:3306)/appointments")
	if err != nil {
		t.Fatalf("gormDialector: %v", err)
	}
	md, ok := d.(*gormmysql.Dialector)
	if !ok {
		t.Fatalf("dialector = %T, want *mysql.Dialector", d)
	}
	cfg, err := gomysql.ParseDSN(md.DSN)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", md.DSN, err)
	}
	if !cfg.ClientFoundRows || !cfg.ParseTime {
		t.Fatalf("DSN %q: clientFoundRows=%v parseTime=%v, want both set", md.DSN, cfg.ClientFoundRows, cfg.ParseTime)
	}
	if cfg.DBName != "appointments" || cfg.Addr != "db.local:3306" {
		t.Fatalf("DSN %q lost connection settings", md.DSN)
	}

	if _, err := gormDialector("mysql", "not a dsn"); err == nil {
		t.Fatal("expected error for malformed mysql DSN")
	}
	if _, err := gormDialector("oracle", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestGormUpdateStatus_SameStatusTwice(t *testing.T) {
	gdb, err := OpenGorm(GormConfig{DriverName: "sqlite3", DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("OpenGorm: %v", err)
	}
	if err := MigrateGorm(gdb); err != nil {
		t.Fatalf("MigrateGorm: %v", err)
	}
	ctx := context.Background()
	r := NewGormAppointmentRepo(gdb)

	a, err := r.Insert(ctx, SampleAppointments()[0])
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := r.UpdateStatus(ctx, a.ID, models.StatusCancelled)
		if err != nil {
			t.Fatalf("UpdateStatus #%d: %v", i+1, err)
		}
		if got.Status != models.StatusCancelled {
			t.Fatalf("UpdateStatus #%d stored %s", i+1, got.Status)
		}
	}
}
