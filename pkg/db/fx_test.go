package db

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestInstrumentInstallsPlugins(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := instrument(conn, "changespage_test"); err != nil {
		t.Fatalf("instrument: %v", err)
	}

	if _, ok := conn.Config.Plugins["otelgorm"]; !ok {
		t.Fatal("expected otelgorm plugin to be installed")
	}
	if _, ok := conn.Config.Plugins["gorm:prometheus"]; !ok {
		t.Fatal("expected prometheus plugin to be installed")
	}

	var one int
	if err := conn.Raw("SELECT 1").Scan(&one).Error; err != nil {
		t.Fatalf("query through instrumented conn: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected 1, got %d", one)
	}
}
