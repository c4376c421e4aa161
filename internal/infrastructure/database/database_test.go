package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"monetcore/internal/config"
	"monetcore/internal/model"

	"gorm.io/gorm"
)

func TestDialectorFor(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: "mysql", want: "mysql"},
		{driver: "postgres", want: "postgres"},
		{driver: "sqlite", want: "sqlite"},
		{driver: "oracle", wantErr: true},
		{driver: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := dialectorFor(&config.DatabaseConfig{
				Driver: tt.driver, Host: "localhost", Port: 3306, User: "u", Database: "monet", Path: "x.db",
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("dialectorFor: %v", err)
			}
			if d.Name() != tt.want {
				t.Fatalf("Name() = %q, want %q", d.Name(), tt.want)
			}
		})
	}
}

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "monet.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	for _, m := range model.AllModels() {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("table for %T not migrated", m)
		}
	}
	// 重复迁移不报错
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
}

type captureWriter struct {
	lines []string
}

func (w *captureWriter) Printf(format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "monet.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	w := &captureWriter{}
	session := db.Session(&gorm.Session{Logger: gormLogger(w, false)})

	var trans model.Transaction
	if err := session.Where("id = ?", 42).First(&trans).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("First err = %v, want ErrRecordNotFound", err)
	}
	if len(w.lines) != 0 {
		t.Fatalf("record not found was logged: %v", w.lines)
	}

	var count int64
	if err := session.Raw("SELECT COUNT(*) FROM missing_table").Scan(&count).Error; err == nil {
		t.Fatal("expected error for missing table")
	}
	if len(w.lines) == 0 {
		t.Fatal("query errors should still be logged")
	}
}
