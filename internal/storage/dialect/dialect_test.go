package dialect

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantName    string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", DialectType("postgres"), "", true},
		{"unknown", DialectType("unknown"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantErr    bool
	}{
		{"sqlite", "sqlite", false},
		{"sqlite3", "sqlite", false},
		{"SQLite", "sqlite", false},
		{"mysql", "", true},
		{"unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestSQLiteDialect(t *testing.T) {
	d, _ := New(SQLite)

	if d.DriverName() != "sqlite" {
		t.Errorf("DriverName() = %v, want sqlite", d.DriverName())
	}
	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	if got := d.Rebind(query); got != query {
		t.Errorf("Rebind() = %v, want unchanged", got)
	}
	if !strings.Contains(d.AutoIncrementClause(), "AUTOINCREMENT") {
		t.Errorf("AutoIncrementClause() = %v", d.AutoIncrementClause())
	}
	if d.TimestampType() != "TIMESTAMP" || d.TextType() != "TEXT" {
		t.Errorf("types = %v/%v", d.TimestampType(), d.TextType())
	}

	pragmas := d.PragmaStatements()
	if len(pragmas) == 0 {
		t.Fatal("PragmaStatements() is empty")
	}
	for _, p := range pragmas {
		if !strings.HasPrefix(p, "PRAGMA ") {
			t.Errorf("unexpected statement %q", p)
		}
	}
}
