package partition

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSchemaNameDeterministic(t *testing.T) {
	id := uuid.MustParse("0190a6fe-1111-7abc-8def-0123456789ab")
	got := SchemaName(id)
	want := "tenant_0190a6fe11117abc8def0123456789ab"
	if got != want {
		t.Fatalf("SchemaName() = %q, want %q", got, want)
	}
	if got != SchemaName(id) {
		t.Fatal("SchemaName must be deterministic")
	}
}

func TestSchemaNameDistinctPerTenant(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if SchemaName(a) == SchemaName(b) {
		t.Fatal("distinct tenants must map to distinct schemas")
	}
}

func TestTableQualifiesAndQuotes(t *testing.T) {
	p := Partition{Schema: "tenant_abc"}
	got := p.Table("tasks")
	if got != `"tenant_abc"."tasks"` {
		t.Fatalf("Table() = %q", got)
	}
}

func TestTableSanitizesHostileNames(t *testing.T) {
	p := Partition{Schema: `tenant"; DROP TABLE users; --`}
	got := p.Table("tasks")
	// The embedded quote must be doubled so it can never terminate the
	// identifier early.
	if !strings.Contains(got, `tenant""; DROP`) {
		t.Fatalf("identifier not sanitized: %q", got)
	}
}
