package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTeamOf(t *testing.T) {
	teams := NewTeams()

	tests := []struct {
		agent string
		want  string
	}{
		{"Anderson Guzman", "TEAM RANDAL MARTINEZ"},
		{"ANDERSON GUZMÁN", "TEAM RANDAL MARTINEZ"},
		{"josue renderos", "TEAM IRANIA"},
		{"Irania Serrano", "TEAM IRANIA"}, // supervisors sell too
		{"Cindy Flores", "TEAM ROBERTO VELASQUEZ"},
		{"Unknown Person", ""},
	}
	for _, tt := range tests {
		if got := teams.TeamOf(tt.agent); got != tt.want {
			t.Errorf("TeamOf(%q) = %q, want %q", tt.agent, got, tt.want)
		}
	}
}

func TestCanonicalTokenContainment(t *testing.T) {
	teams := NewTeams()

	// Raw names with shift markers or username noise still resolve.
	tests := []struct {
		raw  string
		want string
	}{
		{"ANDERSON GUZMAN (TARDE)", "anderson guzman"},
		{"bryan pleitez sup", "bryan pleitez"},
		{"Giselle Diaz", "giselle diaz"},
		{"totally unknown", ""},
	}
	for _, tt := range tests {
		if got := teams.Canonical(tt.raw); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestTeamOfSupervisor(t *testing.T) {
	teams := NewTeams()

	if got := teams.TeamOfSupervisor("Marisol Beltrán"); got != "TEAM MARISOL BELTRAN" {
		t.Errorf("TeamOfSupervisor = %q", got)
	}
	if got := teams.TeamOfSupervisor("nobody"); got != "" {
		t.Errorf("unknown supervisor resolved to %q", got)
	}
	if !teams.IsSupervisor("randal martinez") {
		t.Error("randal martinez should be a supervisor")
	}
	if teams.IsSupervisor("josue renderos") {
		t.Error("josue renderos is not a supervisor")
	}
}

func TestDisplayNameOf(t *testing.T) {
	teams := NewTeams()

	if got := teams.DisplayNameOf("team irania"); got != "TEAM IRANIA" {
		t.Errorf("DisplayNameOf = %q", got)
	}
	if got := teams.DisplayNameOf("  Team  IRANIA "); got != "TEAM IRANIA" {
		t.Errorf("DisplayNameOf with noise = %q", got)
	}
	// Unknown labels pass through trimmed.
	if got := teams.DisplayNameOf(" Equipo Nuevo "); got != "Equipo Nuevo" {
		t.Errorf("unknown label = %q", got)
	}
}

func TestLoadExtra(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teams.json")
	payload := `{"team nocturno": {"displayName": "TEAM NOCTURNO", "supervisor": "Ana Lopez", "agents": ["Mario Quintanilla"]}}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	teams := NewTeams()
	if err := teams.LoadExtra(path); err != nil {
		t.Fatalf("LoadExtra: %v", err)
	}

	if got := teams.TeamOf("mario quintanilla"); got != "TEAM NOCTURNO" {
		t.Errorf("TeamOf after LoadExtra = %q", got)
	}
	if got := teams.TeamOfSupervisor("ana lopez"); got != "TEAM NOCTURNO" {
		t.Errorf("TeamOfSupervisor after LoadExtra = %q", got)
	}
	// Seed teams survive the merge.
	if got := teams.TeamOf("julio chavez"); got != "TEAM RANDAL MARTINEZ" {
		t.Errorf("seed team lost after LoadExtra: %q", got)
	}
}

func TestLoadExtraMissingFile(t *testing.T) {
	teams := NewTeams()
	if err := teams.LoadExtra(filepath.Join(t.TempDir(), "none.json")); err != nil {
		t.Errorf("missing team file should not error, got %v", err)
	}
}

func TestAgentsOf(t *testing.T) {
	teams := NewTeams()

	agents := teams.AgentsOf("TEAM IRANIA")
	if len(agents) != 6 {
		t.Fatalf("AgentsOf returned %d agents, want 6", len(agents))
	}
	if teams.AgentsOf("no such team") != nil {
		t.Error("unknown team should return nil")
	}
}
