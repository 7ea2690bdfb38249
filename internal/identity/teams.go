package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TeamDef describes one sales team: a display name, the supervisor and the
// agents that roll up into it. Names are stored in NameKey form internally.
type TeamDef struct {
	DisplayName string   `json:"displayName"`
	Supervisor  string   `json:"supervisor"`
	Agents      []string `json:"agents"`
}

// Teams resolves agent and supervisor names to their team. The seed
// definitions mirror the current floor layout; additional teams can be
// merged in from a JSON file at startup.
type Teams struct {
	defs            map[string]TeamDef // NameKey(team) -> def
	agentToTeam     map[string]string  // NameKey(agent) -> team key
	supervisorTeams map[string]string  // NameKey(supervisor) -> team key
	canonicalNames  map[string]bool    // all known NameKeys
}

// seedTeams is the built-in floor layout.
var seedTeams = map[string]TeamDef{
	"team irania": {
		DisplayName: "TEAM IRANIA",
		Supervisor:  "irania serrano",
		Agents: []string{
			"josue renderos", "tatiana ayala", "giselle diaz",
			"miguel nunez", "roxana martinez", "irania serrano",
		},
	},
	"team bryan pleitez": {
		DisplayName: "TEAM BRYAN PLEITEZ",
		Supervisor:  "bryan pleitez",
		Agents: []string{
			"abigail galdamez", "alexander rivera", "diego mejia",
			"evelin garcia", "fabricio panameno", "luis chavarria",
			"steven varela",
		},
	},
	"team marisol beltran": {
		DisplayName: "TEAM MARISOL BELTRAN",
		Supervisor:  "marisol beltran",
		Agents: []string{
			"fernanda castillo", "jonathan morales", "katerine gomez",
			"kimberly iglesias", "stefani martinez",
		},
	},
	"team roberto velasquez": {
		DisplayName: "TEAM ROBERTO VELASQUEZ",
		Supervisor:  "roberto velasquez",
		Agents: []string{
			"cindy flores", "daniela bonilla", "francisco aguilar",
			"levy ceren", "lisbeth cortez", "lucia ferman", "nelson ceren",
		},
	},
	"team randal martinez": {
		DisplayName: "TEAM RANDAL MARTINEZ",
		Supervisor:  "randal martinez",
		Agents: []string{
			"anderson guzman", "carlos grande", "guadalupe santana",
			"julio chavez", "priscila hernandez", "riquelmi torres",
		},
	},
}

// NewTeams builds the registry from the seed definitions.
func NewTeams() *Teams {
	t := &Teams{
		defs:            make(map[string]TeamDef),
		agentToTeam:     make(map[string]string),
		supervisorTeams: make(map[string]string),
		canonicalNames:  make(map[string]bool),
	}
	for key, def := range seedTeams {
		t.Register(key, def)
	}
	return t
}

// Register adds or replaces a team definition and rebuilds its indexes.
func (t *Teams) Register(teamKey string, def TeamDef) {
	key := NameKey(teamKey)
	if key == "" {
		return
	}
	sup := NameKey(def.Supervisor)
	agents := make([]string, 0, len(def.Agents))
	for _, a := range def.Agents {
		if na := NameKey(a); na != "" {
			agents = append(agents, na)
			t.agentToTeam[na] = key
			t.canonicalNames[na] = true
		}
	}
	if sup != "" {
		t.supervisorTeams[sup] = key
		t.canonicalNames[sup] = true
	}
	t.defs[key] = TeamDef{DisplayName: def.DisplayName, Supervisor: sup, Agents: agents}
}

// LoadExtra merges team definitions from a JSON file keyed by team name.
// A missing file is fine; the seed layout applies.
func (t *Teams) LoadExtra(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read team definitions: %w", err)
	}
	var extra map[string]TeamDef
	if err := json.Unmarshal(data, &extra); err != nil {
		return fmt.Errorf("failed to parse team definitions: %w", err)
	}
	for key, def := range extra {
		t.Register(key, def)
	}
	return nil
}

// Canonical maps an arbitrary raw name to a known canonical name, either
// by exact NameKey match or, failing that, by token containment: every
// token of the canonical name appears somewhere in the raw one. Handles
// inputs like "ANDERSON GUZMAN (TARDE)" or usernames with extra noise.
func (t *Teams) Canonical(raw string) string {
	n := NameKey(raw)
	if n == "" {
		return ""
	}
	if t.canonicalNames[n] {
		return n
	}
	for c := range t.canonicalNames {
		tokens := strings.Split(c, " ")
		all := true
		for _, tok := range tokens {
			if !strings.Contains(n, tok) {
				all = false
				break
			}
		}
		if all {
			return c
		}
	}
	return ""
}

// TeamOf returns the display name of the team a raw agent name belongs
// to, or "" when the agent is not on any known team.
func (t *Teams) TeamOf(rawAgent string) string {
	key, ok := t.agentToTeam[t.Canonical(rawAgent)]
	if !ok {
		return ""
	}
	return t.defs[key].DisplayName
}

// TeamOfSupervisor returns the display name of the team led by the given
// supervisor, or "".
func (t *Teams) TeamOfSupervisor(rawSupervisor string) string {
	key, ok := t.supervisorTeams[t.Canonical(rawSupervisor)]
	if !ok {
		return ""
	}
	return t.defs[key].DisplayName
}

// DisplayNameOf returns the canonical display name of a team label, or
// the trimmed label itself when it matches no known team.
func (t *Teams) DisplayNameOf(raw string) string {
	if def, ok := t.defs[NameKey(raw)]; ok {
		return def.DisplayName
	}
	return strings.TrimSpace(raw)
}

// IsSupervisor reports whether the raw name matches a known supervisor.
func (t *Teams) IsSupervisor(raw string) bool {
	_, ok := t.supervisorTeams[t.Canonical(raw)]
	return ok
}

// AgentsOf returns the normalized agent names of a team.
func (t *Teams) AgentsOf(teamKey string) []string {
	def, ok := t.defs[NameKey(teamKey)]
	if !ok {
		return nil
	}
	out := make([]string, len(def.Agents))
	copy(out, def.Agents)
	return out
}
