package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"stellarforge.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := protocol.CompileSchema(name)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	intentSchema := compile("job_intent.schema.json")
	eventSchema := compile("event.schema.json")

	validate(intentSchema, `{"type":"building","system":"S1","building":"shipyard","priority":2}`)
	validate(intentSchema, `{"type":"travel","fleet":"F1","path":["S1","S2"]}`)
	validate(intentSchema, `{"type":"technology","technology":"improved_production_1"}`)

	validate(eventSchema, `{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "game_id":"game_1",
	  "period":12,
	  "kind":"job.completed",
	  "topic":"games.game_1.empires.E1.jobs.J1.completed",
	  "data":{"id":"J1","progress":9,"total":9}
	}`)

	var bad any
	_ = json.Unmarshal([]byte(`{"type":"EVENT","protocol_version":"1.0","game_id":"g","period":1,"kind":"job.exploded","topic":"games.g"}`), &bad)
	if err := eventSchema.Validate(bad); err == nil {
		t.Fatalf("expected unknown event kind rejected")
	}
}

func TestValidateIntent_RequiredTargets(t *testing.T) {
	cases := []struct {
		name string
		in   protocol.JobIntent
		ok   bool
	}{
		{"technology ok", protocol.JobIntent{Type: protocol.JobTechnology, Technology: "t1"}, true},
		{"technology missing id", protocol.JobIntent{Type: protocol.JobTechnology}, false},
		{"building ok", protocol.JobIntent{Type: protocol.JobBuilding, System: "S1", Building: "mine"}, true},
		{"building missing system", protocol.JobIntent{Type: protocol.JobBuilding, Building: "mine"}, false},
		{"district missing district", protocol.JobIntent{Type: protocol.JobDistrict, System: "S1"}, false},
		{"upgrade ok", protocol.JobIntent{Type: protocol.JobUpgrade, System: "S1"}, true},
		{"ship missing fleet", protocol.JobIntent{Type: protocol.JobShip, System: "S1", Ship: "explorer"}, false},
		{"ship ok", protocol.JobIntent{Type: protocol.JobShip, System: "S1", Fleet: "F1", Ship: "explorer"}, true},
		{"travel short path", protocol.JobIntent{Type: protocol.JobTravel, Fleet: "F1", Path: []string{"S1"}}, false},
		{"travel ok", protocol.JobIntent{Type: protocol.JobTravel, Fleet: "F1", Path: []string{"S1", "S2"}}, true},
		{"unknown type", protocol.JobIntent{Type: "mining"}, false},
		{"empty type", protocol.JobIntent{}, false},
	}
	for _, tc := range cases {
		err := protocol.ValidateIntent(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
