package mongosource

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func decode[T any](t *testing.T, raw bson.M) T {
	t.Helper()
	b, err := bson.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out T
	if err := bson.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestConfigDoc_Points(t *testing.T) {
	cases := []struct {
		name   string
		raw    bson.M
		want   int
		wantOK bool
	}{
		{
			name:   "minutes as int32",
			raw:    bson.M{"category": "seeding_tracker", "config": bson.M{"reward_needed_time": bson.M{"value": int32(115), "option": int32(60000)}}},
			want:   115,
			wantOK: true,
		},
		{
			name:   "hours as doubles",
			raw:    bson.M{"category": "seeding_tracker", "config": bson.M{"reward_needed_time": bson.M{"value": 2.5, "option": 3600000.0}}},
			want:   150,
			wantOK: true,
		},
		{
			name: "missing option",
			raw:  bson.M{"category": "seeding_tracker", "config": bson.M{"reward_needed_time": bson.M{"value": int32(3)}}},
		},
		{
			name: "missing reward_needed_time",
			raw:  bson.M{"category": "seeding_tracker", "config": bson.M{}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := decode[configDoc](t, tc.raw)
			got, ok := doc.points()
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("points() = %d, %v; want %d, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestPlayerDoc_Subject(t *testing.T) {
	doc := decode[playerDoc](t, bson.M{
		"discord_user_id":   "123",
		"steamid64":         "7656119",
		"discord_roles_ids": bson.A{"member", "seed"},
		"seeding_points":    int64(140),
	})
	s := doc.subject()
	if s.ID != "123" || s.CorrelationID != "7656119" || s.Points != 140 {
		t.Fatalf("unexpected subject: %+v", s)
	}
	if !s.HasRole("seed") || s.HasRole("active") {
		t.Fatalf("unexpected roles: %v", s.Roles)
	}

	bare := decode[playerDoc](t, bson.M{"discord_user_id": "9"}).subject()
	if bare.CorrelationID != "" || bare.Points != 0 || len(bare.Roles) != 0 {
		t.Fatalf("missing fields should decode to zero values: %+v", bare)
	}
}
