package mention_test

import (
	"reflect"
	"testing"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/mention"
)

var roster = []domain.TeamMember{
	{ID: "1", Name: "Sammy Lee"},
	{ID: "2", Name: "Aaron Smith"},
	{ID: "3", Name: "Aaron Brown"},
	{ID: "4", Name: "Vitali (Vito) Kovalenko"},
}

func ids(mentions []domain.Mention) []string {
	var out []string
	for _, m := range mentions {
		out = append(out, m.MemberID)
	}
	return out
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []string
	}{
		{"two tokens", "Hey @sammy and @Aaron Smith, check this", []string{"1", "2"}},
		{"exact full name wins over substring", "@Aaron Brown please review", []string{"3"}},
		{"first name falls back to first roster match", "@Aaron please review", []string{"2"}},
		{"substring", "@Kovalenko owes renders", []string{"4"}},
		{"first name skips parenthetical", "@Vitali ping", []string{"4"}},
		{"unresolved stays plain", "email @nobody about it", nil},
		{"duplicates suppressed", "@sammy @sammy @Sammy Lee", []string{"1"}},
		{"no tokens", "plain text", nil},
		{"case insensitive", "@AARON SMITH", []string{"2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(mention.Resolve(tc.body, roster))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Resolve(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestResolvePositionsAndOrder(t *testing.T) {
	body := "cc @Aaron Smith then @sammy"
	got := mention.Resolve(body, roster)
	if len(got) != 2 {
		t.Fatalf("expected 2 mentions, got %+v", got)
	}
	if got[0].MemberID != "2" || got[1].MemberID != "1" {
		t.Fatalf("order not preserved: %+v", got)
	}
	if got[0].Position != 3 || body[got[1].Position] != '@' {
		t.Fatalf("positions wrong: %+v", got)
	}
	if got[0].DisplayName != "Aaron Smith" {
		t.Fatalf("display name wrong: %+v", got[0])
	}
}

func TestResolveIdempotent(t *testing.T) {
	body := "Hey @sammy and @Aaron Smith, check this"
	first := mention.Resolve(body, roster)
	second := mention.Resolve(body, roster)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolution not deterministic: %+v vs %+v", first, second)
	}
}
