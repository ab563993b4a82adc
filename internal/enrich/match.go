package enrich

import (
	"strings"

	"github.com/Vodeneev/dropalerts/internal/pkg/enums"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

// teamNamePrefixes are stripped so "FC Barcelona" and "Barcelona" compare equal.
var teamNamePrefixes = []string{
	"r.c. ", "rc ", "k.s.k. ", "ksk ", "f.c. ", "fc ", "f.k. ", "fk ",
	"c.f. ", "cf ", "s.c. ", "sc ", "a.c. ", "ac ", "a.s. ", "as ",
	"u.d. ", "ud ", "c.d. ", "cd ", "n.k. ", "nk ", "b.c. ", "bc ", "bk ",
}

// normalizeTeam lowercases, drops club prefixes and collapses whitespace.
func normalizeTeam(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	for _, p := range teamNamePrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// sameTeams reports whether the event is the drop's match, in either orientation.
func sameTeams(home, away, eventHome, eventAway string) bool {
	h, a := normalizeTeam(home), normalizeTeam(away)
	eh, ea := normalizeTeam(eventHome), normalizeTeam(eventAway)
	if h == "" || a == "" {
		return false
	}
	return (h == eh && a == ea) || (h == ea && a == eh)
}

// leagueSportKeys maps league keywords to odds-API sport keys.
var leagueSportKeys = []struct {
	keyword string
	key     string
}{
	{"nba", "basketball_nba"},
	{"wnba", "basketball_wnba"},
	{"ncaab", "basketball_ncaab"},
	{"euroleague", "basketball_euroleague"},
	{"nfl", "americanfootball_nfl"},
	{"ncaaf", "americanfootball_ncaaf"},
	{"nhl", "icehockey_nhl"},
	{"mlb", "baseball_mlb"},
	{"epl", "soccer_epl"},
	{"premier league", "soccer_epl"},
	{"la liga", "soccer_spain_la_liga"},
	{"serie a", "soccer_italy_serie_a"},
	{"bundesliga", "soccer_germany_bundesliga"},
	{"ligue 1", "soccer_france_ligue_one"},
	{"mls", "soccer_usa_mls"},
	{"champions league", "soccer_uefa_champs_league"},
	{"ufc", "mma_mixed_martial_arts"},
}

// sportKey picks the odds-API sport for a drop. "upcoming" covers every sport.
func sportKey(d *models.Drop) string {
	label := " " + strings.ToLower(d.League+" "+d.Sport) + " "
	for _, l := range leagueSportKeys {
		if strings.Contains(label, " "+l.keyword+" ") {
			return l.key
		}
	}
	if enums.Classify(d.Sport, d.League) == enums.MMA {
		return "mma_mixed_martial_arts"
	}
	return "upcoming"
}

// identity is the cache key for a drop's event.
func identity(d *models.Drop) string {
	home, away := normalizeTeam(d.Home), normalizeTeam(d.Away)
	if home > away {
		home, away = away, home
	}
	return sportKey(d) + "|" + home + "|" + away
}

func bookKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}
