package enums

import (
	"strings"
	"unicode"
)

// Sport is the class a drop's sport/league resolves to for allow-list matching.
type Sport string

const (
	Football   Sport = "football"
	Soccer     Sport = "soccer"
	Basketball Sport = "basketball"
	Tennis     Sport = "tennis"
	Hockey     Sport = "hockey"
	Baseball   Sport = "baseball"
	MMA        Sport = "mma"
	Volleyball Sport = "volleyball"
	Esports    Sport = "esports"
	Other      Sport = "other"
)

// SportInfo contains display information about a sport.
type SportInfo struct {
	Name  string
	Alias string
}

// GetSportInfo returns display information for s.
func (s Sport) GetSportInfo() SportInfo {
	switch s {
	case Football:
		return SportInfo{Name: "Football", Alias: "football"}
	case Soccer:
		return SportInfo{Name: "Soccer", Alias: "soccer"}
	case Basketball:
		return SportInfo{Name: "Basketball", Alias: "basketball"}
	case Tennis:
		return SportInfo{Name: "Tennis", Alias: "tennis"}
	case Hockey:
		return SportInfo{Name: "Hockey", Alias: "hockey"}
	case Baseball:
		return SportInfo{Name: "Baseball", Alias: "baseball"}
	case MMA:
		return SportInfo{Name: "MMA", Alias: "mma"}
	case Volleyball:
		return SportInfo{Name: "Volleyball", Alias: "volleyball"}
	case Esports:
		return SportInfo{Name: "Esports", Alias: "esports"}
	default:
		return SportInfo{Name: "Other", Alias: "other"}
	}
}

// sportKeywords maps substrings of a sport or league label to a class.
// Order matters: "football" must resolve after the NFL/NCAAF keywords so "american football" is not soccer.
var sportKeywords = []struct {
	keyword string
	sport   Sport
}{
	{"nfl", Football}, {"ncaaf", Football}, {"american football", Football}, {"americanfootball", Football}, {"cfl", Football},
	{"nba", Basketball}, {"wnba", Basketball}, {"ncaab", Basketball}, {"euroleague", Basketball}, {"basketball", Basketball},
	{"nhl", Hockey}, {"khl", Hockey}, {"ahl", Hockey}, {"hockey", Hockey},
	{"mlb", Baseball}, {"kbo", Baseball}, {"npb", Baseball}, {"baseball", Baseball},
	{"atp", Tennis}, {"wta", Tennis}, {"itf", Tennis}, {"tennis", Tennis},
	{"ufc", MMA}, {"mma", MMA}, {"boxing", MMA},
	{"volleyball", Volleyball},
	{"dota", Esports}, {"csgo", Esports}, {"counter-strike", Esports}, {"valorant", Esports}, {"league of legends", Esports}, {"esports", Esports}, {"e-sports", Esports},
	{"soccer", Soccer}, {"epl", Soccer}, {"premier league", Soccer}, {"la liga", Soccer}, {"serie a", Soccer},
	{"bundesliga", Soccer}, {"ligue 1", Soccer}, {"mls", Soccer}, {"champions league", Soccer}, {"football", Soccer},
}

// Classify resolves a free-text sport and league to a Sport class.
func Classify(sport, league string) Sport {
	for _, label := range []string{sport, league} {
		l := strings.ToLower(strings.TrimSpace(label))
		if l == "" {
			continue
		}
		l = strings.ReplaceAll(l, "_", " ")
		words := strings.FieldsFunc(l, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, kw := range sportKeywords {
			if matchKeyword(l, words, kw.keyword) {
				return kw.sport
			}
		}
	}
	return Other
}

// matchKeyword matches single-word keywords against whole words so "ahl" does not hit "al ahli".
func matchKeyword(label string, words []string, keyword string) bool {
	if strings.ContainsAny(keyword, " -") {
		return strings.Contains(label, keyword)
	}
	for _, w := range words {
		if w == keyword {
			return true
		}
	}
	return false
}

// Normalize maps a user-supplied sport tag to its class so "NBA" and "basketball" compare equal.
func Normalize(tag string) Sport {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch Sport(t) {
	case Football, Soccer, Basketball, Tennis, Hockey, Baseball, MMA, Volleyball, Esports, Other:
		return Sport(t)
	}
	return Classify(t, "")
}
