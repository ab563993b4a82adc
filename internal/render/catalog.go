package render

import (
	"golang.org/x/text/language"
)

// catalog holds one language's labels.
type catalog struct {
	tag language.Tag

	arbTitle    string
	middleTitle string
	evTitle     string
	sport       string
	league      string
	market      string
	starts      string
	stake       string
	returns     string
	total       string
	profit      string
	noArb       string

	zone       string
	zoneAny    string
	onlyFirst  string
	onlySecond string
	bothWin    string
	hitProb    string
	evLabel    string
	evPositive string
	evNegative string

	trueWinRate string
	implied     string
	evPerBet    string
	evOverN     string
	potential   string
	quality     map[string]string

	placed string
	open   string
}

var catalogs = []catalog{
	{
		tag:         language.English,
		arbTitle:    "ARBITRAGE",
		middleTitle: "MIDDLE",
		evTitle:     "GOOD EV",
		sport:       "Sport",
		league:      "League",
		market:      "Market",
		starts:      "Starts",
		stake:       "stake",
		returns:     "return",
		total:       "Total stake",
		profit:      "Profit",
		noArb:       "No arbitrage at these odds, split shown minimizes the loss",
		zone:        "Middle zone",
		zoneAny:     "Middle zone: see lines above",
		onlyFirst:   "Only leg 1 wins",
		onlySecond:  "Only leg 2 wins",
		bothWin:     "Both win (middle hit)",
		hitProb:     "Hit probability",
		evLabel:     "Expected value",
		evPositive:  "positive",
		evNegative:  "negative",
		trueWinRate: "True win rate",
		implied:     "Implied",
		evPerBet:    "EV per bet",
		evOverN:     "EV over %d bets",
		potential:   "Potential win",
		quality: map[string]string{
			"excellent": "Excellent",
			"strong":    "Strong",
			"good":      "Good",
			"marginal":  "Marginal",
		},
		placed: "✅ I placed it",
		open:   "Open %s",
	},
	{
		tag:         language.French,
		arbTitle:    "ARBITRAGE",
		middleTitle: "MIDDLE",
		evTitle:     "BON EV",
		sport:       "Sport",
		league:      "Ligue",
		market:      "Marché",
		starts:      "Début",
		stake:       "mise",
		returns:     "retour",
		total:       "Mise totale",
		profit:      "Profit",
		noArb:       "Pas d'arbitrage à ces cotes, la répartition affichée minimise la perte",
		zone:        "Zone du middle",
		zoneAny:     "Zone du middle : voir les lignes ci-dessus",
		onlyFirst:   "Seul le pari 1 gagne",
		onlySecond:  "Seul le pari 2 gagne",
		bothWin:     "Les deux gagnent (middle)",
		hitProb:     "Probabilité du middle",
		evLabel:     "Espérance",
		evPositive:  "positive",
		evNegative:  "négative",
		trueWinRate: "Taux de réussite réel",
		implied:     "Implicite",
		evPerBet:    "EV par pari",
		evOverN:     "EV sur %d paris",
		potential:   "Gain potentiel",
		quality: map[string]string{
			"excellent": "Excellent",
			"strong":    "Fort",
			"good":      "Bon",
			"marginal":  "Marginal",
		},
		placed: "✅ J'ai parié",
		open:   "Ouvrir %s",
	},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(catalogs))
	for i, c := range catalogs {
		tags[i] = c.tag
	}
	return language.NewMatcher(tags)
}()

// catalogFor picks the closest supported catalog, English when nothing matches.
func catalogFor(lang string) *catalog {
	tag, err := language.Parse(lang)
	if err != nil {
		return &catalogs[0]
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return &catalogs[0]
	}
	return &catalogs[idx]
}
