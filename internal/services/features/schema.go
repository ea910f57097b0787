package features

import "VolCast/internal/domain/models"

// IndexSchema maps the index source headers.
type IndexSchema struct {
	Date      string
	Value     string
	Variation string
}

// FundSchema maps the fund report headers.
type FundSchema struct {
	Date        string
	Liquidative string
	Drop        []string
	Performance map[models.Horizon]string
}

func DefaultIndexSchema() IndexSchema {
	return IndexSchema{Date: "Date", Value: "weekly_mean", Variation: "Variation %"}
}

func DefaultFundSchema() FundSchema {
	return FundSchema{
		Date:        "Date",
		Liquidative: "Valeur Liquidative",
		Drop:        []string{"Fonds", "Horizon minimum conseillé"},
		Performance: map[models.Horizon]string{
			models.HorizonYTD: "Performances glissantes Depuis Début d'année",
			models.Horizon1W:  "Performances glissantes 1 semaine",
			models.Horizon6M:  "Performances glissantes 6 mois",
			models.Horizon1Y:  "Performances glissantes 1 an",
			models.Horizon2Y:  "Performances glissantes 2 ans",
			models.Horizon3Y:  "Performances glissantes 3 ans",
			models.Horizon5Y:  "Performances glissantes 5 ans",
		},
	}
}
