package billing

// MethodOnline marks payments settled through the card checkout.
const MethodOnline = "Paiement en ligne"

var (
	PaymentMethods = []string{"Carte Bancaire", "Espèces", "Virement", "Chèque"}

	ConsultationTypes = []string{
		"Suivi",
		"Thérapie",
		"Nouvelle consultation",
		"Visio",
		"Délégué",
		"Gratuité",
		"Contrôle",
		"Non payé",
		"Clinique",
		"Autre",
	}

	Insurers = []string{"CNOPS", "CNSS", "RMA", "SAHAM", "AXA", "MCMA", "Allianz", "Sanad", "MGPAP", "AtlantaSanad"}

	HistoryItems = []string{
		"Diabète",
		"Hypertension",
		"Asthme",
		"Allergie",
		"Dépression",
		"Anxiété",
		"Trouble bipolaire",
		"Schizophrénie",
		"TOC",
		"TDAH",
	}
)

type Source struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var Sources = []Source{
	{ID: "phone", Label: "Téléphone"},
	{ID: "website_satli", Label: "Site-Satli"},
	{ID: "recommendation", Label: "Recommandation"},
	{ID: "email", Label: "Email"},
	{ID: "social_media", Label: "Réseaux sociaux"},
	{ID: "direct_visit", Label: "Visite directe"},
	{ID: "website", Label: "Site web"},
	{ID: "referral", Label: "Référé"},
	{ID: "advertising", Label: "Publicité"},
	{ID: "sms", Label: "SMS"},
}

// Catalog is what the front desk forms pick from.
type Catalog struct {
	BaseFee           string   `json:"base_fee"`
	PaymentMethods    []string `json:"payment_methods"`
	ConsultationTypes []string `json:"consultation_types"`
	Insurers          []string `json:"insurers"`
	HistoryItems      []string `json:"history_items"`
	Sources           []Source `json:"sources"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		BaseFee:           FormatAmount(BaseFeeCents),
		PaymentMethods:    PaymentMethods,
		ConsultationTypes: ConsultationTypes,
		Insurers:          Insurers,
		HistoryItems:      HistoryItems,
		Sources:           Sources,
	}
}
