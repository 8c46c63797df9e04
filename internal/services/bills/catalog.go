package bills

import (
	"regexp"

	"walletledger/internal/models"
	"walletledger/internal/services/fee"

	"github.com/shopspring/decimal"
)

const (
	CategoryAirtime     = "airtime"
	CategoryData        = "data"
	CategoryTV          = "tv"
	CategoryElectricity = "electricity"
)

var nigerianPhone = regexp.MustCompile(`^(\+234|234|0)[789][01]\d{8}$`)

type Plan struct {
	Name   string
	Amount decimal.Decimal
}

// Category describes one kind of bill. Plan-priced categories take the
// amount from Plans; the rest take it from the request within Min and Max.
type Category struct {
	Name          string
	Type          models.TransactionType
	Operation     fee.Operation
	Providers     map[string]string
	Plans         map[string]map[string]Plan
	Min           decimal.Decimal
	Max           decimal.Decimal
	CustomerField string
	Phone         bool
	ValidatePath  string
	PurchasePath  string
	MeterTypes    []string
}

func (c Category) PlanPriced() bool { return len(c.Plans) > 0 }

// Validated reports whether the customer id is checked with the biller
// before any money moves.
func (c Category) Validated() bool { return c.ValidatePath != "" }

func (c Category) Plan(provider, code string) (Plan, bool) {
	p, ok := c.Plans[provider][code]
	return p, ok
}

var mobileNetworks = map[string]string{
	"mtn":     "MTN",
	"glo":     "GLO",
	"airtel":  "AIRTEL",
	"9mobile": "9MOBILE",
}

func naira(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// DefaultCatalog is the published bill menu.
func DefaultCatalog() map[string]Category {
	return map[string]Category{
		CategoryAirtime: {
			Name:          CategoryAirtime,
			Type:          models.TransactionTypeAirtime,
			Operation:     fee.OperationAirtime,
			Providers:     mobileNetworks,
			Min:           naira(50),
			Max:           naira(10000),
			CustomerField: "phone_number",
			Phone:         true,
			PurchasePath:  "/airtime/purchase",
		},
		CategoryData: {
			Name:      CategoryData,
			Type:      models.TransactionTypeData,
			Operation: fee.OperationData,
			Providers: mobileNetworks,
			Plans: map[string]map[string]Plan{
				"mtn": {
					"MTN-1GB-30": {Name: "1GB - 30 Days", Amount: naira(500)},
					"MTN-2GB-30": {Name: "2GB - 30 Days", Amount: naira(1000)},
					"MTN-5GB-30": {Name: "5GB - 30 Days", Amount: naira(2000)},
				},
				"glo": {
					"GLO-1GB-30": {Name: "1GB - 30 Days", Amount: naira(500)},
					"GLO-2GB-30": {Name: "2GB - 30 Days", Amount: naira(1000)},
				},
				"airtel": {
					"AIRTEL-1GB-30": {Name: "1GB - 30 Days", Amount: naira(500)},
				},
				"9mobile": {
					"9MOB-1GB-30": {Name: "1GB - 30 Days", Amount: naira(500)},
				},
			},
			CustomerField: "phone_number",
			Phone:         true,
			PurchasePath:  "/data/purchase",
		},
		CategoryTV: {
			Name:      CategoryTV,
			Type:      models.TransactionTypeTV,
			Operation: fee.OperationTV,
			Providers: map[string]string{
				"dstv":      "DSTV",
				"gotv":      "GOTV",
				"startimes": "STARTIMES",
			},
			Plans: map[string]map[string]Plan{
				"dstv": {
					"DSTV-COMPACT": {Name: "Compact", Amount: naira(10500)},
					"DSTV-PREMIUM": {Name: "Premium", Amount: naira(24500)},
				},
				"gotv": {
					"GOTV-MAX":   {Name: "Max", Amount: naira(4850)},
					"GOTV-JOLLI": {Name: "Jolli", Amount: naira(3300)},
				},
				"startimes": {
					"STAR-CLASSIC": {Name: "Classic", Amount: naira(2600)},
				},
			},
			CustomerField: "smartcard_number",
			ValidatePath:  "/tv/validate",
			PurchasePath:  "/tv/subscribe",
		},
		CategoryElectricity: {
			Name:      CategoryElectricity,
			Type:      models.TransactionTypeElectricity,
			Operation: fee.OperationElectricity,
			Providers: map[string]string{
				"phed":  "Port Harcourt Electricity Distribution",
				"ikedc": "Ikeja Electric",
				"aedc":  "Abuja Electricity Distribution",
				"eedc":  "Enugu Electricity Distribution",
				"ekedc": "Eko Electricity Distribution",
			},
			Min:           naira(500),
			CustomerField: "meter_number",
			ValidatePath:  "/electricity/validate",
			PurchasePath:  "/electricity/vend",
			MeterTypes:    []string{"prepaid", "postpaid"},
		},
	}
}
