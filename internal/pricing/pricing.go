package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sparekart/backend/internal/models"
)

var hundred = decimal.NewFromInt(100)
var two = decimal.NewFromInt(2)

// Calculator is pure and deterministic: the same product, customer and
// destination always produce the same prices, a requirement for
// reproducible invoices.
type Calculator struct {
	HomeStateCode string
}

// UnitPrice picks the business price for GST-registered customers when the
// product has one, otherwise the base price.
func (c *Calculator) UnitPrice(p *models.Product, customerType models.CustomerType) decimal.Decimal {
	if customerType == models.CustomerBusiness && p.BusinessPrice.Valid {
		return p.BusinessPrice.Decimal
	}
	return p.BasePrice
}

// ItemTax returns unitPrice * qty * gstRate / 100 rounded to 2 decimal
// places half-up, or zero when the product is not GST applicable.
func (c *Calculator) ItemTax(p *models.Product, unitPrice decimal.Decimal, qty int) decimal.Decimal {
	if !p.GSTApplicable {
		return decimal.Zero
	}
	raw := unitPrice.Mul(decimal.NewFromInt(int64(qty))).Mul(p.GSTRate).Div(hundred)
	return Round2(raw)
}

// TaxSplit carries the CGST/SGST/IGST breakup of an order's total tax.
// Exactly one of {CGST+SGST} or {IGST} is nonzero.
type TaxSplit struct {
	CGST decimal.Decimal
	SGST decimal.Decimal
	IGST decimal.Decimal
}

// Split assigns the whole order's tax once, based on the shipping
// destination: intra-state halves it into CGST and SGST, inter-state puts
// everything into IGST.
func (c *Calculator) Split(totalTax decimal.Decimal, shipping models.AddressSnapshot) TaxSplit {
	if c.IsIntraState(shipping) {
		half := Round2(totalTax.Div(two))
		// the halves must re-add to the total exactly
		return TaxSplit{CGST: half, SGST: totalTax.Sub(half), IGST: decimal.Zero}
	}
	return TaxSplit{CGST: decimal.Zero, SGST: decimal.Zero, IGST: totalTax}
}

func (c *Calculator) IsIntraState(shipping models.AddressSnapshot) bool {
	code, ok := StateCode(shipping.State)
	if !ok {
		return false
	}
	return code == c.HomeStateCode
}

// Round2 is the single rounding point for tax math: 2 decimal places,
// half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// GST state codes. Destinations outside the map are treated as
// inter-state.
var stateCodes = map[string]string{
	"jammu and kashmir": "01",
	"himachal pradesh":  "02",
	"punjab":            "03",
	"chandigarh":        "04",
	"uttarakhand":       "05",
	"haryana":           "06",
	"delhi":             "07",
	"rajasthan":         "08",
	"uttar pradesh":     "09",
	"bihar":             "10",
	"sikkim":            "11",
	"arunachal pradesh": "12",
	"nagaland":          "13",
	"manipur":           "14",
	"mizoram":           "15",
	"tripura":           "16",
	"meghalaya":         "17",
	"assam":             "18",
	"west bengal":       "19",
	"jharkhand":         "20",
	"odisha":            "21",
	"chhattisgarh":      "22",
	"madhya pradesh":    "23",
	"gujarat":           "24",
	"maharashtra":       "27",
	"andhra pradesh":    "28",
	"karnataka":         "29",
	"goa":               "30",
	"kerala":            "32",
	"tamil nadu":        "33",
	"puducherry":        "34",
	"telangana":         "36",
	"ladakh":            "38",
}

func StateCode(stateName string) (string, bool) {
	code, ok := stateCodes[strings.ToLower(strings.TrimSpace(stateName))]
	return code, ok
}
