package mapping

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

// Vocabulary is the canonical field set plus label synonyms. The default
// covers the standard multifamily underwriting layout; operators override
// it with a canonical_fields.json in the data directory.
type Vocabulary struct {
	Fields   []internal.CanonicalField `json:"fields"`
	Synonyms map[string][]string       `json:"synonyms,omitempty"`
}

func Default() Vocabulary {
	return Vocabulary{
		Fields: []internal.CanonicalField{
			{Name: "Property Name", Sheet: "Summary", Cell: "B2", Label: "Property Name"},
			{Name: "Address", Sheet: "Summary", Cell: "B3", Label: "Address"},
			{Name: "City", Sheet: "Summary", Cell: "B4", Label: "City"},
			{Name: "State", Sheet: "Summary", Cell: "B5", Label: "State"},
			{Name: "Units", Sheet: "Summary", Cell: "B6", Label: "Units"},
			{Name: "Year Built", Sheet: "Summary", Cell: "B7", Label: "Year Built"},
			{Name: "Cap Rate", Sheet: "Summary", Cell: "B9", Label: "Cap Rate"},
			{Name: "Purchase Price", Sheet: "Assumptions", Cell: "B5", Label: "Purchase Price"},
			{Name: "Closing Costs", Sheet: "Assumptions", Cell: "B6", Label: "Closing Costs"},
			{Name: "Loan Amount", Sheet: "Assumptions", Cell: "B8", Label: "Loan Amount"},
			{Name: "Interest Rate", Sheet: "Assumptions", Cell: "B9", Label: "Interest Rate"},
			{Name: "Hold Period", Sheet: "Assumptions", Cell: "B10", Label: "Hold Period (Years)"},
			{Name: "Exit Cap Rate", Sheet: "Assumptions", Cell: "B11", Label: "Exit Cap Rate"},
			{Name: "Gross Potential Rent", Sheet: "Cash Flow", Cell: "C5", Label: "Gross Potential Rent"},
			{Name: "Vacancy Loss", Sheet: "Cash Flow", Cell: "C6", Label: "Vacancy Loss"},
			{Name: "Effective Gross Income", Sheet: "Cash Flow", Cell: "C8", Label: "Effective Gross Income"},
			{Name: "Operating Expenses", Sheet: "Cash Flow", Cell: "C10", Label: "Operating Expenses"},
			{Name: "Net Operating Income", Sheet: "Cash Flow", Cell: "C12", Label: "Net Operating Income"},
			{Name: "Levered IRR", Sheet: "Returns", Cell: "C4", Label: "Levered IRR"},
			{Name: "Equity Multiple", Sheet: "Returns", Cell: "C5", Label: "Equity Multiple"},
			{Name: "Average Cash on Cash", Sheet: "Returns", Cell: "C6", Label: "Average Cash on Cash"},
		},
		Synonyms: map[string][]string{
			"Net Operating Income":   {"NOI"},
			"Gross Potential Rent":   {"GPR", "Gross Potential Income"},
			"Effective Gross Income": {"EGI"},
			"Operating Expenses":     {"OpEx", "Total Expenses"},
			"Purchase Price":         {"Acquisition Price"},
			"Cap Rate":               {"Capitalization Rate", "Going-In Cap Rate"},
			"Units":                  {"Unit Count", "Number of Units"},
			"Levered IRR":            {"IRR", "Leveraged IRR"},
			"Equity Multiple":        {"MOIC"},
			"Hold Period (Years)":    {"Hold Period"},
		},
	}
}

// LoadFile reads an operator-supplied vocabulary. Malformed entries fail
// fast rather than mapping against a half-empty field set.
func LoadFile(path string) (Vocabulary, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, err
	}

	var vocab Vocabulary
	if err := json.Unmarshal(blob, &vocab); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	if err := vocab.validate(); err != nil {
		return Vocabulary{}, fmt.Errorf("invalid vocabulary %s: %w", path, err)
	}
	return vocab, nil
}

func (v Vocabulary) validate() error {
	if len(v.Fields) == 0 {
		return fmt.Errorf("no fields defined")
	}
	seen := map[string]struct{}{}
	for i, field := range v.Fields {
		if field.Name == "" || field.Sheet == "" || field.Label == "" {
			return fmt.Errorf("field %d: name, sheet and label are required", i)
		}
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("duplicate field: %s", field.Name)
		}
		seen[field.Name] = struct{}{}
		if _, _, err := excelize.CellNameToCoordinates(field.Cell); err != nil {
			return fmt.Errorf("field %s: bad cell %q: %w", field.Name, field.Cell, err)
		}
	}
	return nil
}
