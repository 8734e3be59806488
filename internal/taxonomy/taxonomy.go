// Package taxonomy holds the built-in regulatory taxonomies. Elements are
// seeded into the schema store at startup and treated as read-only by the
// pipeline.
package taxonomy

import (
	"fmt"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

// Version identifies the taxonomy revision. Classification results are
// recorded against it; bumping it invalidates cached classifications.
const Version = "2024.1"

// Elements returns the built-in taxonomy for a schema type.
func Elements(schemaType domain.SchemaType) ([]*domain.SchemaElement, error) {
	switch schemaType {
	case domain.SchemaTypeEUESRS:
		return esrsElements(), nil
	case domain.SchemaTypeUKSRD:
		return ukSRDElements(), nil
	default:
		return nil, fmt.Errorf("%w: unknown schema type %q", domain.ErrInvalidInput, schemaType)
	}
}

// All returns every built-in taxonomy element.
func All() []*domain.SchemaElement {
	out := esrsElements()
	return append(out, ukSRDElements()...)
}

func esrsElements() []*domain.SchemaElement {
	t := domain.SchemaTypeEUESRS
	return []*domain.SchemaElement{
		{Code: "ESRS-E1", Name: "Climate change", SchemaType: t,
			Description: "Climate change mitigation and adaptation, energy consumption and mix, greenhouse gas emissions including Scope 1, Scope 2 and Scope 3 emissions, GHG reduction targets, transition plan, carbon pricing."},
		{Code: "ESRS-E1-6", Name: "Gross Scopes 1, 2, 3 and total GHG emissions", ParentCode: "ESRS-E1", SchemaType: t,
			Description: "Disclosure of gross Scope 1 greenhouse gas emissions, gross Scope 2 emissions (location-based and market-based), gross Scope 3 emissions per category, and total GHG emissions in tonnes of CO2 equivalent."},
		{Code: "ESRS-E2", Name: "Pollution", SchemaType: t,
			Description: "Pollution of air, water and soil, substances of concern, substances of very high concern, microplastics, emissions of pollutants."},
		{Code: "ESRS-E3", Name: "Water and marine resources", SchemaType: t,
			Description: "Water consumption, water withdrawal, water discharge, marine resources, water intensity in water stress areas."},
		{Code: "ESRS-E4", Name: "Biodiversity and ecosystems", SchemaType: t,
			Description: "Biodiversity loss drivers, impacts on species and ecosystems, land-use change, deforestation, ecosystem restoration."},
		{Code: "ESRS-E5", Name: "Resource use and circular economy", SchemaType: t,
			Description: "Resource inflows and outflows, waste generation and management, recycled content, circular economy design."},
		{Code: "ESRS-S1", Name: "Own workforce", SchemaType: t,
			Description: "Working conditions, collective bargaining, wages, health and safety of employees, training and skills development, diversity of the workforce."},
		{Code: "ESRS-S2", Name: "Workers in the value chain", SchemaType: t,
			Description: "Working conditions of value chain workers, child labour, forced labour, supply chain due diligence."},
		{Code: "ESRS-S3", Name: "Affected communities", SchemaType: t,
			Description: "Rights of communities affected by operations, land rights, indigenous peoples, community engagement."},
		{Code: "ESRS-S4", Name: "Consumers and end-users", SchemaType: t,
			Description: "Consumer privacy, product safety, responsible marketing, access to information for consumers and end users."},
		{Code: "ESRS-G1", Name: "Business conduct", SchemaType: t,
			Description: "Corporate governance, board composition and oversight, business ethics, anti-corruption and anti-bribery, whistleblower protection, lobbying activities, payment practices."},
	}
}

func ukSRDElements() []*domain.SchemaElement {
	t := domain.SchemaTypeUKSRD
	return []*domain.SchemaElement{
		{Code: "UKSRD-GOV", Name: "Governance", SchemaType: t,
			Description: "Board oversight of climate-related risks and opportunities, management role in assessing and managing climate risk, governance arrangements."},
		{Code: "UKSRD-STRAT", Name: "Strategy", SchemaType: t,
			Description: "Climate-related risks and opportunities over short, medium and long term, impact on business model and strategy, scenario analysis resilience."},
		{Code: "UKSRD-RISK", Name: "Risk management", SchemaType: t,
			Description: "Processes for identifying, assessing and managing climate-related risks, integration into overall risk management."},
		{Code: "UKSRD-MET", Name: "Metrics and targets", SchemaType: t,
			Description: "Metrics used to assess climate-related risks and opportunities, Scope 1, Scope 2 and Scope 3 greenhouse gas emissions, targets and performance against targets."},
	}
}
